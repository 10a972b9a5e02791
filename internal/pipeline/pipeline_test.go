// Copyright (c) 2026 Planazoo
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/planazoo/ingestion/internal/identity"
	"github.com/planazoo/ingestion/internal/models"
)

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.byEmail[email], nil
}

type fakeTemplates struct {
	templates []models.EmailTemplate
	err       error
}

func (f *fakeTemplates) ListActive(context.Context) ([]models.EmailTemplate, error) {
	return f.templates, f.err
}

type fakeEvents struct {
	count     int
	countErr  error
	createErr error
	created   []*models.PendingEvent
	countedAt []time.Time
}

func (f *fakeEvents) Create(_ context.Context, ev *models.PendingEvent) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, ev)
	return nil
}

func (f *fakeEvents) CountSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.countedAt = append(f.countedAt, since)
	return f.count, f.countErr
}

type fakePublisher struct {
	published []*models.PendingEvent
	err       error
}

func (f *fakePublisher) PublishEventCreated(_ context.Context, ev *models.PendingEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}

func registeredResolver() *identity.Resolver {
	return identity.NewResolver(&fakeUsers{byEmail: map[string]*models.User{
		"ana@example.com": {ID: "u1", Email: "ana@example.com"},
	}})
}

func bookingTemplate() models.EmailTemplate {
	return models.EmailTemplate{
		ID:     "booking",
		Active: true,
		Triggers: []models.Trigger{
			{Type: models.TriggerSubjectContains, Value: "reserva"},
		},
		Fields: map[string]models.FieldSpec{
			"total": {Type: models.FieldAfterLabel, Label: "Total:", MaxLines: 1},
		},
		FieldOrder: []string{"total"},
		EventType:  "booking",
	}
}

func TestIngest_MatchedTemplate(t *testing.T) {
	events := &fakeEvents{}
	pub := &fakePublisher{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{templates: []models.EmailTemplate{bookingTemplate()}},
		Events:    events,
		Publisher: pub,
	})

	res, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:      "Ana <ANA@example.com>",
		Subject:   "Reserva confirmada",
		BodyPlain: "Total:\n42 EUR\nGracias",
		Channel:   models.ChannelWebhook,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.UserID != "u1" || res.TemplateID != "booking" {
		t.Errorf("result = %+v", res)
	}
	if res.Parsed["total"] != "42 EUR" || res.Parsed["event_type"] != "booking" {
		t.Errorf("parsed = %v", res.Parsed)
	}
	if len(events.created) != 1 {
		t.Fatalf("created %d events, want 1", len(events.created))
	}
	ev := events.created[0]
	if ev.FromEmail != "ana@example.com" {
		t.Errorf("from_email = %q, want normalized address", ev.FromEmail)
	}
	if ev.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", ev.Status)
	}
	if len(pub.published) != 1 || pub.published[0].ID != ev.ID {
		t.Errorf("published = %v", pub.published)
	}
}

func TestIngest_NoMatchStillWrites(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{templates: []models.EmailTemplate{bookingTemplate()}},
		Events:    events,
	})

	res, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "Sin triggers aquí",
		Channel: models.ChannelWebhook,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TemplateID != "" {
		t.Errorf("template_id = %q, want empty", res.TemplateID)
	}
	if len(events.created) != 1 {
		t.Fatalf("created %d events, want 1", len(events.created))
	}
	if events.created[0].Parsed != nil {
		t.Errorf("parsed = %v, want nil for unmatched message", events.created[0].Parsed)
	}
}

func TestIngest_TemplateLoadFailureDegrades(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{err: errors.New("db down")},
		Events:    events,
	})

	res, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "Reserva confirmada",
		Channel: models.ChannelWebhook,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TemplateID != "" || len(events.created) != 1 {
		t.Errorf("res = %+v, created = %d", res, len(events.created))
	}
}

func TestIngest_Validation(t *testing.T) {
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{},
		Events:    &fakeEvents{},
	})

	tests := []struct {
		name string
		msg  models.InboundMessage
	}{
		{"missing from", models.InboundMessage{Subject: "hi"}},
		{"missing subject", models.InboundMessage{From: "ana@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.msg)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestIngest_UnknownSender(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{},
		Events:    events,
	})

	_, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "stranger@example.com",
		Subject: "hola",
	})
	if !errors.Is(err, ErrFromNotRegistered) {
		t.Errorf("got %v, want ErrFromNotRegistered", err)
	}
	if len(events.created) != 0 {
		t.Errorf("created %d events for unknown sender", len(events.created))
	}
}

// TestIngest_DailyQuota checks the ceiling boundary: a user with 49
// events today gets their 50th admitted, one with 50 is rejected.
func TestIngest_DailyQuota(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		admitted bool
	}{
		{"under limit", 49, true},
		{"at limit", 50, false},
		{"over limit", 120, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{count: tt.count}
			svc := NewService(Config{
				Resolver:  registeredResolver(),
				Templates: &fakeTemplates{},
				Events:    events,
			})

			_, err := svc.Ingest(context.Background(), models.InboundMessage{
				From:    "ana@example.com",
				Subject: "hola",
			})
			if tt.admitted {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(events.created) != 1 {
					t.Errorf("created %d events, want 1", len(events.created))
				}
				return
			}
			if !errors.Is(err, ErrRateLimitExceeded) {
				t.Errorf("got %v, want ErrRateLimitExceeded", err)
			}
			if len(events.created) != 0 {
				t.Errorf("created %d events over quota", len(events.created))
			}
		})
	}
}

// TestIngest_QuotaWindowStartsAtUTCMidnight pins the quota window to
// calendar-day UTC midnight: the count excludes everything before it,
// so the first event after midnight is admitted regardless of the
// prior day's total. A rolling 24h window or local-time midnight would
// both fail this.
func TestIngest_QuotaWindowStartsAtUTCMidnight(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{},
		Events:    events,
	})

	before := time.Now().UTC()
	_, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "hola",
	})
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events.countedAt) != 1 {
		t.Fatalf("CountSince called %d times, want 1", len(events.countedAt))
	}
	since := events.countedAt[0]

	if since.Location() != time.UTC {
		t.Errorf("since location = %v, want UTC", since.Location())
	}
	h, m, s := since.Clock()
	if h != 0 || m != 0 || s != 0 || since.Nanosecond() != 0 {
		t.Errorf("since = %v, want a midnight instant", since)
	}

	// Today's midnight, tolerating a midnight rollover mid-test
	wantBefore := time.Date(before.Year(), before.Month(), before.Day(), 0, 0, 0, 0, time.UTC)
	wantAfter := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, time.UTC)
	if !since.Equal(wantBefore) && !since.Equal(wantAfter) {
		t.Errorf("since = %v, want UTC midnight of today (%v)", since, wantBefore)
	}
}

func TestIngest_CustomDailyLimit(t *testing.T) {
	events := &fakeEvents{count: 5}
	svc := NewService(Config{
		Resolver:   registeredResolver(),
		Templates:  &fakeTemplates{},
		Events:     events,
		DailyLimit: 5,
	})

	_, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "hola",
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("got %v, want ErrRateLimitExceeded at configured limit", err)
	}
}

func TestIngest_PublisherFailureTolerated(t *testing.T) {
	events := &fakeEvents{}
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{},
		Events:    events,
		Publisher: &fakePublisher{err: errors.New("redis down")},
	})

	res, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "hola",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EventID == "" || len(events.created) != 1 {
		t.Errorf("event not written despite publisher failure")
	}
}

func TestIngest_CreateFailurePropagates(t *testing.T) {
	svc := NewService(Config{
		Resolver:  registeredResolver(),
		Templates: &fakeTemplates{},
		Events:    &fakeEvents{createErr: errors.New("insert failed")},
	})

	_, err := svc.Ingest(context.Background(), models.InboundMessage{
		From:    "ana@example.com",
		Subject: "hola",
	})
	if err == nil {
		t.Fatal("expected error when event write fails")
	}
}
