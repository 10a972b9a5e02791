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

// Package pipeline runs the shared ingestion sequence for every inbound
// message, regardless of channel: sender resolution → daily quota →
// template matching → field extraction → pending-event write → queue
// hand-off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/planazoo/ingestion/internal/identity"
	"github.com/planazoo/ingestion/internal/metrics"
	"github.com/planazoo/ingestion/internal/models"
	"github.com/planazoo/ingestion/internal/template"
)

// Error kinds surfaced to channel adapters. Adapters map them to their
// transport's status codes with errors.Is.
var (
	ErrInvalidArgument   = errors.New("invalid_argument")
	ErrFromNotRegistered = errors.New("from_not_registered")
	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrNoCredentials     = errors.New("no_credentials")
)

// TemplateSource lists the templates eligible for matching.
type TemplateSource interface {
	ListActive(ctx context.Context) ([]models.EmailTemplate, error)
}

// EventSink persists pending events and answers the quota count.
type EventSink interface {
	Create(ctx context.Context, ev *models.PendingEvent) error
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Publisher hands a created event to the downstream interpreter.
type Publisher interface {
	PublishEventCreated(ctx context.Context, ev *models.PendingEvent) error
}

// DefaultDailyLimit is the per-user daily event ceiling when none is
// configured.
const DefaultDailyLimit = 50

// Service is the shared ingestion pipeline.
type Service struct {
	resolver   *identity.Resolver
	templates  TemplateSource
	events     EventSink
	publisher  Publisher // optional
	dailyLimit int
}

// Config holds the pipeline's collaborators.
type Config struct {
	Resolver   *identity.Resolver
	Templates  TemplateSource
	Events     EventSink
	Publisher  Publisher
	DailyLimit int
}

// NewService creates the ingestion pipeline.
func NewService(cfg Config) *Service {
	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Service{
		resolver:   cfg.Resolver,
		templates:  cfg.Templates,
		events:     cfg.Events,
		publisher:  cfg.Publisher,
		dailyLimit: limit,
	}
}

// Result describes a successfully ingested message.
type Result struct {
	EventID    string
	UserID     string
	TemplateID string
	Parsed     map[string]string
}

// Ingest runs one message through the full pipeline and writes exactly
// one pending event on success. Template and extraction failures never
// fail ingestion — the event is written with whatever was recoverable.
func (s *Service) Ingest(ctx context.Context, msg models.InboundMessage) (*Result, error) {
	if msg.From == "" || msg.Subject == "" {
		s.reject(msg, "invalid_argument")
		return nil, fmt.Errorf("from and subject are required: %w", ErrInvalidArgument)
	}

	// Sender resolution — only the literal registered address is accepted
	user, err := s.resolver.Resolve(ctx, msg.From)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if user == nil {
		// Client-visible rejection, not a system fault
		slog.Info("sender not registered",
			"from", identity.Normalize(msg.From),
			"channel", msg.Channel,
		)
		s.reject(msg, "from_not_registered")
		return nil, fmt.Errorf("sender %q: %w", identity.Normalize(msg.From), ErrFromNotRegistered)
	}

	// Daily quota since UTC midnight. The count and the insert below are
	// not one transaction: concurrent bursts near the ceiling can exceed
	// it by a small margin. Accepted — this is an abuse guard, not a
	// billing limit.
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.events.CountSince(ctx, user.ID, midnight)
	if err != nil {
		return nil, fmt.Errorf("daily quota check: %w", err)
	}
	if count >= s.dailyLimit {
		slog.Info("daily event limit reached",
			"user_id", user.ID,
			"count", count,
			"limit", s.dailyLimit,
		)
		s.reject(msg, "rate_limit_exceeded")
		return nil, fmt.Errorf("user %s at %d events today: %w", user.ID, count, ErrRateLimitExceeded)
	}

	// Template matching and extraction. A load failure degrades to an
	// unmatched event rather than losing the message.
	var matched *models.EmailTemplate
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		slog.Warn("template load failed, ingesting unparsed", "error", err)
	} else {
		matched = template.Match(templates, msg.Subject, msg.BodyPlain)
	}

	parsed := template.Extract(matched, msg.Subject, msg.BodyPlain)

	ev := &models.PendingEvent{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		FromEmail: identity.Normalize(msg.From),
		Subject:   msg.Subject,
		BodyPlain: msg.BodyPlain,
		Parsed:    parsed,
		Status:    models.StatusPending,
	}
	if matched != nil {
		ev.TemplateID = matched.ID
	}

	if err := s.events.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("write pending event: %w", err)
	}

	// Queue hand-off is a hint; the row above is the durable record
	if s.publisher != nil {
		if err := s.publisher.PublishEventCreated(ctx, ev); err != nil {
			slog.Error("event created but queue publish failed",
				"event_id", ev.ID,
				"error", err,
			)
		}
	}

	metrics.EventsIngested.WithLabelValues(msg.Channel, strconv.FormatBool(matched != nil)).Inc()

	slog.Info("pending event created",
		"event_id", ev.ID,
		"user_id", ev.UserID,
		"template_id", ev.TemplateID,
		"channel", msg.Channel,
	)

	return &Result{
		EventID:    ev.ID,
		UserID:     ev.UserID,
		TemplateID: ev.TemplateID,
		Parsed:     parsed,
	}, nil
}

func (s *Service) reject(msg models.InboundMessage, reason string) {
	metrics.IngestRejected.WithLabelValues(msg.Channel, reason).Inc()
}
