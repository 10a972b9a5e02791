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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planazoo/ingestion/internal/models"
)

// EventStore persists pending email events. Rows are created once by
// the ingestion pipeline and mutated only by downstream consumers that
// move them out of the pending status.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an event store backed by the given Postgres pool.
func NewEventStore(ctx context.Context, pool *pgxpool.Pool) (*EventStore, error) {
	s := &EventStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure events schema: %w", err)
	}
	return s, nil
}

func (s *EventStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pending_email_events (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			from_email  TEXT NOT NULL,
			subject     TEXT DEFAULT '',
			body_plain  TEXT DEFAULT '',
			parsed      JSONB,
			template_id TEXT,
			status      TEXT DEFAULT 'pending',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_events_user_created
			ON pending_email_events(user_id, created_at)
	`)
	return err
}

// Create inserts a new pending event. Timestamps are assigned by the
// database and written back into ev. There is deliberately no
// content-based conflict handling: re-delivery of the same message
// creates a second row.
func (s *EventStore) Create(ctx context.Context, ev *models.PendingEvent) error {
	var parsedJSON []byte
	if ev.Parsed != nil {
		var err error
		parsedJSON, err = json.Marshal(ev.Parsed)
		if err != nil {
			return fmt.Errorf("marshal parsed fields: %w", err)
		}
	}

	var templateID *string
	if ev.TemplateID != "" {
		templateID = &ev.TemplateID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO pending_email_events
			(id, user_id, from_email, subject, body_plain, parsed, template_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, ev.ID, ev.UserID, ev.FromEmail, ev.Subject, ev.BodyPlain, parsedJSON, templateID, ev.Status)

	if err := row.Scan(&ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return fmt.Errorf("insert pending event: %w", err)
	}
	return nil
}

// CountSince returns how many events exist for a user created at or
// after the given instant. The quota guard calls this with UTC midnight;
// it is a full count per check, not a maintained counter — fine at the
// configured daily ceiling, revisit if limits grow by orders of
// magnitude.
func (s *EventStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM pending_email_events
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}
