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
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planazoo/ingestion/internal/models"
)

// TemplateStore reads email templates. Templates are created and edited
// by an external administrative tool; ingestion re-reads them on every
// message and never caches or writes them.
type TemplateStore struct {
	pool *pgxpool.Pool
}

// NewTemplateStore creates a template store backed by the given Postgres pool.
func NewTemplateStore(ctx context.Context, pool *pgxpool.Pool) (*TemplateStore, error) {
	s := &TemplateStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure templates schema: %w", err)
	}
	return s, nil
}

func (s *TemplateStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS email_templates (
			id          TEXT PRIMARY KEY,
			active      BOOLEAN DEFAULT FALSE,
			priority    INT DEFAULT 10,
			triggers    JSONB DEFAULT '[]',
			fields      JSONB DEFAULT '{}',
			field_order JSONB DEFAULT '[]',
			event_type  TEXT DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_templates_active ON email_templates(active)
	`)
	return err
}

// ListActive returns all templates flagged active, ordered by ascending
// priority with ties broken by id for a stable evaluation order. A row
// whose JSON columns fail to decode is skipped with a warning rather
// than failing the batch.
func (s *TemplateStore) ListActive(ctx context.Context) ([]models.EmailTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, active, priority, triggers, fields, field_order, event_type,
		       created_at, updated_at
		FROM email_templates
		WHERE active = TRUE
		ORDER BY priority, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.EmailTemplate
	for rows.Next() {
		var (
			t                                   models.EmailTemplate
			triggersJSON, fieldsJSON, orderJSON []byte
		)
		if err := rows.Scan(
			&t.ID, &t.Active, &t.Priority,
			&triggersJSON, &fieldsJSON, &orderJSON,
			&t.EventType, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}

		if err := decodeTemplateJSON(&t, triggersJSON, fieldsJSON, orderJSON); err != nil {
			slog.Warn("skipping malformed template", "template_id", t.ID, "error", err)
			continue
		}

		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func decodeTemplateJSON(t *models.EmailTemplate, triggersJSON, fieldsJSON, orderJSON []byte) error {
	if len(triggersJSON) > 0 {
		if err := json.Unmarshal(triggersJSON, &t.Triggers); err != nil {
			return fmt.Errorf("decode triggers: %w", err)
		}
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &t.Fields); err != nil {
			return fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(orderJSON) > 0 {
		if err := json.Unmarshal(orderJSON, &t.FieldOrder); err != nil {
			return fmt.Errorf("decode field_order: %w", err)
		}
	}
	return nil
}
