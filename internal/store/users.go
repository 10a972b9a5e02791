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

// Package store provides the Postgres-backed persistence layer: the
// read-only user and template stores and the pending-event store the
// ingestion pipeline writes to.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planazoo/ingestion/internal/models"
)

// UserStore reads registered users. The table is owned by the
// user-management subsystem; ingestion never writes to it.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a user store backed by the given Postgres pool.
// It ensures the users table exists so the service can start against a
// fresh database.
func NewUserStore(ctx context.Context, pool *pgxpool.Pool) (*UserStore, error) {
	s := &UserStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure users schema: %w", err)
	}
	return s, nil
}

func (s *UserStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			email        TEXT NOT NULL UNIQUE,
			display_name TEXT DEFAULT '',
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)
	`)
	return err
}

// GetByEmail returns the user whose stored primary email equals the
// given address exactly, or nil when there is no match.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, display_name, created_at
		FROM users
		WHERE email = $1
	`, email)

	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
