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

// Package identity maps raw From addresses to registered users.
//
// Only the literal registered address authorizes ingestion. Plus-alias
// addresses (user+tag@domain) are NOT resolved to their base for the
// lookup — a compromised alias must not be able to impersonate the
// primary owner. The base address is still computed for logging so
// alias traffic is visible.
package identity

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/planazoo/ingestion/internal/models"
)

// UserLookup finds a registered user by their exact primary email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Resolver resolves inbound From addresses against registered users.
type Resolver struct {
	users UserLookup
}

// NewResolver creates a resolver over the given user lookup.
func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Normalize reduces a raw From value to a bare, lowercase, trimmed
// address. Display-name forms like "Ana <Ana@Example.com>" yield
// "ana@example.com". Normalizing an already-normalized address returns
// it unchanged.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if addr, err := mail.ParseAddress(raw); err == nil {
		raw = addr.Address
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// BaseAddress strips a plus-alias tag from the local part of an
// already-normalized address: "user+tag@example.com" → "user@example.com".
// Used for observability only, never for matching.
func BaseAddress(normalized string) string {
	at := strings.LastIndex(normalized, "@")
	if at < 0 {
		return normalized
	}
	local, domain := normalized[:at], normalized[at:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	return local + domain
}

// Resolve normalizes the raw From value and looks up the user registered
// under exactly that address. Returns (nil, nil) when the sender is not
// registered.
func (r *Resolver) Resolve(ctx context.Context, rawFrom string) (*models.User, error) {
	normalized := Normalize(rawFrom)
	if normalized == "" {
		return nil, nil
	}

	user, err := r.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if user == nil {
		if base := BaseAddress(normalized); base != normalized {
			// Alias traffic from an unregistered alias — visible, not matched
			slog.Info("unregistered sender is an alias",
				"from", normalized,
				"base", base,
			)
		}
		return nil, nil
	}

	return user, nil
}
