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

// Package mailbox polls configured mailboxes for unread messages and
// feeds each one through the shared ingestion pipeline. Mailboxes are
// processed strictly sequentially and failures are isolated per
// mailbox; the unread flag on the remote server is the only state that
// survives between runs.
package mailbox

import "context"

// Message is one unread message listed from a mailbox, already reduced
// to the parts the pipeline needs.
type Message struct {
	UID       uint32
	MessageID string
	From      string // bare address from the From header
	Subject   string
	Text      string // text/plain part, if any
	HTML      string // text/html part, if any
}

// Source is one configured mailbox the poller watches.
type Source interface {
	// Address identifies the mailbox in results and logs.
	Address() string

	// Open authenticates and returns a session. Authentication
	// failures are reported per mailbox and never abort the batch.
	Open(ctx context.Context) (Session, error)
}

// Session is an open connection to a mailbox. ListUnread is the
// bounded page; MarkSeen is the per-message commit step — a message
// already committed stays committed if a later message fails.
type Session interface {
	ListUnread(ctx context.Context, limit int) ([]Message, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}
