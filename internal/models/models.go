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

// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// Channel identifies which adapter produced an inbound message.
const (
	ChannelWebhook = "webhook"
	ChannelMailbox = "mailbox"
)

// InboundMessage is the normalized message handed to the ingestion
// pipeline by a channel adapter.
type InboundMessage struct {
	From      string
	Subject   string
	BodyPlain string
	Channel   string
}

// User is a registered account. Owned by the user-management subsystem;
// read-only here.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// TriggerType enumerates the supported trigger predicates.
type TriggerType string

const (
	TriggerSubjectContains TriggerType = "subject_contains"
	TriggerBodyContains    TriggerType = "body_contains"
)

// Trigger is a predicate over the subject or body of a message. A
// template matches only if all of its non-empty triggers pass.
type Trigger struct {
	Type  TriggerType `json:"type"`
	Value string      `json:"value"`
}

// FieldType enumerates the supported extraction strategies.
type FieldType string

const (
	FieldRegex      FieldType = "regex"
	FieldAfterLabel FieldType = "after_label"
	FieldComposite  FieldType = "composite"
)

// FieldSpec is one named extraction rule inside a template. Type selects
// the variant; only the fields belonging to that variant are meaningful.
type FieldSpec struct {
	Type FieldType `json:"type"`

	// regex
	Source  string `json:"source,omitempty"` // "subject" or "body"
	Pattern string `json:"pattern,omitempty"`
	Group   int    `json:"group,omitempty"`

	// after_label
	Label    string `json:"label,omitempty"`
	StopAt   string `json:"stop_at,omitempty"`
	MaxLines int    `json:"max_lines,omitempty"`

	// composite
	Template     string   `json:"template,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// EmailTemplate is a prioritized, data-driven parsing rule set. Templates
// are created by an external administrative tool and re-read on every
// ingestion; the core never writes them.
type EmailTemplate struct {
	ID         string
	Active     bool
	Priority   int // evaluation order, ascending; 0 means the default of 10
	Triggers   []Trigger
	Fields     map[string]FieldSpec
	FieldOrder []string
	EventType  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusPending is the only status the core ever writes. Downstream
// consumers move events out of it.
const StatusPending = "pending"

// PendingEvent is the durable record created once per admitted inbound
// message. Parsed is nil when no template matched.
type PendingEvent struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	FromEmail  string            `json:"fromEmail"`
	Subject    string            `json:"subject"`
	BodyPlain  string            `json:"bodyPlain"`
	Parsed     map[string]string `json:"parsed,omitempty"`
	TemplateID string            `json:"templateId,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
