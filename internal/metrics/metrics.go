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

// Package metrics defines the Prometheus instruments for the ingestion
// pipeline, exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts pending events written, by channel and
	// whether a template matched.
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_events_ingested_total",
			Help: "Pending events created per channel",
		},
		[]string{"channel", "matched"},
	)

	// IngestRejected counts messages the pipeline refused, by error kind.
	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_ingest_rejected_total",
			Help: "Inbound messages rejected before an event was written",
		},
		[]string{"channel", "reason"},
	)

	// PollMessages counts per-message poll outcomes.
	PollMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_poll_messages_total",
			Help: "Messages handled by the mailbox poller",
		},
		[]string{"mailbox", "outcome"},
	)

	// PollMailboxFailures counts mailboxes whose authentication or
	// listing failed in a poll run.
	PollMailboxFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_poll_failures_total",
			Help: "Poll runs in which a mailbox could not be read",
		},
		[]string{"mailbox"},
	)
)
