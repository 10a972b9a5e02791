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

package mailbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/planazoo/ingestion/internal/htmltext"
	"github.com/planazoo/ingestion/internal/metrics"
	"github.com/planazoo/ingestion/internal/models"
	"github.com/planazoo/ingestion/internal/pipeline"
)

// DedupFilter guards against re-ingesting a message whose mark-seen
// commit failed on a previous run.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// MailboxResult tallies one mailbox in a poll run. A mailbox that could
// not be read carries only its error.
type MailboxResult struct {
	Mailbox   string
	Processed int
	Errors    int
	Total     int
	Err       string
}

// MarshalJSON emits either {mailbox, processed, errors, total} or
// {mailbox, error}, matching what the scheduler endpoint reports.
func (r MailboxResult) MarshalJSON() ([]byte, error) {
	if r.Err != "" {
		return json.Marshal(struct {
			Mailbox string `json:"mailbox"`
			Error   string `json:"error"`
		}{r.Mailbox, r.Err})
	}
	return json.Marshal(struct {
		Mailbox   string `json:"mailbox"`
		Processed int    `json:"processed"`
		Errors    int    `json:"errors"`
		Total     int    `json:"total"`
	}{r.Mailbox, r.Processed, r.Errors, r.Total})
}

// RunResult summarises one poll run across all mailboxes.
type RunResult struct {
	Processed int             `json:"processed"`
	Errors    int             `json:"errors"`
	ByMailbox []MailboxResult `json:"byMailbox"`
}

// Poller sweeps the configured mailboxes, one at a time.
type Poller struct {
	sources  []Source
	pipe     *pipeline.Service
	dedup    DedupFilter // optional
	pageSize int
}

// NewPoller creates a poller over the given sources. pageSize bounds
// how many unread messages are taken from each mailbox per run.
func NewPoller(sources []Source, pipe *pipeline.Service, dedup DedupFilter, pageSize int) *Poller {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &Poller{
		sources:  sources,
		pipe:     pipe,
		dedup:    dedup,
		pageSize: pageSize,
	}
}

// Configured reports whether any mailbox is configured.
func (p *Poller) Configured() bool {
	return len(p.sources) > 0
}

// Run polls every mailbox sequentially. A mailbox whose authentication
// or listing fails is recorded and the run continues with the next one.
func (p *Poller) Run(ctx context.Context) RunResult {
	var result RunResult

	for _, src := range p.sources {
		mr := p.pollMailbox(ctx, src)
		result.ByMailbox = append(result.ByMailbox, mr)
		result.Processed += mr.Processed
		result.Errors += mr.Errors
		if mr.Err != "" {
			result.Errors++
		}
	}

	slog.Info("mailbox poll complete",
		"mailboxes", len(p.sources),
		"processed", result.Processed,
		"errors", result.Errors,
	)

	return result
}

// pollMailbox runs the per-mailbox state machine: list, then for each
// message fetch → pipeline → mark-consumed. Messages are handled
// sequentially so mark-seen never races the unread listing.
func (p *Poller) pollMailbox(ctx context.Context, src Source) MailboxResult {
	mr := MailboxResult{Mailbox: src.Address()}

	session, err := src.Open(ctx)
	if err != nil {
		slog.Error("mailbox unavailable", "mailbox", mr.Mailbox, "error", err)
		metrics.PollMailboxFailures.WithLabelValues(mr.Mailbox).Inc()
		mr.Err = err.Error()
		return mr
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("mailbox logout failed", "mailbox", mr.Mailbox, "error", err)
		}
	}()

	messages, err := session.ListUnread(ctx, p.pageSize)
	if err != nil {
		slog.Error("listing unread failed", "mailbox", mr.Mailbox, "error", err)
		metrics.PollMailboxFailures.WithLabelValues(mr.Mailbox).Inc()
		mr.Err = err.Error()
		return mr
	}
	mr.Total = len(messages)

	for _, msg := range messages {
		p.handleMessage(ctx, session, msg, &mr)
	}

	return mr
}

// handleMessage runs one message through the pipeline and always marks
// it consumed afterwards — a message that fails validation is not
// retried, it would fail the same way forever.
func (p *Poller) handleMessage(ctx context.Context, session Session, msg Message, mr *MailboxResult) {
	if p.dedup != nil && msg.MessageID != "" {
		isNew, err := p.dedup.IsNew(ctx, msg.MessageID)
		if err != nil {
			slog.Warn("dedup check failed, proceeding", "mailbox", mr.Mailbox, "error", err)
		} else if !isNew {
			slog.Debug("skipping already-ingested message",
				"mailbox", mr.Mailbox,
				"message_id", msg.MessageID,
			)
			p.markSeen(ctx, session, msg, mr)
			return
		}
	}

	body := msg.Text
	if body == "" && msg.HTML != "" {
		body = htmltext.Strip(msg.HTML)
	}

	_, err := p.pipe.Ingest(ctx, models.InboundMessage{
		From:      msg.From,
		Subject:   msg.Subject,
		BodyPlain: body,
		Channel:   models.ChannelMailbox,
	})
	if err != nil {
		slog.Error("message failed ingestion, consuming anyway",
			"mailbox", mr.Mailbox,
			"uid", msg.UID,
			"error", err,
		)
		metrics.PollMessages.WithLabelValues(mr.Mailbox, "failed").Inc()
		mr.Errors++
	} else {
		metrics.PollMessages.WithLabelValues(mr.Mailbox, "ingested").Inc()
		mr.Processed++
	}

	p.markSeen(ctx, session, msg, mr)
}

func (p *Poller) markSeen(ctx context.Context, session Session, msg Message, mr *MailboxResult) {
	if err := session.MarkSeen(ctx, msg.UID); err != nil {
		slog.Error("mark seen failed, message will be listed again",
			"mailbox", mr.Mailbox,
			"uid", msg.UID,
			"error", err,
		)
		mr.Errors++
	}
}
