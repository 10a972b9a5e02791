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

// Package webhook serves the HTTP surface of the ingestion service: the
// inbound-mail webhook the email provider pushes messages to, and the
// poll endpoint an external scheduler hits to sweep the configured
// mailboxes.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/planazoo/ingestion/internal/htmltext"
	"github.com/planazoo/ingestion/internal/mailbox"
	"github.com/planazoo/ingestion/internal/models"
	"github.com/planazoo/ingestion/internal/pipeline"
)

// SecretHeader gates the inbound webhook; PollSecretHeader gates the
// scheduler endpoint. Either check is skipped when the corresponding
// secret is unconfigured.
const (
	SecretHeader     = "X-Webhook-Secret"
	PollSecretHeader = "X-Poll-Secret"
)

// maxPayloadBytes bounds the webhook request body.
const maxPayloadBytes = 1 << 20

// PollRunner runs one mailbox sweep.
type PollRunner interface {
	Configured() bool
	Run(ctx context.Context) mailbox.RunResult
}

// Handler serves the inbound webhook and poll endpoints.
type Handler struct {
	pipe          *pipeline.Service
	poller        PollRunner
	webhookSecret string
	pollSecret    string
}

// NewHandler creates the HTTP handler. poller may be nil when no
// mailboxes are configured.
func NewHandler(pipe *pipeline.Service, poller PollRunner, webhookSecret, pollSecret string) *Handler {
	return &Handler{
		pipe:          pipe,
		poller:        poller,
		webhookSecret: webhookSecret,
		pollSecret:    pollSecret,
	}
}

// inboundPayload is the pre-formed message the provider POSTs.
type inboundPayload struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// ServeInbound handles one pushed message per invocation.
//
// Responses: 200 {success, pendingEventId, userId}; 400
// invalid_argument; 403 forbidden / from_not_registered; 429
// rate_limit_exceeded; 405 for non-POST; 500 otherwise. OPTIONS
// preflight returns 204 with CORS headers.
func (h *Handler) ServeInbound(w http.ResponseWriter, r *http.Request) {
	setCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	// Secret gate runs before any business logic
	if h.webhookSecret != "" && r.Header.Get(SecretHeader) != h.webhookSecret {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var payload inboundPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument")
		return
	}
	if payload.From == "" || payload.Subject == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument")
		return
	}

	body := payload.Text
	if body == "" && payload.HTML != "" {
		body = htmltext.Strip(payload.HTML)
	}

	result, err := h.pipe.Ingest(r.Context(), models.InboundMessage{
		From:      payload.From,
		Subject:   payload.Subject,
		BodyPlain: body,
		Channel:   models.ChannelWebhook,
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "invalid_argument")
		case errors.Is(err, pipeline.ErrFromNotRegistered):
			writeError(w, http.StatusForbidden, "from_not_registered")
		case errors.Is(err, pipeline.ErrRateLimitExceeded):
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
		default:
			slog.Error("webhook ingestion failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"pendingEventId": result.EventID,
		"userId":         result.UserID,
	})
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SecretHeader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   kind,
	})
}

// Serve starts the HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// starting to accept connections.
func Serve(ctx context.Context, port int, mux *http.ServeMux) (<-chan struct{}, error) {
	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
