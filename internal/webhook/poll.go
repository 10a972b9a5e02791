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

package webhook

import "net/http"

// ServePoll handles scheduler-driven mailbox sweeps. GET and POST are
// both accepted so any scheduler can drive it. Mailbox failures are
// reported inside byMailbox, never as an HTTP error — one bad mailbox
// must not look like a failed run to the scheduler.
//
// Responses: 200 {success, processed, errors, byMailbox}; 503
// not_configured when no mailbox is configured; 403 forbidden on a bad
// secret; 405 otherwise.
func (h *Handler) ServePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	if h.pollSecret != "" && r.Header.Get(PollSecretHeader) != h.pollSecret {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if h.poller == nil || !h.poller.Configured() {
		writeError(w, http.StatusServiceUnavailable, "not_configured")
		return
	}

	result := h.poller.Run(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": result.Processed,
		"errors":    result.Errors,
		"byMailbox": result.ByMailbox,
	})
}
