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

// Package template implements the data-driven parsing rules applied to
// inbound messages: trigger matching to select a template and field
// extraction to produce a flat key→value record from it.
package template

import (
	"sort"
	"strings"

	"github.com/planazoo/ingestion/internal/models"
)

// defaultPriority is used when a template declares no priority.
const defaultPriority = 10

// Match returns the first active template whose triggers all pass
// against the given subject and body, or nil when none matches.
// Templates are evaluated in ascending priority order with ties kept in
// their incoming (stable) order. Trigger matching is case-insensitive
// substring containment; triggers with an empty value are ignored; a
// template with zero triggers never matches.
func Match(templates []models.EmailTemplate, subject, body string) *models.EmailTemplate {
	candidates := make([]models.EmailTemplate, 0, len(templates))
	for _, t := range templates {
		if t.Active {
			candidates = append(candidates, t)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return effectivePriority(candidates[i]) < effectivePriority(candidates[j])
	})

	subjectLower := strings.ToLower(subject)
	bodyLower := strings.ToLower(body)

	for i := range candidates {
		if triggersPass(&candidates[i], subjectLower, bodyLower) {
			return &candidates[i]
		}
	}
	return nil
}

func effectivePriority(t models.EmailTemplate) int {
	if t.Priority == 0 {
		return defaultPriority
	}
	return t.Priority
}

// triggersPass evaluates all triggers as a logical AND. Both text
// arguments must already be lowercased.
func triggersPass(t *models.EmailTemplate, subjectLower, bodyLower string) bool {
	if len(t.Triggers) == 0 {
		return false
	}

	for _, trig := range t.Triggers {
		if trig.Value == "" {
			continue
		}
		needle := strings.ToLower(trig.Value)
		switch trig.Type {
		case models.TriggerSubjectContains:
			if !strings.Contains(subjectLower, needle) {
				return false
			}
		case models.TriggerBodyContains:
			if !strings.Contains(bodyLower, needle) {
				return false
			}
		default:
			// Unknown trigger type: malformed entry, treated as not applicable
			return false
		}
	}
	return true
}
