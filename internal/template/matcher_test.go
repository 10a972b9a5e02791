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

package template

import (
	"testing"

	"github.com/planazoo/ingestion/internal/models"
)

func subjectTrigger(v string) models.Trigger {
	return models.Trigger{Type: models.TriggerSubjectContains, Value: v}
}

func bodyTrigger(v string) models.Trigger {
	return models.Trigger{Type: models.TriggerBodyContains, Value: v}
}

func TestMatch_SubjectContains(t *testing.T) {
	templates := []models.EmailTemplate{
		{ID: "booking", Active: true, Triggers: []models.Trigger{subjectTrigger("reserva")}},
	}

	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"case-insensitive hit", "Nueva Reserva Confirmada", "booking"},
		{"no hit", "Factura de marzo", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(templates, tt.subject, "")
			if tt.want == "" {
				if got != nil {
					t.Errorf("matched %s, want no match", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.want {
				t.Errorf("got %v, want template %s", got, tt.want)
			}
		})
	}
}

func TestMatch_PriorityOrder(t *testing.T) {
	// Both templates match; the lower priority number wins even though
	// it is listed second.
	templates := []models.EmailTemplate{
		{ID: "generic", Active: true, Priority: 10, Triggers: []models.Trigger{subjectTrigger("pago")}},
		{ID: "specific", Active: true, Priority: 1, Triggers: []models.Trigger{subjectTrigger("pago")}},
	}

	got := Match(templates, "Pago recibido", "")
	if got == nil || got.ID != "specific" {
		t.Errorf("got %v, want specific (priority 1 before 10)", got)
	}
}

func TestMatch_ZeroPriorityDefaults(t *testing.T) {
	// An unset priority is treated as 10, so an explicit 5 beats it.
	templates := []models.EmailTemplate{
		{ID: "unset", Active: true, Triggers: []models.Trigger{subjectTrigger("pago")}},
		{ID: "five", Active: true, Priority: 5, Triggers: []models.Trigger{subjectTrigger("pago")}},
	}

	got := Match(templates, "pago", "")
	if got == nil || got.ID != "five" {
		t.Errorf("got %v, want five", got)
	}
}

func TestMatch_AllTriggersMustPass(t *testing.T) {
	templates := []models.EmailTemplate{
		{ID: "strict", Active: true, Triggers: []models.Trigger{
			subjectTrigger("reserva"),
			bodyTrigger("confirmada"),
		}},
	}

	if got := Match(templates, "Reserva #42", "pendiente de pago"); got != nil {
		t.Errorf("matched %s with only one trigger passing", got.ID)
	}
	if got := Match(templates, "Reserva #42", "Su reserva queda confirmada"); got == nil {
		t.Error("expected match when both triggers pass")
	}
}

func TestMatch_SkipsInactiveAndEmpty(t *testing.T) {
	templates := []models.EmailTemplate{
		{ID: "off", Active: false, Triggers: []models.Trigger{subjectTrigger("reserva")}},
		{ID: "no-triggers", Active: true},
	}

	if got := Match(templates, "reserva confirmada", "reserva"); got != nil {
		t.Errorf("matched %s, want no match", got.ID)
	}
}

func TestMatch_EmptyTriggerValueIgnored(t *testing.T) {
	// An empty trigger value is skipped; the remaining trigger decides.
	templates := []models.EmailTemplate{
		{ID: "t", Active: true, Triggers: []models.Trigger{
			subjectTrigger(""),
			bodyTrigger("total"),
		}},
	}

	if got := Match(templates, "whatever", "Total: 42"); got == nil || got.ID != "t" {
		t.Errorf("got %v, want t", got)
	}
}

func TestMatch_UnknownTriggerType(t *testing.T) {
	templates := []models.EmailTemplate{
		{ID: "bad", Active: true, Triggers: []models.Trigger{
			{Type: "header_contains", Value: "x"},
		}},
	}

	if got := Match(templates, "x", "x"); got != nil {
		t.Errorf("matched %s via unknown trigger type", got.ID)
	}
}
