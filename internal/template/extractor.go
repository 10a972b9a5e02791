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
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/planazoo/ingestion/internal/models"
)

// fieldExtractor is the single interface all field variants are
// dispatched through. got holds the fields extracted so far, in
// field_order; ok is false when the field yields nothing and must be
// omitted from the result.
type fieldExtractor interface {
	extract(subject, body string, got map[string]string) (value string, ok bool)
}

// Extract runs the template's field definitions in field_order against
// the message and returns the flat extraction record. Fields that fail
// or yield empty values are omitted, never set to an empty entry. When
// the template declares an event_type it is copied into the record
// verbatim. A nil template yields a nil map.
func Extract(t *models.EmailTemplate, subject, body string) map[string]string {
	if t == nil {
		return nil
	}

	result := make(map[string]string)
	for _, name := range t.FieldOrder {
		spec, declared := t.Fields[name]
		if !declared {
			continue
		}

		ex, err := compileField(spec)
		if err != nil {
			slog.Warn("skipping malformed field spec",
				"template_id", t.ID,
				"field", name,
				"error", err,
			)
			continue
		}

		if value, ok := ex.extract(subject, body, result); ok {
			result[name] = value
		}
	}

	if t.EventType != "" {
		result["event_type"] = t.EventType
	}

	return result
}

// compileField validates a field spec's shape and returns the concrete
// extractor for its variant. Malformed specs are errors so the caller
// can skip them without failing the template.
func compileField(spec models.FieldSpec) (fieldExtractor, error) {
	switch spec.Type {
	case models.FieldRegex:
		if spec.Pattern == "" {
			return nil, fmt.Errorf("regex field without pattern")
		}
		if spec.Source != "subject" && spec.Source != "body" {
			return nil, fmt.Errorf("regex field with source %q", spec.Source)
		}
		return &regexField{source: spec.Source, pattern: spec.Pattern, group: spec.Group}, nil

	case models.FieldAfterLabel:
		if spec.Label == "" {
			return nil, fmt.Errorf("after_label field without label")
		}
		return &afterLabelField{label: spec.Label, stopAt: spec.StopAt, maxLines: spec.MaxLines}, nil

	case models.FieldComposite:
		if spec.Template == "" {
			return nil, fmt.Errorf("composite field without template")
		}
		return &compositeField{template: spec.Template, deps: spec.Dependencies}, nil

	default:
		return nil, fmt.Errorf("unknown field type %q", spec.Type)
	}
}

// regexField extracts one capture group from the subject or body. An
// invalid pattern or a non-match yields no value rather than an error.
type regexField struct {
	source  string
	pattern string
	group   int
}

func (f *regexField) extract(subject, body string, _ map[string]string) (string, bool) {
	re, err := regexp.Compile(f.pattern)
	if err != nil {
		return "", false
	}

	text := body
	if f.source == "subject" {
		text = subject
	}

	m := re.FindStringSubmatch(text)
	if m == nil || f.group < 0 || f.group >= len(m) {
		return "", false
	}

	value := strings.TrimSpace(m[f.group])
	return value, value != ""
}

// afterLabelField extracts the block of non-empty lines following the
// first case-insensitive occurrence of label in the body. The remainder
// of the label's own line counts as the first candidate line. Collection
// stops at the first empty line after content, at stopAt (text truncated
// before its first occurrence), or after maxLines lines (maxLines <= 0
// means no cap). Lines are joined with single spaces.
type afterLabelField struct {
	label    string
	stopAt   string
	maxLines int
}

func (f *afterLabelField) extract(_, body string, _ map[string]string) (string, bool) {
	idx := strings.Index(strings.ToLower(body), strings.ToLower(f.label))
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(f.label):]

	var lines []string
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}

		if f.stopAt != "" {
			if stop := strings.Index(strings.ToLower(line), strings.ToLower(f.stopAt)); stop >= 0 {
				if head := strings.TrimSpace(line[:stop]); head != "" {
					lines = append(lines, head)
				}
				break
			}
		}

		lines = append(lines, line)
		if f.maxLines > 0 && len(lines) >= f.maxLines {
			break
		}
	}

	value := strings.Join(lines, " ")
	return value, value != ""
}

// compositeField substitutes {dep} placeholders in its template string
// with previously extracted values. Placeholder matching is
// case-insensitive; a dependency absent from the running record
// substitutes as the empty string.
type compositeField struct {
	template string
	deps     []string
}

func (f *compositeField) extract(_, _ string, got map[string]string) (string, bool) {
	value := f.template
	for _, dep := range f.deps {
		re, err := regexp.Compile(`(?i)\{` + regexp.QuoteMeta(dep) + `\}`)
		if err != nil {
			continue
		}
		value = re.ReplaceAllLiteralString(value, got[dep])
	}

	return value, strings.TrimSpace(value) != ""
}
