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

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseMailboxList(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    []MailboxConfig
		wantErr bool
	}{
		{
			name:  "single entry",
			value: "inbox@planazoo.app:s3cret@imap.example.com:993",
			want: []MailboxConfig{{
				Address:  "inbox@planazoo.app",
				Host:     "imap.example.com",
				Port:     993,
				Username: "inbox@planazoo.app",
				Password: "s3cret",
			}},
		},
		{
			name:  "port defaults to 993",
			value: "user:pw@imap.example.com",
			want: []MailboxConfig{{
				Address:  "user",
				Host:     "imap.example.com",
				Port:     993,
				Username: "user",
				Password: "pw",
			}},
		},
		{
			name:  "comma-separated list",
			value: "a:pw@h1:993, b:pw@h2:143",
			want: []MailboxConfig{
				{Address: "a", Host: "h1", Port: 993, Username: "a", Password: "pw"},
				{Address: "b", Host: "h2", Port: 143, Username: "b", Password: "pw"},
			},
		},
		{
			name:  "json array",
			value: `["a:pw@h1:993","b:pw@h2:993"]`,
			want: []MailboxConfig{
				{Address: "a", Host: "h1", Port: 993, Username: "a", Password: "pw"},
				{Address: "b", Host: "h2", Port: 993, Username: "b", Password: "pw"},
			},
		},
		{
			name:  "password may contain colons",
			value: "user:p:w:d@imap.example.com:993",
			want: []MailboxConfig{{
				Address:  "user",
				Host:     "imap.example.com",
				Port:     993,
				Username: "user",
				Password: "p:w:d",
			}},
		},
		{
			name:  "empty value",
			value: "   ",
			want:  nil,
		},
		{name: "missing host", value: "user:pw", wantErr: true},
		{name: "missing username", value: ":pw@h:993", wantErr: true},
		{name: "bad port", value: "user:pw@h:no", wantErr: true},
		{name: "bad json", value: "[not json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMailboxList(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("got %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_URL", "postgres://localhost/ingestion")
	t.Setenv("WEBHOOK_SECRET", "hook")
	t.Setenv("DAILY_EVENT_LIMIT", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://localhost/ingestion" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.WebhookSecret != "hook" {
		t.Errorf("WebhookSecret = %q", cfg.WebhookSecret)
	}
	if cfg.DailyEventLimit != 10 {
		t.Errorf("DailyEventLimit = %d, want 10", cfg.DailyEventLimit)
	}
	if cfg.EventsQueue != "pending_events" || cfg.PollPageSize != 25 || cfg.Port != 8080 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Mailboxes) != 0 {
		t.Errorf("Mailboxes = %+v, want none", cfg.Mailboxes)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  url: postgres://localhost/ingestion
redis:
  queues:
    events: custom_queue
secrets:
  webhook: ${TEST_HOOK_SECRET}
ingestion:
  daily_event_limit: 25
mailboxes:
  - host: imap.example.com
    username: inbox@planazoo.app
    password: pw
  - host: ""
    username: disabled
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEST_HOOK_SECRET", "expanded")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.WebhookSecret != "expanded" {
		t.Errorf("WebhookSecret = %q, want env-expanded value", cfg.WebhookSecret)
	}
	if cfg.EventsQueue != "custom_queue" || cfg.DailyEventLimit != 25 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Mailboxes) != 1 {
		t.Fatalf("Mailboxes = %+v, want the incomplete entry skipped", cfg.Mailboxes)
	}
	mb := cfg.Mailboxes[0]
	if mb.Port != 993 || mb.Address != "inbox@planazoo.app" {
		t.Errorf("mailbox not normalized: %+v", mb)
	}
}

// TestLoad_EnvWinsOverYAML pins the precedence direction: a set env
// var beats the file value for every overridable field.
func TestLoad_EnvWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  url: postgres://yaml/ingestion
redis:
  url: redis://yaml:6379/0
  queues:
    events: yaml_queue
secrets:
  webhook: yaml-hook
  poll: yaml-poll
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DATABASE_URL", "postgres://env/ingestion")
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("EVENTS_QUEUE", "env_queue")
	t.Setenv("WEBHOOK_SECRET", "env-hook")
	t.Setenv("POLL_SECRET", "env-poll")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://env/ingestion" {
		t.Errorf("DatabaseURL = %q, want env value", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://env:6379/0" {
		t.Errorf("RedisURL = %q, want env value", cfg.RedisURL)
	}
	if cfg.EventsQueue != "env_queue" {
		t.Errorf("EventsQueue = %q, want env value", cfg.EventsQueue)
	}
	if cfg.WebhookSecret != "env-hook" || cfg.PollSecret != "env-poll" {
		t.Errorf("secrets = %q/%q, want env values", cfg.WebhookSecret, cfg.PollSecret)
	}
}

func TestLoad_MailboxEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  url: postgres://localhost/ingestion
mailboxes:
  - host: imap.yaml.example
    username: fromyaml
    password: pw
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("INBOUND_MAILBOXES", "fromenv:pw@imap.env.example:993")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Mailboxes) != 1 || cfg.Mailboxes[0].Username != "fromenv" {
		t.Errorf("Mailboxes = %+v, want env list only", cfg.Mailboxes)
	}
}
