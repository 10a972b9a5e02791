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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OAuthConfig holds client-credentials settings for mailboxes that
// authenticate via XOAUTH2 instead of a password.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

// MailboxConfig holds the credentials and connection settings for a
// single polled mailbox.
type MailboxConfig struct {
	Address  string       `yaml:"address"`
	Host     string       `yaml:"host"`
	Port     int          `yaml:"port"`
	Username string       `yaml:"username"`
	Password string       `yaml:"password"`
	StartTLS bool         `yaml:"starttls"` // plain port with STARTTLS upgrade instead of implicit TLS
	OAuth    *OAuthConfig `yaml:"oauth"`
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Mailboxes []MailboxConfig

	// Persistence
	DatabaseURL string
	RedisURL    string
	EventsQueue string

	// Endpoint secrets; empty disables the corresponding check
	WebhookSecret string
	PollSecret    string

	// Pipeline limits
	DailyEventLimit int
	PollPageSize    int

	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Mailboxes []MailboxConfig `yaml:"mailboxes"`
	Database  struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Secrets struct {
		Webhook string `yaml:"webhook"`
		Poll    string `yaml:"poll"`
	} `yaml:"secrets"`
	Ingestion struct {
		DailyEventLimit int `yaml:"daily_event_limit"`
		PollPageSize    int `yaml:"poll_page_size"`
	} `yaml:"ingestion"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The config file is optional: a deployment that
// only serves the webhook can run from environment variables alone, and
// zero configured mailboxes is valid (the poll endpoint reports
// not_configured).
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		// Env-only deployment
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Env vars always win over the file; YAML values are the fallback
	cfg := &Config{
		DatabaseURL:     firstNonEmpty(os.Getenv("DATABASE_URL"), raw.Database.URL),
		RedisURL:        firstNonEmpty(os.Getenv("REDIS_URL"), raw.Redis.URL, "redis://localhost:6379/0"),
		EventsQueue:     firstNonEmpty(os.Getenv("EVENTS_QUEUE"), raw.Redis.Queues.Events, "pending_events"),
		WebhookSecret:   firstNonEmpty(os.Getenv("WEBHOOK_SECRET"), raw.Secrets.Webhook),
		PollSecret:      firstNonEmpty(os.Getenv("POLL_SECRET"), raw.Secrets.Poll),
		DailyEventLimit: envOrDefaultInt("DAILY_EVENT_LIMIT", defaultInt(raw.Ingestion.DailyEventLimit, 50)),
		PollPageSize:    envOrDefaultInt("POLL_PAGE_SIZE", defaultInt(raw.Ingestion.PollPageSize, 25)),
		Port:            envOrDefaultInt("PORT", 8080),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// INBOUND_MAILBOXES overrides the YAML mailbox list entirely
	if v := os.Getenv("INBOUND_MAILBOXES"); v != "" {
		boxes, err := ParseMailboxList(v)
		if err != nil {
			return nil, fmt.Errorf("parse INBOUND_MAILBOXES: %w", err)
		}
		cfg.Mailboxes = boxes
	} else {
		for _, mb := range raw.Mailboxes {
			// Skip mailboxes with empty connection settings (commented out in YAML)
			if mb.Host == "" || mb.Username == "" {
				continue
			}
			cfg.Mailboxes = append(cfg.Mailboxes, normalizeMailbox(mb))
		}
	}

	return cfg, nil
}

// ParseMailboxList parses a mailbox list supplied as a single value, a
// comma-separated list, or a JSON array. Each entry has the form
// "user:password@host:port" (port optional, default 993).
func ParseMailboxList(value string) ([]MailboxConfig, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	var entries []string
	if strings.HasPrefix(value, "[") {
		if err := json.Unmarshal([]byte(value), &entries); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %w", err)
		}
	} else {
		entries = strings.Split(value, ",")
	}

	var boxes []MailboxConfig
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		mb, err := parseMailboxEntry(e)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, mb)
	}
	return boxes, nil
}

// parseMailboxEntry parses a "user:password@host:port" mailbox entry.
func parseMailboxEntry(entry string) (MailboxConfig, error) {
	at := strings.LastIndex(entry, "@")
	if at < 0 {
		return MailboxConfig{}, fmt.Errorf("mailbox entry %q: missing @host", entry)
	}

	creds, hostPort := entry[:at], entry[at+1:]

	var mb MailboxConfig
	if colon := strings.Index(creds, ":"); colon >= 0 {
		mb.Username = creds[:colon]
		mb.Password = creds[colon+1:]
	} else {
		mb.Username = creds
	}
	if mb.Username == "" {
		return MailboxConfig{}, fmt.Errorf("mailbox entry %q: missing username", entry)
	}

	if colon := strings.LastIndex(hostPort, ":"); colon >= 0 {
		mb.Host = hostPort[:colon]
		port, err := strconv.Atoi(hostPort[colon+1:])
		if err != nil {
			return MailboxConfig{}, fmt.Errorf("mailbox entry %q: invalid port: %w", entry, err)
		}
		mb.Port = port
	} else {
		mb.Host = hostPort
	}
	if mb.Host == "" {
		return MailboxConfig{}, fmt.Errorf("mailbox entry %q: missing host", entry)
	}

	return normalizeMailbox(mb), nil
}

func normalizeMailbox(mb MailboxConfig) MailboxConfig {
	if mb.Port == 0 {
		mb.Port = 993
	}
	if mb.Address == "" {
		mb.Address = mb.Username
	}
	return mb
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func defaultInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
