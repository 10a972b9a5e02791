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

// Planazoo — One-Shot Mailbox Poll Command
//
// Standalone CLI tool that runs a single mailbox sweep through the same
// pipeline the service uses. Intended for cron-driven deployments that
// have no HTTP scheduler.
//
// Usage:
//
//	go run ./cmd/poll/ [--mailboxes user:pass@host:993,...] [--page-size 25]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/planazoo/ingestion/internal/config"
	"github.com/planazoo/ingestion/internal/dedup"
	"github.com/planazoo/ingestion/internal/identity"
	"github.com/planazoo/ingestion/internal/mailbox"
	"github.com/planazoo/ingestion/internal/pipeline"
	"github.com/planazoo/ingestion/internal/queue"
	"github.com/planazoo/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	mailboxesFlag := flag.String("mailboxes", "", "Mailbox list (single entry, comma list, or JSON array; overrides config)")
	pageSizeFlag := flag.Int("page-size", 0, "Max unread messages per mailbox (0 = configured default)")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *mailboxesFlag != "" {
		boxes, err := config.ParseMailboxList(*mailboxesFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --mailboxes: %v\n", err)
			os.Exit(1)
		}
		cfg.Mailboxes = boxes
	}
	if *pageSizeFlag > 0 {
		cfg.PollPageSize = *pageSizeFlag
	}

	if len(cfg.Mailboxes) == 0 {
		slog.Error("no mailboxes configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.EventsQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// --- Stores and Pipeline ---
	users, err := store.NewUserStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise user store", "error", err)
		os.Exit(1)
	}
	templates, err := store.NewTemplateStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise template store", "error", err)
		os.Exit(1)
	}
	events, err := store.NewEventStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise event store", "error", err)
		os.Exit(1)
	}

	pipe := pipeline.NewService(pipeline.Config{
		Resolver:   identity.NewResolver(users),
		Templates:  templates,
		Events:     events,
		Publisher:  publisher,
		DailyLimit: cfg.DailyEventLimit,
	})

	// --- Run the sweep ---
	sources := make([]mailbox.Source, 0, len(cfg.Mailboxes))
	for _, mb := range cfg.Mailboxes {
		sources = append(sources, mailbox.NewIMAPSource(mb))
	}
	poller := mailbox.NewPoller(sources, pipe, dedup.NewFilter(rdb), cfg.PollPageSize)

	result := poller.Run(ctx)

	// Summary on stdout for the cron log
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("failed to encode result", "error", err)
		os.Exit(1)
	}

	if result.Errors > 0 {
		os.Exit(1)
	}
}
