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

// Planazoo — Inbound Mail Ingestion Service
//
// Entry point for the ingestion service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Wires the shared ingestion pipeline (identity → quota → templates → events)
//  4. Serves the inbound webhook, the scheduler poll endpoint, health and metrics
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/planazoo/ingestion/internal/config"
	"github.com/planazoo/ingestion/internal/dedup"
	"github.com/planazoo/ingestion/internal/identity"
	"github.com/planazoo/ingestion/internal/mailbox"
	"github.com/planazoo/ingestion/internal/pipeline"
	"github.com/planazoo/ingestion/internal/queue"
	"github.com/planazoo/ingestion/internal/store"
	"github.com/planazoo/ingestion/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting inbound mail ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"mailboxes", len(cfg.Mailboxes),
		"daily_event_limit", cfg.DailyEventLimit,
		"poll_page_size", cfg.PollPageSize,
	)

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
	slog.Info("connected to PostgreSQL")

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
	slog.Info("connected to Redis")

	// --- Stores ---
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

	// --- Ingestion Pipeline ---
	pipe := pipeline.NewService(pipeline.Config{
		Resolver:   identity.NewResolver(users),
		Templates:  templates,
		Events:     events,
		Publisher:  publisher,
		DailyLimit: cfg.DailyEventLimit,
	})

	// --- Mailbox Poller ---
	sources := make([]mailbox.Source, 0, len(cfg.Mailboxes))
	for _, mb := range cfg.Mailboxes {
		sources = append(sources, mailbox.NewIMAPSource(mb))
	}
	poller := mailbox.NewPoller(sources, pipe, dedup.NewFilter(rdb), cfg.PollPageSize)

	// --- HTTP Surface ---
	handler := webhook.NewHandler(pipe, poller, cfg.WebhookSecret, cfg.PollSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("/inbound/webhook", handler.ServeInbound)
	mux.HandleFunc("/inbound/poll", handler.ServePoll)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	ready, err := webhook.Serve(ctx, cfg.Port, mux)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stops the http server and any in-flight poll context

	slog.Info("ingestion service stopped")
}
