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

// Package queue publishes created pending events to a Redis list for
// the downstream event interpreter. The event row in Postgres is the
// durable record; the queue entry is a wake-up hint, so publish
// failures are logged and never fail ingestion.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/planazoo/ingestion/internal/models"
)

// Publisher sends pending-event tasks to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// eventTask is the JSON envelope the downstream consumer reads.
type eventTask struct {
	ID    string               `json:"id"`
	Type  string               `json:"type"`
	Event *models.PendingEvent `json:"event"`
}

// PublishEventCreated serialises a pending event and pushes it onto the
// events queue. The consumer pops with BRPOP.
func (p *Publisher) PublishEventCreated(ctx context.Context, ev *models.PendingEvent) error {
	task := eventTask{
		ID:    uuid.New().String(),
		Type:  "pending_event.created",
		Event: ev,
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal event task: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(taskJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published pending event to queue",
		"task_id", task.ID,
		"event_id", ev.ID,
		"user_id", ev.UserID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
