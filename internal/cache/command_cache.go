// Package cache provides a Redis read-through cache in front of the command
// table for the status-polling endpoint, keeping repeated GET /commands/:id
// calls (the natural client pattern while waiting on a long-running command)
// off Postgres. Grounded on the teacher's CacheBalance usage in
// internal/repo/repo.go.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/flowmesh/reliable-commands/internal/model"
)

const ttl = 30 * time.Second

// CommandView is the subset of model.Command worth caching: everything a
// status poll needs, nothing that changes shape across handlers.
type CommandView struct {
	ID       uuid.UUID           `json:"id"`
	Name     string              `json:"name"`
	Status   model.CommandStatus `json:"status"`
	Retries  int                 `json:"retries"`
	Reply    string              `json:"reply,omitempty"`
	LastErr  string              `json:"lastError,omitempty"`
	Terminal bool                `json:"terminal"`
}

type CommandCache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *CommandCache {
	return &CommandCache{rdb: rdb}
}

func key(id uuid.UUID) string {
	return "command:" + id.String()
}

func (c *CommandCache) Get(ctx context.Context, id uuid.UUID) (*CommandView, bool) {
	raw, err := c.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var view CommandView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}
	return &view, true
}

// Put caches view if its status is terminal, otherwise skips the write: a
// RUNNING command is about to change, and caching it risks serving a stale
// view past the short TTL's protection.
func (c *CommandCache) Put(ctx context.Context, view CommandView) {
	if !view.Terminal {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key(view.ID), raw, ttl).Err()
}

// Invalidate drops any cached view, used when a command transitions and the
// cache might be holding a now-stale pre-transition snapshot.
func (c *CommandCache) Invalidate(ctx context.Context, id uuid.UUID) {
	_ = c.rdb.Del(ctx, key(id)).Err()
}

// IsTerminal reports whether status will never change again.
func IsTerminal(status model.CommandStatus) bool {
	switch status {
	case model.CommandSucceeded, model.CommandFailed, model.CommandTimedOut:
		return true
	default:
		return false
	}
}
