// Package relay drains the outbox table into the broker fence: one row
// crosses from "durably recorded" to "sent" exactly once, with at-least-once
// delivery to the broker backed by unbounded retry with exponential backoff.
// Grounded on original_source/.../relay/OutboxRelay.java.
package relay

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowmesh/reliable-commands/internal/model"
	"github.com/flowmesh/reliable-commands/internal/store"
)

const maxBackoffMillis = 300_000

// Relay is shared by the fast path (one row, right after commit) and the
// sweep scheduler (a batch, on a timer).
type Relay struct {
	store    store.OutboxStore
	mq       CommandQueue
	events   EventPublisher
	log      *zap.SugaredLogger
	hostname string
}

func New(outboxStore store.OutboxStore, mq CommandQueue, events EventPublisher, log *zap.SugaredLogger) *Relay {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return &Relay{store: outboxStore, mq: mq, events: events, log: log, hostname: host}
}

// PublishNow claims and sends a single outbox row by id, if it is still
// eligible. A row already claimed or published by someone else is silently
// skipped.
func (r *Relay) PublishNow(ctx context.Context, id uuid.UUID) {
	row, err := r.store.ClaimOne(ctx, id)
	if err != nil {
		r.log.Warnw("fast path claim failed", "outboxId", id, "error", err)
		return
	}
	if row == nil {
		return
	}
	r.sendAndMark(ctx, *row)
}

// Sweep claims up to max eligible rows and sends each. Used by the periodic
// scheduler to mop up anything the fast path missed (process crash between
// commit and publish, or a row whose backoff window has just elapsed).
func (r *Relay) Sweep(ctx context.Context, max int) int {
	rows, err := r.store.Claim(ctx, max, r.hostname)
	if err != nil {
		r.log.Errorw("sweep claim failed", "error", err)
		return 0
	}
	for _, row := range rows {
		r.sendAndMark(ctx, row)
	}
	return len(rows)
}

func (r *Relay) sendAndMark(ctx context.Context, row model.OutboxRow) {
	headers := store.UnmarshalHeaders(row.Headers)

	var err error
	switch row.Category {
	case model.CategoryCommand, model.CategoryReply:
		err = r.mq.Send(ctx, row.Topic, row.Payload, headers)
	case model.CategoryEvent:
		err = r.events.Publish(ctx, row.Topic, row.Key, row.Payload, headers)
	default:
		panic(fmt.Sprintf("relay: unknown outbox category %q for row %s", row.Category, row.ID))
	}

	if err == nil {
		if markErr := r.store.MarkPublished(ctx, row.ID); markErr != nil {
			r.log.Errorw("mark published failed", "outboxId", row.ID, "error", markErr)
		}
		return
	}

	backoff := nextBackoff(row.Attempts)
	r.log.Warnw("publish failed, rescheduling", "outboxId", row.ID, "attempts", row.Attempts, "backoff", backoff, "error", err)
	if rescheduleErr := r.store.Reschedule(ctx, row.ID, backoff, err.Error()); rescheduleErr != nil {
		r.log.Errorw("reschedule failed", "outboxId", row.ID, "error", rescheduleErr)
	}
}

// nextBackoff mirrors OutboxRelay.sendAndMark's formula: 2^(attempts+1)
// seconds, capped at five minutes.
func nextBackoff(attempts int) time.Duration {
	exp := attempts + 1
	if exp < 1 {
		exp = 1
	}
	millis := math.Pow(2, float64(exp)) * 1000
	if millis > maxBackoffMillis {
		millis = maxBackoffMillis
	}
	return time.Duration(millis) * time.Millisecond
}
