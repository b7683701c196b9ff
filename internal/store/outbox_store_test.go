package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/reliable-commands/internal/model"
)

// ClaimOne and Claim rely on Postgres-only syntax (UPDATE ... RETURNING
// feeding from a FOR UPDATE SKIP LOCKED CTE); they're exercised against a
// real Postgres instance in integration testing, not here. AddReturningID,
// MarkPublished, and Reschedule are portable gorm calls and get unit
// coverage against sqlite like the rest of the store package.
func TestOutboxStore_AddReturningID(t *testing.T) {
	db := newTestDB(t)
	outbox := NewOutboxStore(db)
	ctx := context.Background()

	row := model.OutboxRow{
		Category: model.CategoryCommand,
		Topic:    "APP.CMD.CreateUser.Q",
		Key:      "biz-1",
		Type:     "CommandRequested",
		Payload:  `{"a":1}`,
	}
	id, err := outbox.AddReturningID(ctx, nil, row)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	var stored model.OutboxRow
	require.NoError(t, db.First(&stored, "id = ?", id).Error)
	assert.Equal(t, model.OutboxNew, stored.Status)
	assert.Equal(t, "{}", stored.Headers)
}

func TestOutboxStore_MarkPublished(t *testing.T) {
	db := newTestDB(t)
	outbox := NewOutboxStore(db)
	ctx := context.Background()

	id, err := outbox.AddReturningID(ctx, nil, model.OutboxRow{
		Category: model.CategoryEvent, Topic: "events.CreateUser", Type: "CommandCompleted", Payload: "{}",
	})
	require.NoError(t, err)

	require.NoError(t, outbox.MarkPublished(ctx, id))

	var stored model.OutboxRow
	require.NoError(t, db.First(&stored, "id = ?", id).Error)
	assert.Equal(t, model.OutboxPublished, stored.Status)
	assert.NotNil(t, stored.PublishedAt)
}

func TestOutboxStore_Reschedule(t *testing.T) {
	db := newTestDB(t)
	outbox := NewOutboxStore(db)
	ctx := context.Background()

	id, err := outbox.AddReturningID(ctx, nil, model.OutboxRow{
		Category: model.CategoryEvent, Topic: "events.CreateUser", Type: "CommandCompleted", Payload: "{}",
	})
	require.NoError(t, err)

	require.NoError(t, outbox.Reschedule(ctx, id, 2*time.Second, "connection refused"))

	var stored model.OutboxRow
	require.NoError(t, db.First(&stored, "id = ?", id).Error)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "connection refused", *stored.LastError)
	assert.NotNil(t, stored.NextAt)
	assert.True(t, stored.NextAt.After(time.Now()))
}
