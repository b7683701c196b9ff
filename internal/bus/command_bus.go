// Package bus implements the synchronous ingest half of the system: accept
// a command, record it durably, and hand it to the outbox in the same
// transaction. Grounded on original_source/.../core/CommandBus.java.
package bus

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flowmesh/reliable-commands/internal/outboxfactory"
	"github.com/flowmesh/reliable-commands/internal/relay"
	"github.com/flowmesh/reliable-commands/internal/store"
)

// ErrDuplicateIdempotencyKey is returned when Accept is called twice with
// the same idempotency key; the new request is rejected and nothing is
// written (the HTTP layer answers 409).
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// ErrDuplicateBusinessKey is returned when a (name, businessKey) pair
// already has a command recorded against it; callers should treat this as
// a rejected duplicate request, same as ErrDuplicateIdempotencyKey.
var ErrDuplicateBusinessKey = errors.New("duplicate business key")

type CommandBus struct {
	commands store.CommandStore
	outbox   store.OutboxStore
	factory  *outboxfactory.Factory
	fastPath *relay.FastPathPublisher
	db       *gorm.DB
}

func New(commands store.CommandStore, outbox store.OutboxStore, factory *outboxfactory.Factory, fastPath *relay.FastPathPublisher, db *gorm.DB) *CommandBus {
	return &CommandBus{commands: commands, outbox: outbox, factory: factory, fastPath: fastPath, db: db}
}

// Accept records name/payload as a pending command keyed by idempotencyKey,
// queues its CommandRequested outbox row, and registers the fast-path
// publish — all inside one transaction, so a crash between "recorded" and
// "queued" can never happen.
func (b *CommandBus) Accept(ctx context.Context, name, idempotencyKey, businessKey, payload, replyJSON string, replyHeaders map[string]string) (uuid.UUID, error) {
	var commandID uuid.UUID

	err := store.RunInTx(ctx, b.db, func(ctx context.Context, uow *store.UnitOfWork) error {
		exists, err := b.commands.ExistsByIdempotencyKey(ctx, uow, idempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}

		id, err := b.commands.SavePending(ctx, uow, name, idempotencyKey, businessKey, payload, replyJSON)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateIdempotency) {
				return ErrDuplicateIdempotencyKey
			}
			if errors.Is(err, store.ErrDuplicateBusiness) {
				return ErrDuplicateBusinessKey
			}
			return err
		}
		commandID = id

		row := b.factory.RowCommandRequested(name, id, businessKey, payload, replyHeaders)
		outboxID, err := b.outbox.AddReturningID(ctx, uow, row)
		if err != nil {
			return err
		}

		b.fastPath.RegisterAfterCommit(ctx, uow, outboxID)
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return commandID, nil
}
