package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flowmesh/reliable-commands/internal/cache"
	"github.com/flowmesh/reliable-commands/internal/config"
	"github.com/flowmesh/reliable-commands/internal/model"
	"github.com/flowmesh/reliable-commands/internal/outboxfactory"
	"github.com/flowmesh/reliable-commands/internal/relay"
	"github.com/flowmesh/reliable-commands/internal/store"
)

const inboxHandlerName = "CommandExecutor"

// Executor runs one Envelope through the inbox de-dup gate, the registered
// Handler, and the three-way outcome branch. One Process call is one
// transaction: InboxStore.MarkIfAbsent must see the rest of the outcome
// commit-or-rollback together with it, or a crash between them would leak a
// permanently-consumed inbox row with no corresponding effect.
type Executor struct {
	inbox     store.InboxStore
	commands  store.CommandStore
	outbox    store.OutboxStore
	dlq       store.DlqStore
	registry  *Registry
	fastPath  *relay.FastPathPublisher
	factory   *outboxfactory.Factory
	messaging config.MessagingConfig
	lease     time.Duration
	db        *gorm.DB
	cache     *cache.CommandCache
	log       *zap.SugaredLogger
}

func New(
	inbox store.InboxStore,
	commands store.CommandStore,
	outbox store.OutboxStore,
	dlq store.DlqStore,
	registry *Registry,
	fastPath *relay.FastPathPublisher,
	factory *outboxfactory.Factory,
	messaging config.MessagingConfig,
	lease time.Duration,
	db *gorm.DB,
	cmdCache *cache.CommandCache,
	log *zap.SugaredLogger,
) *Executor {
	return &Executor{
		inbox:     inbox,
		commands:  commands,
		outbox:    outbox,
		dlq:       dlq,
		registry:  registry,
		fastPath:  fastPath,
		factory:   factory,
		messaging: messaging,
		lease:     lease,
		db:        db,
		cache:     cmdCache,
		log:       log,
	}
}

// Process runs env to completion exactly once per distinct MessageID: a
// redelivery of a message already recorded in the inbox is a silent no-op.
func (e *Executor) Process(ctx context.Context, env Envelope) error {
	err := store.RunInTx(ctx, e.db, func(ctx context.Context, uow *store.UnitOfWork) error {
		fresh, err := e.inbox.MarkIfAbsent(ctx, uow, env.MessageID.String(), inboxHandlerName)
		if err != nil {
			return err
		}
		if !fresh {
			e.log.Infow("duplicate delivery, skipping", "messageId", env.MessageID, "commandId", env.CommandID)
			return nil
		}

		if err := e.commands.MarkRunning(ctx, uow, env.CommandID, time.Now().Add(e.lease)); err != nil {
			return err
		}

		result, invokeErr := e.registry.Invoke(ctx, env.Name, env.Payload)
		if invokeErr == nil {
			return e.onSuccess(ctx, uow, env, result)
		}

		failure := AsFailure(invokeErr)
		switch failure.Kind {
		case Permanent:
			return e.onPermanentFailure(ctx, uow, env, failure)
		default:
			// RetryableBusiness and Transient both roll the transaction back,
			// inbox mark included, so a redelivery of the same message runs
			// again. The retry bump is recorded after the rollback, below.
			return failure
		}
	})
	if failure, ok := err.(*Failure); ok && failure.Kind != Permanent {
		// Written outside the rolled-back transaction so the count survives it.
		if bumpErr := e.commands.BumpRetry(ctx, nil, env.CommandID, failure.Message); bumpErr != nil {
			e.log.Errorw("bump retry failed", "commandId", env.CommandID, "error", bumpErr)
		}
	}
	return err
}

func (e *Executor) onSuccess(ctx context.Context, uow *store.UnitOfWork, env Envelope, resultJSON string) error {
	if err := e.commands.MarkSucceeded(ctx, uow, env.CommandID); err != nil {
		return err
	}
	e.cache.Invalidate(ctx, env.CommandID)

	replyRow := e.factory.RowReply(env.Headers, env.CorrelationID, env.Key, "CommandCompleted", resultJSON)
	replyID, err := e.outbox.AddReturningID(ctx, uow, replyRow)
	if err != nil {
		return err
	}

	eventRow := e.factory.RowEvent(e.messaging.EventTopicName(env.Name), env.Key, "CommandCompleted", aggregateSnapshot(env.Key))
	eventID, err := e.outbox.AddReturningID(ctx, uow, eventRow)
	if err != nil {
		return err
	}

	e.fastPath.RegisterAfterCommit(ctx, uow, replyID)
	e.fastPath.RegisterAfterCommit(ctx, uow, eventID)
	return nil
}

// onPermanentFailure records the failure and parks the DLQ entry in the same
// transaction as the inbox mark and retry bookkeeping, then returns nil:
// a Permanent failure's terminal state IS the commit, so the transaction
// must not roll back.
func (e *Executor) onPermanentFailure(ctx context.Context, uow *store.UnitOfWork, env Envelope, failure *Failure) error {
	if err := e.commands.MarkFailed(ctx, uow, env.CommandID, failure.Message); err != nil {
		return err
	}
	e.cache.Invalidate(ctx, env.CommandID)

	cmd, err := e.commands.Find(ctx, uow, env.CommandID)
	if err != nil {
		return err
	}
	attempts := 0
	if cmd != nil {
		attempts = cmd.Retries
	}

	dlqEntry := model.DlqEntry{
		CommandID:    env.CommandID,
		CommandName:  env.Name,
		BusinessKey:  env.Key,
		Payload:      env.Payload,
		FailedStatus: string(model.CommandFailed),
		ErrorClass:   failure.Kind.String(),
		ErrorMessage: failure.Message,
		Attempts:     attempts,
		ParkedBy:     inboxHandlerName,
	}
	if err := e.dlq.Park(ctx, uow, dlqEntry); err != nil {
		return err
	}

	errPayload := fmt.Sprintf(`{"error":%q}`, failure.Message)
	replyRow := e.factory.RowReply(env.Headers, env.CorrelationID, env.Key, "CommandFailed", errPayload)
	replyID, err := e.outbox.AddReturningID(ctx, uow, replyRow)
	if err != nil {
		return err
	}

	eventRow := e.factory.RowEvent(e.messaging.EventTopicName(env.Name), env.Key, "CommandFailed", errPayload)
	eventID, err := e.outbox.AddReturningID(ctx, uow, eventRow)
	if err != nil {
		return err
	}

	e.fastPath.RegisterAfterCommit(ctx, uow, replyID)
	e.fastPath.RegisterAfterCommit(ctx, uow, eventID)
	return nil
}

// aggregateSnapshot stands in for a real read-model projection. Grounded on
// original_source/.../core/Aggregates.java, which is itself a placeholder
// for production aggregate fetching.
func aggregateSnapshot(key string) string {
	return fmt.Sprintf(`{"aggregateKey":%q,"version":1}`, key)
}
