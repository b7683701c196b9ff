package relay

import (
	"context"

	"github.com/google/uuid"

	"github.com/flowmesh/reliable-commands/internal/store"
)

// FastPathPublisher registers an after-commit callback that tries to publish
// a just-written outbox row immediately, so the common case never waits for
// the sweep scheduler's 30s tick. Grounded on
// original_source/.../core/FastPathPublisher.java — same swallow-the-error
// contract: a fast-path failure means the sweep will pick the row up later,
// never that the command itself failed.
type FastPathPublisher struct {
	relay *Relay
}

func NewFastPathPublisher(relay *Relay) *FastPathPublisher {
	return &FastPathPublisher{relay: relay}
}

func (p *FastPathPublisher) RegisterAfterCommit(ctx context.Context, uow *store.UnitOfWork, outboxID uuid.UUID) {
	uow.RegisterAfterCommit(func() {
		defer func() { _ = recover() }()
		p.relay.PublishNow(ctx, outboxID)
	})
}
