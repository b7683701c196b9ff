package store

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork carries the ambient transaction plus a queue of callbacks to run
// strictly after that transaction commits. It is always an explicit
// parameter passed down the call chain — never a thread-local or a
// goroutine-local global — so the after-commit seam (Design Note 9) stays
// visible at every call site that uses it.
type UnitOfWork struct {
	tx            *gorm.DB
	afterCommit   []func()
}

// Tx returns the ambient transaction's *gorm.DB, joined by every store call
// made with this UnitOfWork.
func (u *UnitOfWork) Tx() *gorm.DB {
	if u == nil {
		return nil
	}
	return u.tx
}

// RegisterAfterCommit schedules fn to run once the enclosing transaction has
// committed. If no transaction is active (u is nil), the registration is a
// no-op — callers should never be in that state, but the seam tolerates it,
// matching FastPathPublisher's contract in the original design.
func (u *UnitOfWork) RegisterAfterCommit(fn func()) {
	if u == nil || fn == nil {
		return
	}
	u.afterCommit = append(u.afterCommit, fn)
}

// RunInTx opens a transaction, runs fn with a UnitOfWork bound to it, commits
// on success, and only then fires the after-commit callbacks — outside the
// transaction, so a callback failure can never roll back already-durable work.
func RunInTx(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	var callbacks []func()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow := &UnitOfWork{tx: tx}
		if err := fn(ctx, uow); err != nil {
			return err
		}
		callbacks = uow.afterCommit
		return nil
	})
	if err != nil {
		return err
	}

	for _, cb := range callbacks {
		cb()
	}
	return nil
}
