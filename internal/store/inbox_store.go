package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flowmesh/reliable-commands/internal/model"
)

// InboxStore is the idempotency primitive for the consume path: the first
// caller to mark a (messageID, handler) pair wins, everyone else gets false.
type InboxStore interface {
	MarkIfAbsent(ctx context.Context, uow *UnitOfWork, messageID, handler string) (bool, error)
}

type gormInboxStore struct {
	db *gorm.DB
}

func NewInboxStore(db *gorm.DB) InboxStore {
	return &gormInboxStore{db: db}
}

func (s *gormInboxStore) MarkIfAbsent(ctx context.Context, uow *UnitOfWork, messageID, handler string) (bool, error) {
	conn := s.db.WithContext(ctx)
	if tx := uow.Tx(); tx != nil {
		conn = tx.WithContext(ctx)
	}

	entry := model.InboxEntry{MessageID: messageID, Handler: handler}
	result := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
