package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flowmesh/reliable-commands/internal/model"
)

// DlqStore is insert-only and list-only: the only way out of the DLQ table
// is an operator, not this process. Grounded on PgDlqStore.java.
type DlqStore interface {
	Park(ctx context.Context, uow *UnitOfWork, entry model.DlqEntry) error
	List(ctx context.Context, limit int) ([]model.DlqEntry, error)
}

type gormDlqStore struct {
	db *gorm.DB
}

func NewDlqStore(db *gorm.DB) DlqStore {
	return &gormDlqStore{db: db}
}

func (s *gormDlqStore) Park(ctx context.Context, uow *UnitOfWork, entry model.DlqEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ParkedAt.IsZero() {
		entry.ParkedAt = time.Now()
	}

	conn := s.db.WithContext(ctx)
	if tx := uow.Tx(); tx != nil {
		conn = tx.WithContext(ctx)
	}
	return conn.Create(&entry).Error
}

func (s *gormDlqStore) List(ctx context.Context, limit int) ([]model.DlqEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.DlqEntry
	err := s.db.WithContext(ctx).Order("parked_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
