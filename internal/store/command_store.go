package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flowmesh/reliable-commands/internal/model"
)

// CommandStore owns all mutation of the command table. Every method joins
// uow's ambient transaction.
type CommandStore interface {
	SavePending(ctx context.Context, uow *UnitOfWork, name, idempotencyKey, businessKey, payload, replyJSON string) (uuid.UUID, error)
	Find(ctx context.Context, uow *UnitOfWork, id uuid.UUID) (*model.Command, error)
	MarkRunning(ctx context.Context, uow *UnitOfWork, id uuid.UUID, leaseUntil time.Time) error
	MarkSucceeded(ctx context.Context, uow *UnitOfWork, id uuid.UUID) error
	MarkFailed(ctx context.Context, uow *UnitOfWork, id uuid.UUID, errMsg string) error
	MarkTimedOut(ctx context.Context, uow *UnitOfWork, id uuid.UUID, reason string) error
	BumpRetry(ctx context.Context, uow *UnitOfWork, id uuid.UUID, errMsg string) error
	ExistsByIdempotencyKey(ctx context.Context, uow *UnitOfWork, key string) (bool, error)
}

type gormCommandStore struct {
	db *gorm.DB
}

func NewCommandStore(db *gorm.DB) CommandStore {
	return &gormCommandStore{db: db}
}

// conn resolves to uow's transaction if present, otherwise the store's own
// connection — every store opens and commits a single-statement transaction
// implicitly via gorm in that case, matching the Store contract in §4.1.
func (s *gormCommandStore) conn(ctx context.Context, uow *UnitOfWork) *gorm.DB {
	if tx := uow.Tx(); tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

func (s *gormCommandStore) SavePending(ctx context.Context, uow *UnitOfWork, name, idempotencyKey, businessKey, payload, replyJSON string) (uuid.UUID, error) {
	row := model.Command{
		ID:             uuid.New(),
		Name:           name,
		BusinessKey:    businessKey,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
		Status:         model.CommandPending,
		Reply:          replyJSON,
	}
	if err := s.conn(ctx, uow).Create(&row).Error; err != nil {
		return uuid.Nil, classifyUniqueViolation(err)
	}
	return row.ID, nil
}

func (s *gormCommandStore) Find(ctx context.Context, uow *UnitOfWork, id uuid.UUID) (*model.Command, error) {
	var row model.Command
	err := s.conn(ctx, uow).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *gormCommandStore) MarkRunning(ctx context.Context, uow *UnitOfWork, id uuid.UUID, leaseUntil time.Time) error {
	return s.conn(ctx, uow).Model(&model.Command{}).Where("id = ?", id).Updates(map[string]any{
		"status":                 model.CommandRunning,
		"processing_lease_until": leaseUntil,
		"updated_at":             time.Now(),
	}).Error
}

func (s *gormCommandStore) MarkSucceeded(ctx context.Context, uow *UnitOfWork, id uuid.UUID) error {
	return s.conn(ctx, uow).Model(&model.Command{}).Where("id = ?", id).Updates(map[string]any{
		"status":     model.CommandSucceeded,
		"updated_at": time.Now(),
	}).Error
}

func (s *gormCommandStore) MarkFailed(ctx context.Context, uow *UnitOfWork, id uuid.UUID, errMsg string) error {
	return s.conn(ctx, uow).Model(&model.Command{}).Where("id = ?", id).Updates(map[string]any{
		"status":     model.CommandFailed,
		"last_error": errMsg,
		"updated_at": time.Now(),
	}).Error
}

func (s *gormCommandStore) MarkTimedOut(ctx context.Context, uow *UnitOfWork, id uuid.UUID, reason string) error {
	return s.conn(ctx, uow).Model(&model.Command{}).Where("id = ?", id).Updates(map[string]any{
		"status":     model.CommandTimedOut,
		"last_error": reason,
		"updated_at": time.Now(),
	}).Error
}

func (s *gormCommandStore) BumpRetry(ctx context.Context, uow *UnitOfWork, id uuid.UUID, errMsg string) error {
	return s.conn(ctx, uow).Model(&model.Command{}).Where("id = ?", id).Updates(map[string]any{
		"retries":    gorm.Expr("retries + 1"),
		"last_error": errMsg,
		"updated_at": time.Now(),
	}).Error
}

func (s *gormCommandStore) ExistsByIdempotencyKey(ctx context.Context, uow *UnitOfWork, key string) (bool, error) {
	var count int64
	err := s.conn(ctx, uow).Model(&model.Command{}).Where("idempotency_key = ?", key).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
