package store

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flowmesh/reliable-commands/internal/model"
)

// OutboxStore is the Relay's sole dependency: it owns claim (single-row and
// batch), publish acknowledgement, and backoff rescheduling.
type OutboxStore interface {
	AddReturningID(ctx context.Context, uow *UnitOfWork, row model.OutboxRow) (uuid.UUID, error)
	ClaimOne(ctx context.Context, id uuid.UUID) (*model.OutboxRow, error)
	Claim(ctx context.Context, max int, claimer string) ([]model.OutboxRow, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, backoff time.Duration, errMsg string) error
}

type gormOutboxStore struct {
	db       *gorm.DB
	hostname string
}

func NewOutboxStore(db *gorm.DB) OutboxStore {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return &gormOutboxStore{db: db, hostname: host}
}

func (s *gormOutboxStore) AddReturningID(ctx context.Context, uow *UnitOfWork, row model.OutboxRow) (uuid.UUID, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Status = model.OutboxNew
	if row.Headers == "" {
		row.Headers = "{}"
	}

	conn := s.db.WithContext(ctx)
	if tx := uow.Tx(); tx != nil {
		conn = tx.WithContext(ctx)
	}
	if err := conn.Create(&row).Error; err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

// ClaimOne is the fast-path primitive: flip exactly one NEW row to CLAIMED,
// or return nothing if it was already claimed or published. Runs outside any
// caller transaction — the fast path fires strictly after the producing
// transaction has committed.
func (s *gormOutboxStore) ClaimOne(ctx context.Context, id uuid.UUID) (*model.OutboxRow, error) {
	var rows []model.OutboxRow
	err := s.db.WithContext(ctx).Raw(
		`UPDATE outbox SET status = 'CLAIMED', claimed_by = ?
		 WHERE id = ? AND status = 'NEW'
		 RETURNING id, category, topic, key, type, payload, headers, status, attempts, next_at, claimed_by, created_at, published_at, last_error`,
		s.hostname, id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Claim is the sweep primitive: atomically select up to max eligible NEW
// rows in created_at order, skipping rows another worker already holds a
// lock on, and flip them to CLAIMED. Grounded directly on
// original_source/.../pg/PgOutboxStore.java's claim query — gorm's query
// builder has no way to express a FOR UPDATE SKIP LOCKED CTE feeding an
// UPDATE ... FROM.
func (s *gormOutboxStore) Claim(ctx context.Context, max int, claimer string) ([]model.OutboxRow, error) {
	var rows []model.OutboxRow
	err := s.db.WithContext(ctx).Raw(
		`WITH c AS (
			SELECT id FROM outbox
			WHERE status = 'NEW' AND (next_at IS NULL OR next_at <= NOW())
			ORDER BY created_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox o SET status = 'CLAIMED', claimed_by = ?
		FROM c WHERE o.id = c.id
		RETURNING o.id, o.category, o.topic, o.key, o.type, o.payload, o.headers, o.status, o.attempts, o.next_at, o.claimed_by, o.created_at, o.published_at, o.last_error`,
		max, claimer,
	).Scan(&rows).Error
	return rows, err
}

func (s *gormOutboxStore) MarkPublished(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&model.OutboxRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":       model.OutboxPublished,
		"published_at": &now,
	}).Error
}

func (s *gormOutboxStore) Reschedule(ctx context.Context, id uuid.UUID, backoff time.Duration, errMsg string) error {
	nextAt := time.Now().Add(backoff)
	return s.db.WithContext(ctx).Model(&model.OutboxRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":     model.OutboxNew,
		"attempts":   gorm.Expr("attempts + 1"),
		"next_at":    &nextAt,
		"last_error": errMsg,
	}).Error
}

// UnmarshalHeaders parses an OutboxRow's Headers JSON back into a map.
func UnmarshalHeaders(headersJSON string) map[string]string {
	headers := map[string]string{}
	if headersJSON == "" {
		return headers
	}
	_ = json.Unmarshal([]byte(headersJSON), &headers)
	return headers
}
