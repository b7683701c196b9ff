package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxCategory selects which transport a row is dispatched to.
type OutboxCategory string

const (
	CategoryCommand OutboxCategory = "command"
	CategoryReply   OutboxCategory = "reply"
	CategoryEvent   OutboxCategory = "event"
)

// OutboxStatus is the row's position in the claim/publish lifecycle.
type OutboxStatus string

const (
	OutboxNew      OutboxStatus = "NEW"
	OutboxClaimed  OutboxStatus = "CLAIMED"
	OutboxPublished OutboxStatus = "PUBLISHED"
)

// OutboxRow is a pending outbound dispatch, written atomically with the
// state change that produced it and drained by the Relay.
type OutboxRow struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Category   OutboxCategory `gorm:"size:16;not null"`
	Topic      string         `gorm:"size:256;not null"`
	Key        string         `gorm:"size:256"`
	Type       string         `gorm:"size:128;not null"`
	Payload    string         `gorm:"type:jsonb;not null"`
	Headers    string         `gorm:"type:jsonb;not null;default:'{}'"`
	Status     OutboxStatus   `gorm:"size:16;not null;index"`
	Attempts   int            `gorm:"not null;default:0"`
	NextAt     *time.Time     `gorm:"index"`
	ClaimedBy  *string        `gorm:"size:256"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index"`
	PublishedAt *time.Time
	LastError  *string
}

func (OutboxRow) TableName() string { return "outbox" }
