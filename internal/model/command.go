package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the closed set of states a Command can occupy.
type CommandStatus string

const (
	CommandPending   CommandStatus = "PENDING"
	CommandRunning   CommandStatus = "RUNNING"
	CommandSucceeded CommandStatus = "SUCCEEDED"
	CommandFailed    CommandStatus = "FAILED"
	CommandTimedOut  CommandStatus = "TIMED_OUT"
)

// Command is a single durably recorded business request. Payload and Reply
// are opaque JSON strings — the core never parses them, only headers.
type Command struct {
	ID                   uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name                 string        `gorm:"size:128;not null;uniqueIndex:ux_command_name_business_key,priority:1"`
	BusinessKey          string        `gorm:"size:256;not null;uniqueIndex:ux_command_name_business_key,priority:2"`
	Payload              string        `gorm:"type:jsonb;not null"`
	IdempotencyKey       string        `gorm:"size:256;not null;uniqueIndex:ux_command_idempotency_key"`
	Status               CommandStatus `gorm:"size:16;not null;index"`
	Retries              int           `gorm:"not null;default:0"`
	ProcessingLeaseUntil *time.Time
	LastError            *string
	Reply                string    `gorm:"type:jsonb"`
	RequestedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (Command) TableName() string { return "command" }
