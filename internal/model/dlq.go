package model

import (
	"time"

	"github.com/google/uuid"
)

// DlqEntry is a parked command that failed permanently. Presence of a row
// here implies the referenced command's status is FAILED, written in the
// same transaction — the core never mutates a DlqEntry after insert.
type DlqEntry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CommandID     uuid.UUID `gorm:"type:uuid;not null;index"`
	CommandName   string    `gorm:"size:128;not null"`
	BusinessKey   string    `gorm:"size:256;not null"`
	Payload       string    `gorm:"type:jsonb;not null"`
	FailedStatus  string    `gorm:"size:16;not null"`
	ErrorClass    string    `gorm:"size:64;not null"`
	ErrorMessage  string    `gorm:"type:text"`
	Attempts      int       `gorm:"not null;default:0"`
	ParkedBy      string    `gorm:"size:256;not null"`
	ParkedAt      time.Time `gorm:"autoCreateTime"`
}

func (DlqEntry) TableName() string { return "command_dlq" }
