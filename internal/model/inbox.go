package model

import "time"

// InboxEntry records that a message id has already been seen by a handler.
// A successful insert of the (MessageID, Handler) pair is the only signal the
// Executor needs to treat a delivery as the first one.
type InboxEntry struct {
	MessageID   string    `gorm:"primaryKey;size:256"`
	Handler     string    `gorm:"primaryKey;size:128"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

func (InboxEntry) TableName() string { return "inbox" }
