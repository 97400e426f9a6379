package model

import (
	"time"
)

// Snapshot is a persisted copy of the client cache. Records holds the JSON
// encoded records compressed with Compression.
type Snapshot struct {
	ID          string    `gorm:"primaryKey;uuid;not null"`
	CreatedAt   time.Time `gorm:"index"`
	Endpoint    string    `gorm:"not null;index"`
	Compression string
	Size        int
	Records     []byte
}

func (Snapshot) TableName() string {
	return "cache_snapshots"
}
