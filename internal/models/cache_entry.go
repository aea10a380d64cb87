package models

import (
	"time"
)

// CacheEntry is one row of the database-backed cache, used when no
// Redis is configured. Expired rows are swept by the maintenance jobs.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
