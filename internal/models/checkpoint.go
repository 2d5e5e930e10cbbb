package models

import "time"

// Checkpoint is the single-row watermark of the last processed notification,
// keyed by this Interface's own URL.
type Checkpoint struct {
	InterfaceURL string    `gorm:"primaryKey;size:2048"`
	LastRun      time.Time `gorm:"not null"`
}
