package models

// Interface is a federation peer. Rows are created on first contact and never
// mutated afterwards (upsert-or-ignore).
type Interface struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	URL       string `gorm:"size:2048;uniqueIndex;not null"`
	PublicKey string `gorm:"type:text"`
}
