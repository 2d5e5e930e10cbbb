package models

// User is a forge account mirrored into the local store. Created on first
// reference from any repository, issue, or comment; never deleted.
type User struct {
	ID uint `gorm:"primaryKey;autoIncrement"`
	// Name is the display name.
	Name string `gorm:"size:256"`
	// UserID is the forge-scoped login and the natural key.
	UserID      string `gorm:"size:256;uniqueIndex;not null"`
	ProfileURL  string `gorm:"size:2048"`
	AvatarURL   string `gorm:"size:2048"`
	Description string `gorm:"type:text"`
	// PrivateKey is set when this Interface fronts the user as a local actor.
	PrivateKey *string `gorm:"type:text"`

	SignedByID *uint
	SignedBy   *Interface `gorm:"foreignKey:SignedByID"`
}
