package models

// Comment is a forge issue comment mirrored into the local store. Created once
// per forge comment id; body and updated advance on edit notifications.
type Comment struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Body    string `gorm:"type:text"`
	HTMLURL string `gorm:"size:2048;uniqueIndex;not null"`
	// Created and Updated are epoch seconds.
	Created int64
	Updated int64
	// CommentID is the forge-scoped comment identifier.
	CommentID int64 `gorm:"uniqueIndex;not null"`
	IsNative  bool  `gorm:"default:false"`

	UserID  uint  `gorm:"not null"`
	User    User  `gorm:"foreignKey:UserID"`
	IssueID uint  `gorm:"not null"`
	Issue   Issue `gorm:"foreignKey:IssueID"`
}
