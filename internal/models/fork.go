package models

// Fork maps an upstream repository to the name it was forked under on the
// administered account. The mapping makes fork requests idempotent.
type Fork struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ParentOwner string `gorm:"size:256;not null;uniqueIndex:idx_fork_parent"`
	ParentRepo  string `gorm:"size:256;not null;uniqueIndex:idx_fork_parent"`
	ForkName    string `gorm:"size:256;not null"`
}
