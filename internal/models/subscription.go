package models

// Subscription records that a peer Interface wants events for a repository.
type Subscription struct {
	RepositoryID uint       `gorm:"primaryKey"`
	InterfaceID  uint       `gorm:"primaryKey"`
	Repository   Repository `gorm:"foreignKey:RepositoryID"`
	Interface    Interface  `gorm:"foreignKey:InterfaceID"`
}
