package models

// Repository is a forge repository mirrored into the local store. Created
// lazily when first referenced by an issue, subscription, or fork request.
// (owner, name) is the natural key.
type Repository struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"size:256;not null;uniqueIndex:idx_repo_owner_name"`
	OwnerID     uint   `gorm:"not null;uniqueIndex:idx_repo_owner_name"`
	Owner       User   `gorm:"foreignKey:OwnerID"`
	Description string `gorm:"type:text"`
	HTMLURL     string `gorm:"size:2048"`
	// PrivateKey is set when this Interface fronts the repository as an actor.
	PrivateKey *string `gorm:"type:text"`
}
