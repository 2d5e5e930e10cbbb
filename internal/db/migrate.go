package db

import (
	"fmt"
	"time"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Interface{},
		&models.User{},
		&models.Repository{},
		&models.Issue{},
		&models.Comment{},
		&models.Subscription{},
		&models.Task{},
		&models.TaskPayload{},
		&models.Fork{},
		&models.Checkpoint{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedSelf registers this instance in the interfaces table and ensures a
// checkpoint row exists, using the configured epoch as the initial watermark.
func SeedSelf(db *gorm.DB, cfg *config.Config, publicKey string) error {
	self := models.Interface{URL: cfg.URL, PublicKey: publicKey}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoNothing: true,
	}).Create(&self)
	if result.Error != nil {
		return fmt.Errorf("db: seed interface %q: %w", cfg.URL, result.Error)
	}

	epoch, err := time.Parse(time.RFC3339, cfg.Scheduler.Epoch)
	if err != nil {
		return fmt.Errorf("db: parse scheduler epoch %q: %w", cfg.Scheduler.Epoch, err)
	}
	checkpoint := models.Checkpoint{InterfaceURL: cfg.URL, LastRun: epoch}
	result = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interface_url"}},
		DoNothing: true,
	}).Create(&checkpoint)
	if result.Error != nil {
		return fmt.Errorf("db: seed checkpoint for %q: %w", cfg.URL, result.Error)
	}
	return nil
}
