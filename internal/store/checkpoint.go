package store

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/forgelink/relay/internal/models"
)

// EnsureCheckpoint seeds the watermark row for url at epoch if it does not
// exist yet. An existing row is left untouched.
func (s *Store) EnsureCheckpoint(url string, epoch time.Time) error {
	row := models.Checkpoint{InterfaceURL: url, LastRun: epoch.UTC()}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: seed checkpoint for %s: %w", url, err)
	}
	return nil
}

// Checkpoint returns the last-run watermark for url. The row must have been
// seeded at startup.
func (s *Store) Checkpoint(url string) (time.Time, error) {
	var row models.Checkpoint
	found, err := s.first(&row, "interface_url = ?", url)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: load checkpoint for %s: %w", url, err)
	}
	if !found {
		return time.Time{}, fmt.Errorf("store: checkpoint for %s not seeded", url)
	}
	return row.LastRun, nil
}

// AdvanceCheckpoint moves the watermark for url to t. Moves backwards are
// ignored so a stale writer cannot replay already-processed notifications.
func (s *Store) AdvanceCheckpoint(url string, t time.Time) error {
	err := s.db.Model(&models.Checkpoint{}).
		Where("interface_url = ? AND last_run < ?", url, t.UTC()).
		Update("last_run", t.UTC()).Error
	if err != nil {
		return fmt.Errorf("store: advance checkpoint for %s: %w", url, err)
	}
	return nil
}

// ForkName returns the local name an upstream repository was forked under,
// if a fork was recorded.
func (s *Store) ForkName(parentOwner, parentRepo string) (string, bool, error) {
	var row models.Fork
	found, err := s.first(&row, "parent_owner = ? AND parent_repo = ?", parentOwner, parentRepo)
	if err != nil {
		return "", false, fmt.Errorf("store: load fork of %s/%s: %w", parentOwner, parentRepo, err)
	}
	if !found {
		return "", false, nil
	}
	return row.ForkName, true, nil
}

// SaveForkName records the local name an upstream repository was forked
// under. Repeat saves for the same parent are no-ops.
func (s *Store) SaveForkName(parentOwner, parentRepo, forkName string) error {
	row := models.Fork{ParentOwner: parentOwner, ParentRepo: parentRepo, ForkName: forkName}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: save fork of %s/%s: %w", parentOwner, parentRepo, err)
	}
	return nil
}
