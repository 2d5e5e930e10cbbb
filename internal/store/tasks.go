package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/models"
)

// maxTaskAttempts bounds the retries on a task UUID collision.
const maxTaskAttempts = 10

// CreateTask opens a queued task signed by the given peer and stores its
// payload. A fresh UUID is drawn on each of a bounded number of collision
// retries; exhausting them is a fatal fault.
func (s *Store) CreateTask(signedByID uint, kind, payload string) (*models.Task, error) {
	for attempt := 0; attempt < maxTaskAttempts; attempt++ {
		task := models.Task{
			UUID:       uuid.NewString(),
			Status:     models.TaskQueued,
			Created:    time.Now().UTC(),
			SignedByID: signedByID,
		}
		var existing models.Task
		found, err := s.first(&existing, "uuid = ?", task.UUID)
		if err != nil {
			return nil, fmt.Errorf("store: look up task %s: %w", task.UUID, err)
		}
		if found {
			continue
		}
		if err := s.db.Create(&task).Error; err != nil {
			// Lost a race on the unique index; draw again.
			continue
		}
		row := models.TaskPayload{TaskID: task.ID, Kind: kind, Payload: payload}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("store: save payload for task %s: %w", task.UUID, err)
		}
		return &task, nil
	}
	return nil, fault.New(fault.Fatal, fault.CodeRetryBudgetExhausted,
		fmt.Sprintf("store: no free task uuid after %d attempts", maxTaskAttempts))
}

// TaskByUUID returns the task for uuid, or nil when unknown.
func (s *Store) TaskByUUID(id string) (*models.Task, error) {
	var task models.Task
	found, err := s.first(&task, "uuid = ?", id)
	if err != nil {
		return nil, fmt.Errorf("store: load task %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &task, nil
}

// ResolveTask moves a queued task to its terminal status. Statuses only
// advance: resolving an already-resolved task is an error, as is passing
// TaskQueued.
func (s *Store) ResolveTask(id string, status models.TaskStatus) error {
	if status == models.TaskQueued {
		return fmt.Errorf("store: task %s cannot be resolved to QUEUED", id)
	}
	task, err := s.TaskByUUID(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("store: resolve of unknown task %s", id)
	}
	if task.Status != models.TaskQueued {
		return fmt.Errorf("store: task %s already %s", id, task.Status)
	}
	now := time.Now().UTC()
	err = s.db.Model(task).Select("status", "updated").Updates(map[string]any{
		"status":  status,
		"updated": &now,
	}).Error
	if err != nil {
		return fmt.Errorf("store: resolve task %s: %w", id, err)
	}
	return nil
}

// TaskPayloadFor returns the payload row of a task.
func (s *Store) TaskPayloadFor(taskID uint) (*models.TaskPayload, error) {
	var row models.TaskPayload
	found, err := s.first(&row, "task_id = ?", taskID)
	if err != nil {
		return nil, fmt.Errorf("store: load payload for task %d: %w", taskID, err)
	}
	if !found {
		return nil, nil
	}
	return &row, nil
}
