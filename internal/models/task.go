package models

import "time"

// TaskStatus is the completion status of a federation job. It advances
// monotonically from queued to completed or error and never regresses.
type TaskStatus int

const (
	TaskError     TaskStatus = -1
	TaskQueued    TaskStatus = 0
	TaskCompleted TaskStatus = 1
)

// String returns the status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskError:
		return "ERROR"
	case TaskCompleted:
		return "COMPLETED"
	}
	return "QUEUED"
}

// Task is a durable record of an outbound federated action.
type Task struct {
	ID         uint       `gorm:"primaryKey;autoIncrement"`
	UUID       string     `gorm:"size:36;uniqueIndex;not null"`
	Status     TaskStatus `gorm:"default:0"`
	Created    time.Time
	Updated    *time.Time
	SignedByID uint       `gorm:"not null"`
	SignedBy   Interface  `gorm:"foreignKey:SignedByID"`
}

// Task payload kinds.
const (
	PayloadCreateIssue       = "CreateIssue"
	PayloadCreatePullrequest = "CreatePullrequest"
	PayloadCommentOnIssue    = "CommentOnIssue"
	PayloadApplyPatch        = "ApplyPatch"
)

// TaskPayload holds the JSON message a task carries, one row per task.
type TaskPayload struct {
	TaskID uint   `gorm:"primaryKey"`
	Kind   string `gorm:"size:32;not null"`
	// Payload is the serialized message, including its meta block
	// (html_url, author, interface_url, date).
	Payload string `gorm:"type:text"`
	Task    Task   `gorm:"foreignKey:TaskID"`
}
