package task

import (
	"context"
	"encoding/json"
	"time"
)

// Kind identifies which handler runs a task.
type Kind string

const (
	KindIndexing      Kind = "indexing"
	KindSummarization Kind = "summarization"
	KindReport        Kind = "report"
)

// Status defines the lifecycle state of a task
type Status string

const (
	StatusQueued     Status = "queued"
	StatusStarted    Status = "started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether a task in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task represents a background task
type Task struct {
	ID         string          `json:"id" gorm:"primaryKey"`
	Kind       Kind            `json:"kind"`
	Status     Status          `json:"status"`
	Progress   int             `json:"progress"`
	OwnerID    *int64          `json:"owner_id,omitempty"`
	DocumentID *int64          `json:"document_id,omitempty"`
	Payload    json.RawMessage `json:"payload" gorm:"type:jsonb"`
	Error      *string         `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Repository defines the interface for task persistence
type Repository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	UpdateStatus(ctx context.Context, id string, status Status, progress int, taskErr *string) error
}
