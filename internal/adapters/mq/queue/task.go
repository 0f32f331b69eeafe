package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is one short-lived unit of work, such as handling a presence update.
type Task struct {
	ID       uuid.UUID
	Kind     string
	Enqueued time.Time
	Run      func(ctx context.Context) error
}

// NewTask creates a Task with a fresh ID.
func NewTask(kind string, run func(ctx context.Context) error) Task {
	return Task{
		ID:       uuid.New(),
		Kind:     kind,
		Enqueued: time.Now(),
		Run:      run,
	}
}
