package gateway

import (
	"context"
	"time"

	"github.com/user/supportrelay/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
)

// Run tracks the delivery of one created message.
type Run struct {
	ID        types.RunID
	UserID    types.UserID
	Event     types.MessageCreated
	Status    RunStatus
	Seq       int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Ctx       context.Context
}

// NewRun creates a Run in the Queued state for the given event.
func NewRun(event types.MessageCreated) *Run {
	return &Run{
		ID:        types.NewRunID(),
		UserID:    event.Ref.UserID,
		Event:     event,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}
