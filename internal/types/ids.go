// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type UserID string
type MessageID string
type ThreadTS string
type RunID string
type RequestID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// MessageRef addresses one message document of one user.
type MessageRef struct {
	UserID    UserID
	MessageID MessageID
}

func (r MessageRef) String() string {
	return string(r.UserID) + "/" + string(r.MessageID)
}
