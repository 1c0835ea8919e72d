// internal/types/models.go
package types

import (
	"time"
)

// Role tells who authored a message.
type Role string

const (
	RoleUser     Role = "user"
	RoleInternal Role = "internal"
)

// Status is the delivery stage of a message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Final reports whether no further transition is allowed from s.
func (s Status) Final() bool {
	return s == StatusSent || s == StatusFailed
}

// ErrorKind is the user-visible failure classification stored on a message.
type ErrorKind string

const ErrorSomethingWentWrong ErrorKind = "something_went_wrong"

// Message is one support message document.
type Message struct {
	CreatedAt     time.Time `firestore:"createdAt,serverTimestamp"`
	Message       string    `firestore:"message"`
	Role          Role      `firestore:"role"`
	Status        Status    `firestore:"status"`
	SlackThreadTS ThreadTS  `firestore:"slackThreadTs,omitempty"`
	RawMessage    string    `firestore:"rawMessage,omitempty"`
	Error         ErrorKind `firestore:"error,omitempty"`
}

// ThreadBinding maps a user to their Slack thread.
type ThreadBinding struct {
	SlackThreadTS   ThreadTS  `firestore:"slackThreadTs"`
	ThreadCreatedAt time.Time `firestore:"threadCreatedAt,serverTimestamp"`
}

// MessageCreated is the trigger event for a newly created message document.
type MessageCreated struct {
	Ref     MessageRef
	Message Message
}

// Link is an action button attached to a post.
type Link struct {
	ActionID string
	Label    string
	URL      string
}

// Post is one outbound chat message.
type Post struct {
	Channel   string
	ThreadTS  ThreadTS // empty starts a new thread
	Text      string   // plain fallback text
	Username  string
	IconEmoji string
	Detail    string // optional markdown section
	Link      *Link
}
