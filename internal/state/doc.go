// Package state provides the Firestore-backed stores: the user to thread
// binding registry and the support message collection.
package state

import "github.com/user/supportrelay/internal/types"

// Compile-time interface compliance checks.
var _ types.ThreadRegistry = (*ThreadStore)(nil)
var _ types.MessageStore = (*MessageStore)(nil)

// Firestore field names.
const (
	fieldSlackThreadTS   = "slackThreadTs"
	fieldThreadCreatedAt = "threadCreatedAt"
	fieldStatus          = "status"
	fieldError           = "error"
)
