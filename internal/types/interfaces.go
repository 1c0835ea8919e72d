// internal/types/interfaces.go
package types

import (
	"context"
)

type ThreadRegistry interface {
	// GetBinding returns nil without error when the user has no thread yet.
	GetBinding(ctx context.Context, userID UserID) (*ThreadBinding, error)
	// CreateBinding stores threadTS for the user unless a different thread is
	// already bound, in which case the bound thread and ErrBindingExists are
	// returned.
	CreateBinding(ctx context.Context, userID UserID, threadTS ThreadTS) (ThreadTS, error)
	// ResolveUserByThread returns ErrThreadUnbound when no user owns the
	// thread and an *AmbiguousThreadError when more than one does.
	ResolveUserByThread(ctx context.Context, threadTS ThreadTS) (UserID, error)
}

type MessageStore interface {
	Insert(ctx context.Context, userID UserID, msg *Message) (MessageID, error)
	UpdateDeliveryOutcome(ctx context.Context, ref MessageRef, status Status, threadTS ThreadTS) error
	MarkFailed(ctx context.Context, ref MessageRef, kind ErrorKind) error
}

type ChatGateway interface {
	// PostToThread returns the timestamp of the created post. With an empty
	// ThreadTS that timestamp identifies the new thread.
	PostToThread(ctx context.Context, post Post) (ThreadTS, error)
	PostError(ctx context.Context, channel, text string) error
}
