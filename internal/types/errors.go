// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrThreadUnbound   = errors.New("no user found for thread")
	ErrThreadAmbiguous = errors.New("multiple users found for thread")
	ErrBindingExists   = errors.New("thread binding already exists")
	ErrStatusFinal     = errors.New("message status already final")
)

// AmbiguousThreadError lists the binding documents that share one thread.
type AmbiguousThreadError struct {
	ThreadTS ThreadTS
	Paths    []string
}

func (e *AmbiguousThreadError) Error() string {
	return fmt.Sprintf("multiple users found for thread %s: %s", e.ThreadTS, strings.Join(e.Paths, ", "))
}

func (e *AmbiguousThreadError) Is(target error) bool {
	return target == ErrThreadAmbiguous
}
