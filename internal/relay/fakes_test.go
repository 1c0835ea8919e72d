package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/supportrelay/internal/types"
)

type fakeRegistry struct {
	mu       sync.Mutex
	bindings map[types.UserID]types.ThreadTS
	owners   map[types.ThreadTS][]types.UserID
	getErr   error
	// raceWith is bound just before CreateBinding runs, as if another
	// delivery won.
	raceWith types.ThreadTS
	creates  int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		bindings: make(map[types.UserID]types.ThreadTS),
		owners:   make(map[types.ThreadTS][]types.UserID),
	}
}

func (r *fakeRegistry) GetBinding(ctx context.Context, userID types.UserID) (*types.ThreadBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	ts, ok := r.bindings[userID]
	if !ok {
		return nil, nil
	}
	return &types.ThreadBinding{SlackThreadTS: ts}, nil
}

func (r *fakeRegistry) CreateBinding(ctx context.Context, userID types.UserID, threadTS types.ThreadTS) (types.ThreadTS, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.raceWith != "" {
		r.bindings[userID] = r.raceWith
	}
	if existing, ok := r.bindings[userID]; ok && existing != threadTS {
		return existing, types.ErrBindingExists
	}
	r.bindings[userID] = threadTS
	r.owners[threadTS] = append(r.owners[threadTS], userID)
	return threadTS, nil
}

func (r *fakeRegistry) ResolveUserByThread(ctx context.Context, threadTS types.ThreadTS) (types.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := r.owners[threadTS]
	switch len(owners) {
	case 0:
		return "", types.ErrThreadUnbound
	case 1:
		return owners[0], nil
	default:
		paths := make([]string, len(owners))
		for i, u := range owners {
			paths[i] = "users/" + string(u) + "/support/default"
		}
		return "", &types.AmbiguousThreadError{ThreadTS: threadTS, Paths: paths}
	}
}

func (r *fakeRegistry) bind(userID types.UserID, ts types.ThreadTS) {
	r.bindings[userID] = ts
	r.owners[ts] = append(r.owners[ts], userID)
}

type statusUpdate struct {
	Ref      types.MessageRef
	Status   types.Status
	ThreadTS types.ThreadTS
	Kind     types.ErrorKind
}

type fakeStore struct {
	mu        sync.Mutex
	inserted  map[types.UserID][]types.Message
	status    map[types.MessageRef]types.Status
	updates   []statusUpdate
	insertErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		inserted: make(map[types.UserID][]types.Message),
		status:   make(map[types.MessageRef]types.Status),
	}
}

func (s *fakeStore) Insert(ctx context.Context, userID types.UserID, msg *types.Message) (types.MessageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return "", s.insertErr
	}
	s.inserted[userID] = append(s.inserted[userID], *msg)
	return types.MessageID("msg-" + string(userID)), nil
}

// transition mirrors the store guard: only a pending message may change.
func (s *fakeStore) transition(u statusUpdate) error {
	if st := s.status[u.Ref]; st.Final() {
		return fmt.Errorf("%w: status is %s", types.ErrStatusFinal, st)
	}
	s.status[u.Ref] = u.Status
	s.updates = append(s.updates, u)
	return nil
}

func (s *fakeStore) UpdateDeliveryOutcome(ctx context.Context, ref types.MessageRef, status types.Status, threadTS types.ThreadTS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	return s.transition(statusUpdate{Ref: ref, Status: status, ThreadTS: threadTS})
}

func (s *fakeStore) MarkFailed(ctx context.Context, ref types.MessageRef, kind types.ErrorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(statusUpdate{Ref: ref, Status: types.StatusFailed, Kind: kind})
}

// final is the recorded status of ref; pending if never updated.
func (s *fakeStore) final(ref types.MessageRef) types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[ref]; ok {
		return st
	}
	return types.StatusPending
}

func (s *fakeStore) last() (statusUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return statusUpdate{}, false
	}
	return s.updates[len(s.updates)-1], true
}

type fakeChat struct {
	mu       sync.Mutex
	posts    []types.Post
	errors   []string
	nextTS   []types.ThreadTS
	postErr  error
	errPosts chan string
}

// newFakeChat returns the given timestamps, in order, for posts that open a
// thread.
func newFakeChat(ts ...types.ThreadTS) *fakeChat {
	return &fakeChat{nextTS: ts, errPosts: make(chan string, 8)}
}

func (c *fakeChat) PostToThread(ctx context.Context, post types.Post) (types.ThreadTS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil && post.ThreadTS != "" {
		return "", c.postErr
	}
	c.posts = append(c.posts, post)
	if post.ThreadTS != "" {
		return "9999.0001", nil
	}
	if len(c.nextTS) == 0 {
		return "", errors.New("no ts left")
	}
	ts := c.nextTS[0]
	c.nextTS = c.nextTS[1:]
	return ts, nil
}

func (c *fakeChat) PostError(ctx context.Context, channel, text string) error {
	c.mu.Lock()
	c.errors = append(c.errors, text)
	c.mu.Unlock()
	c.errPosts <- text
	return nil
}

func (c *fakeChat) snapshot() []types.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Post(nil), c.posts...)
}
