package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/user/supportrelay/internal/docpath"
	"github.com/user/supportrelay/internal/gateway"
	"github.com/user/supportrelay/internal/types"
)

func testWatcher() *Watcher {
	handoff := HandoffPolicy()
	handoff.InitialDelay = time.Millisecond
	handoff.MaxDelay = time.Millisecond
	return &Watcher{
		path:       docpath.MustParse("users/{userId}/support/default/messages", docpath.Collection),
		handoff:    handoff,
		dispatched: make(map[types.MessageRef]struct{}),
	}
}

// flakyDispatcher refuses the first failures calls with err.
type flakyDispatcher struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	accepted []types.MessageRef
}

func (d *flakyDispatcher) HandleCreated(ctx context.Context, event types.MessageCreated) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return d.err
	}
	d.accepted = append(d.accepted, event.Ref)
	return nil
}

const prefix = "projects/demo/databases/(default)/documents/"

func TestApplyDispatchesAddedOnce(t *testing.T) {
	w := testWatcher()
	added := change{
		kind: firestore.DocumentAdded,
		path: prefix + "users/u1/support/default/messages/m1",
		msg:  types.Message{Role: types.RoleUser, Status: types.StatusPending, Message: "hi"},
	}

	out := w.apply([]change{added})
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out))
	}
	if out[0].Ref.UserID != "u1" || out[0].Ref.MessageID != "m1" || out[0].Message.Message != "hi" {
		t.Errorf("unexpected event: %+v", out[0])
	}

	// A restarted listener reports the same pending document again.
	if out := w.apply([]change{added}); len(out) != 0 {
		t.Errorf("expected duplicate suppressed, got %+v", out)
	}
	if w.Pending() != 1 {
		t.Errorf("expected 1 pending, got %d", w.Pending())
	}

	w.apply([]change{{kind: firestore.DocumentRemoved, path: added.path}})
	if w.Pending() != 0 {
		t.Errorf("expected removal to clear pending, got %d", w.Pending())
	}
}

func TestApplyIgnoresForeignPaths(t *testing.T) {
	w := testWatcher()
	out := w.apply([]change{
		{kind: firestore.DocumentAdded, path: prefix + "rooms/r1/messages/m1"},
		{kind: firestore.DocumentAdded, path: prefix + "users/u1/support/other/messages/m2"},
		{kind: firestore.DocumentModified, path: prefix + "users/u1/support/default/messages/m3"},
	})
	if len(out) != 0 {
		t.Errorf("expected nothing dispatched, got %+v", out)
	}
}

func TestForgetAllowsRedispatch(t *testing.T) {
	w := testWatcher()
	added := change{kind: firestore.DocumentAdded, path: "users/u1/support/default/messages/m1"}
	if len(w.apply([]change{added})) != 1 {
		t.Fatal("expected first dispatch")
	}
	w.forget(types.MessageRef{UserID: "u1", MessageID: "m1"})
	if len(w.apply([]change{added})) != 1 {
		t.Error("expected dispatch after forget")
	}
}

func TestRestartPolicyUnbounded(t *testing.T) {
	p := RestartPolicy()
	if p.MaxAttempts != 0 {
		t.Errorf("expected unbounded attempts, got %d", p.MaxAttempts)
	}
	if d := p.NextDelay(20); d != p.MaxDelay {
		t.Errorf("expected delay capped at %s, got %s", p.MaxDelay, d)
	}
}

func TestRedispatchAfterFullLane(t *testing.T) {
	w := testWatcher()
	d := &flakyDispatcher{failures: 2, err: errors.New("queue full for user u1")}
	w.dispatch = d

	out := w.apply([]change{{kind: firestore.DocumentAdded, path: "users/u1/support/default/messages/m1"}})
	w.redispatch(context.Background(), out[0])

	if d.calls != 3 || len(d.accepted) != 1 {
		t.Errorf("expected delivery on third attempt, got calls=%d accepted=%v", d.calls, d.accepted)
	}
	if w.Pending() != 1 {
		t.Errorf("expected message still tracked, got %d", w.Pending())
	}
}

func TestRedispatchGivesUpOnStoppedQueue(t *testing.T) {
	w := testWatcher()
	d := &flakyDispatcher{failures: 100, err: gateway.ErrQueueStopped}
	w.dispatch = d

	out := w.apply([]change{{kind: firestore.DocumentAdded, path: "users/u1/support/default/messages/m1"}})
	w.redispatch(context.Background(), out[0])

	if d.calls != 1 {
		t.Errorf("expected a single attempt against a stopped queue, got %d", d.calls)
	}
	if w.Pending() != 0 {
		t.Errorf("expected message forgotten so a restart can pick it up, got %d", w.Pending())
	}
}

func TestRedispatchBounded(t *testing.T) {
	w := testWatcher()
	d := &flakyDispatcher{failures: 100, err: errors.New("queue full for user u1")}
	w.dispatch = d

	out := w.apply([]change{{kind: firestore.DocumentAdded, path: "users/u1/support/default/messages/m1"}})
	w.redispatch(context.Background(), out[0])

	if d.calls != w.handoff.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", w.handoff.MaxAttempts, d.calls)
	}
	if w.Pending() != 0 {
		t.Errorf("expected message forgotten, got %d", w.Pending())
	}
}
