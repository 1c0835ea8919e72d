// Package trigger turns newly created pending message documents into
// deliveries. It listens to the messages collection group and dispatches
// each added document once.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/user/supportrelay/internal/docpath"
	"github.com/user/supportrelay/internal/gateway"
	"github.com/user/supportrelay/internal/lifecycle"
	"github.com/user/supportrelay/internal/metrics"
	"github.com/user/supportrelay/internal/types"
)

// Dispatcher accepts a created message for delivery. It must not block on
// the delivery itself.
type Dispatcher interface {
	HandleCreated(ctx context.Context, event types.MessageCreated) error
}

// RestartPolicy is used when the listener drops. Attempts are unbounded and
// reset after every snapshot received.
func RestartPolicy() *lifecycle.RetryPolicy {
	return &lifecycle.RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     time.Minute,
	}
}

// HandoffPolicy is used when the dispatcher refuses a message, e.g. a full
// lane. A stopped queue is final.
func HandoffPolicy() *lifecycle.RetryPolicy {
	return &lifecycle.RetryPolicy{
		MaxAttempts:  6,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		Retryable: func(err error) bool {
			return !errors.Is(err, gateway.ErrQueueStopped) &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	}
}

type Watcher struct {
	client   *firestore.Client
	path     docpath.Template
	dispatch Dispatcher
	retry    *lifecycle.RetryPolicy
	handoff  *lifecycle.RetryPolicy
	metrics  *metrics.Metrics
	handoffs sync.WaitGroup

	mu sync.Mutex
	// dispatched holds pending documents already handed off, so a listener
	// restart does not deliver them twice. Entries leave when the document
	// leaves the pending query.
	dispatched map[types.MessageRef]struct{}
}

func NewWatcher(client *firestore.Client, path docpath.Template, dispatch Dispatcher, m *metrics.Metrics) *Watcher {
	return &Watcher{
		client:     client,
		path:       path,
		dispatch:   dispatch,
		retry:      RestartPolicy(),
		handoff:    HandoffPolicy(),
		metrics:    m,
		dispatched: make(map[types.MessageRef]struct{}),
	}
}

// Run listens until ctx ends. It returns nil on cancellation and an error
// only when the listener fails permanently.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.handoffs.Wait()
	slog.Info("message listener starting", "collection_group", w.path.CollectionID(), "path", w.path.String())
	attempt := 0
	for {
		err := w.listen(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.Info("message listener stopped")
			return nil
		}
		attempt++
		if !w.retry.ShouldRetry(err, attempt) {
			return fmt.Errorf("listen messages: %w", err)
		}
		delay := w.retry.NextDelay(attempt)
		slog.Warn("message listener dropped, restarting", "error", err, "attempt", attempt, "delay", delay.String())
		w.metrics.TriggerRestarted()
		if lifecycle.Sleep(ctx, delay) != nil {
			slog.Info("message listener stopped")
			return nil
		}
	}
}

func (w *Watcher) listen(ctx context.Context, received func()) error {
	q := w.client.CollectionGroup(w.path.CollectionID()).
		Where("status", "==", string(types.StatusPending))
	it := q.Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return errors.New("snapshot iterator closed")
		}
		if err != nil {
			return err
		}
		received()

		changes := make([]change, 0, len(snap.Changes))
		for _, c := range snap.Changes {
			ch := change{kind: c.Kind, path: c.Doc.Ref.Path}
			if c.Kind == firestore.DocumentAdded {
				if err := c.Doc.DataTo(&ch.msg); err != nil {
					slog.Warn("skipping undecodable message", "path", docpath.Relative(ch.path), "error", err)
					continue
				}
			}
			changes = append(changes, ch)
		}
		for _, ev := range w.apply(changes) {
			if err := w.dispatch.HandleCreated(ctx, ev); err != nil {
				slog.Warn("dispatch refused, retrying in background",
					"user_id", string(ev.Ref.UserID), "message_id", string(ev.Ref.MessageID), "error", err)
				w.handoffs.Add(1)
				go func() {
					defer w.handoffs.Done()
					w.redispatch(ctx, ev)
				}()
			}
		}
	}
}

type change struct {
	kind firestore.DocumentChangeKind
	path string
	msg  types.Message
}

// apply updates the dispatched set and returns the events to deliver: added
// documents under the messages template that were not handed off before.
// Documents of the same collection id elsewhere in the database are ignored.
func (w *Watcher) apply(changes []change) []types.MessageCreated {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []types.MessageCreated
	for _, c := range changes {
		userID, msgID, ok := w.path.MatchChild(c.path)
		if !ok {
			continue
		}
		ref := types.MessageRef{UserID: types.UserID(userID), MessageID: types.MessageID(msgID)}
		switch c.kind {
		case firestore.DocumentAdded:
			if _, seen := w.dispatched[ref]; seen {
				continue
			}
			w.dispatched[ref] = struct{}{}
			out = append(out, types.MessageCreated{Ref: ref, Message: c.msg})
		case firestore.DocumentRemoved:
			delete(w.dispatched, ref)
		}
	}
	return out
}

// redispatch retries a refused hand-off. If it never succeeds the message
// stays pending and is only picked up again when the listener restarts.
func (w *Watcher) redispatch(ctx context.Context, ev types.MessageCreated) {
	err := w.handoff.Execute(ctx, func(ctx context.Context) error {
		return w.dispatch.HandleCreated(ctx, ev)
	})
	if err == nil {
		return
	}
	w.forget(ev.Ref)
	if ctx.Err() != nil {
		return
	}
	slog.Error("message left pending, not delivered until the listener restarts",
		"user_id", string(ev.Ref.UserID), "message_id", string(ev.Ref.MessageID), "error", err)
}

func (w *Watcher) forget(ref types.MessageRef) {
	w.mu.Lock()
	delete(w.dispatched, ref)
	w.mu.Unlock()
}

// Pending reports how many handed-off documents are still pending.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dispatched)
}
