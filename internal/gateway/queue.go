package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/supportrelay/internal/types"
)

const (
	laneBuffer      = 100
	defaultLaneIdle = time.Minute
)

var ErrQueueStopped = errors.New("queue stopped")

// Queue manages per-user lanes with a global concurrency semaphore.
// Each user gets a FIFO channel (lane) so that deliveries for one user are
// processed sequentially, while the semaphore limits the total number of
// concurrent deliveries across all users. A lane that stays empty for
// laneIdle is retired.
type Queue struct {
	lanes     map[types.UserID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	laneIdle  time.Duration
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all user lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.UserID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		laneIdle:  defaultLaneIdle,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop refuses new runs, lets every lane finish what it already holds, then
// cancels the queue context. Cancel the parent context to abandon queued work.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for id, lane := range q.lanes {
			close(lane)
			delete(q.lanes, id)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

// Enqueue adds a Run to the user's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	lane, exists := q.lanes[run.UserID]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.UserID] = lane
		q.wg.Add(1)
		go q.processLane(run.UserID, lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return fmt.Errorf("queue full for user %s", run.UserID)
	}
}

// processLane drains a single user lane, acquiring a semaphore slot
// before running the processor synchronously. This ensures strict FIFO
// ordering within a user while the semaphore limits cross-user parallelism.
func (q *Queue) processLane(userID types.UserID, lane chan *Run) {
	defer q.wg.Done()
	idle := time.NewTimer(q.laneIdle)
	defer idle.Stop()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				run.Ctx = q.ctx
				if err := q.processor(run); err != nil {
					slog.Error("run failed", "run_id", string(run.ID), "user_id", string(run.UserID), "error", err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
			idle.Reset(q.laneIdle)
		case <-idle.C:
			if q.retire(userID, lane) {
				return
			}
			idle.Reset(q.laneIdle)
		case <-q.ctx.Done():
			return
		}
	}
}

// retire removes an empty lane. Enqueue holds the lock while sending, so no
// run can slip into a lane after it is found empty here.
func (q *Queue) retire(userID types.UserID, lane chan *Run) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(lane) > 0 || q.lanes[userID] != lane {
		return false
	}
	delete(q.lanes, userID)
	return true
}

// Lanes returns the number of live user lanes.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
