package gateway

import (
	"context"
	"time"

	"github.com/user/supportrelay/internal/types"
)

// Handler delivers one created message. It owns its own failure handling.
type Handler interface {
	Handle(ctx context.Context, event types.MessageCreated)
}

// Gateway serializes deliveries per user. Two messages from the same user
// never race to open a thread in this process.
type Gateway struct {
	handler Handler
	Queue   *Queue
}

// New creates a Gateway around handler with the given concurrency limit for
// simultaneous deliveries.
func New(handler Handler, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		handler: handler,
		Queue:   NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.Queue.Start(ctx)
}

// Stop waits for queued deliveries to finish.
func (g *Gateway) Stop() {
	g.Queue.Stop()
}

// HandleCreated enqueues the event on its user's lane.
func (g *Gateway) HandleCreated(_ context.Context, event types.MessageCreated) error {
	return g.Queue.Enqueue(NewRun(event))
}

func (g *Gateway) process(run *Run) error {
	started := time.Now()
	run.StartedAt = &started
	run.Status = RunStatusRunning
	g.handler.Handle(run.Ctx, run.Event)
	ended := time.Now()
	run.EndedAt = &ended
	run.Status = RunStatusComplete
	return nil
}
