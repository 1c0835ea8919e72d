// Package timings records how long each step of one relay run takes.
package timings

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Observer receives every finished step under its plain name.
type Observer func(step string, d time.Duration)

type Step struct {
	Name     string // numbered, e.g. "01_getBinding"
	Duration time.Duration
	done     bool
}

// Timings is safe for concurrent use; steps of one run may overlap.
type Timings struct {
	mu      sync.Mutex
	start   time.Time
	steps   []*Step
	observe Observer
	now     func() time.Time
}

func New(observe Observer) *Timings {
	return newWithClock(observe, time.Now)
}

func newWithClock(observe Observer, now func() time.Time) *Timings {
	return &Timings{start: now(), observe: observe, now: now}
}

// Start opens a numbered step and returns the function that closes it.
// Calling the returned function more than once has no further effect.
func (t *Timings) Start(name string) func() {
	t.mu.Lock()
	s := &Step{Name: fmt.Sprintf("%02d_%s", len(t.steps)+1, name)}
	t.steps = append(t.steps, s)
	began := t.now()
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		if s.done {
			t.mu.Unlock()
			return
		}
		s.done = true
		s.Duration = t.now().Sub(began)
		d := s.Duration
		t.mu.Unlock()

		if t.observe != nil {
			t.observe(name, d)
		}
	}
}

// Track runs fn as a step named name.
func Track[T any](t *Timings, name string, fn func() (T, error)) (T, error) {
	stop := t.Start(name)
	defer stop()
	return fn()
}

// Steps returns the finished steps in the order they were started.
func (t *Timings) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Step, 0, len(t.steps))
	for _, s := range t.steps {
		if s.done {
			out = append(out, Step{Name: s.Name, Duration: s.Duration})
		}
	}
	return out
}

// Total is the time elapsed since New.
func (t *Timings) Total() time.Duration {
	return t.now().Sub(t.start)
}

// LogValue renders the finished steps as a group, so a *Timings can be
// passed straight to slog.
func (t *Timings) LogValue() slog.Value {
	steps := t.Steps()
	attrs := make([]slog.Attr, 0, len(steps))
	for _, s := range steps {
		attrs = append(attrs, slog.String(s.Name, s.Duration.Round(time.Millisecond).String()))
	}
	return slog.GroupValue(attrs...)
}
