// Package core holds process-wide runtime primitives shared by the handlers.
package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTaskTimeout bounds a single background task.
const DefaultTaskTimeout = 2 * time.Minute

// Tasks runs work that must finish even after the request that started it
// has ended or its client disconnected. Tasks are tracked so shutdown and
// tests can wait for them.
type Tasks struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	closed  bool
	pending atomic.Int64
	timeout time.Duration
}

// NewTasks creates a task group. A non-positive timeout uses DefaultTaskTimeout.
func NewTasks(timeout time.Duration) *Tasks {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Tasks{timeout: timeout}
}

// Go runs fn in the background. The context passed to fn keeps parent's
// values but not its cancellation, and expires after the group timeout.
// Once Shutdown has begun, fn runs synchronously on the caller's goroutine.
func (t *Tasks) Go(parent context.Context, name string, fn func(ctx context.Context)) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		t.run(parent, name, fn)
		return
	}
	t.wg.Add(1)
	t.pending.Add(1)
	t.mu.RUnlock()

	go func() {
		defer t.wg.Done()
		defer t.pending.Add(-1)
		t.run(parent, name, fn)
	}()
}

func (t *Tasks) run(parent context.Context, name string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), t.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", name).Interface("panic", r).Msg("background task panicked")
		}
	}()
	fn(ctx)
}

// Pending returns how many tasks are running.
func (t *Tasks) Pending() int {
	return int(t.pending.Load())
}

// Wait blocks until every task started so far has returned, or ctx ends.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting background work and waits for running tasks.
func (t *Tasks) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Wait(ctx)
}
