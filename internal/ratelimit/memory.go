package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// MemoryLimiter is a single-process fixed-window limiter.
type MemoryLimiter struct {
	policy Policy
	clock  Clock

	mu      sync.Mutex
	windows map[string]*window

	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryLimiter creates an in-memory limiter. A positive cleanupInterval
// starts a goroutine that drops expired windows; Close stops it.
func NewMemoryLimiter(policy Policy, cleanupInterval time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		policy:  policy,
		clock:   SystemClock{},
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		m.cleanup = time.NewTicker(cleanupInterval)
		go m.cleanupLoop()
	}
	return m
}

// WithClock sets a custom clock.
func (m *MemoryLimiter) WithClock(c Clock) *MemoryLimiter {
	m.clock = c
	return m
}

// Allow counts one request against key's current window.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	start := m.policy.windowStart(m.clock.Now())

	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		m.windows[key] = w
	}
	w.count++
	return newResult(m.policy, w.count, start), nil
}

func (m *MemoryLimiter) cleanupLoop() {
	for {
		select {
		case <-m.cleanup.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryLimiter) sweep() {
	current := m.policy.windowStart(m.clock.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, w := range m.windows {
		if w.start.Before(current) {
			delete(m.windows, k)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() {
		if m.cleanup != nil {
			m.cleanup.Stop()
		}
		close(m.done)
	})
	return nil
}
