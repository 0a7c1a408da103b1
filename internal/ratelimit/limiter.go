// Package ratelimit implements the fixed-window limiter that guards the chat endpoint.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	Close() error
}

// Policy is a fixed window: at most Limit requests per Window.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// DefaultPolicy allows 10 requests every 10 seconds.
var DefaultPolicy = Policy{Limit: 10, Window: 10 * time.Second}

// windowStart returns the start of the window containing now.
func (p Policy) windowStart(now time.Time) time.Time {
	return now.Truncate(p.Window)
}

// Result describes the state of the caller's window after this request.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

func newResult(p Policy, count int64, start time.Time) *Result {
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   count <= p.Limit,
		Limit:     p.Limit,
		Remaining: remaining,
		Reset:     start.Add(p.Window),
	}
}

// RetryAfter is the time left until the window resets.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if d := r.Reset.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SetHeaders writes X-RateLimit-* headers, plus Retry-After when denied.
func (r *Result) SetHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(r.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(r.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(r.Reset.Unix(), 10))
	if !r.Allowed {
		secs := int64(r.RetryAfter(now).Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock returns Time until it is changed.
type FixedClock struct {
	Time time.Time
}

// Now returns the fixed time.
func (c *FixedClock) Now() time.Time { return c.Time }

// Advance moves the clock forward.
func (c *FixedClock) Advance(d time.Duration) { c.Time = c.Time.Add(d) }
