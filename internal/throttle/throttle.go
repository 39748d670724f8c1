// Package throttle bounds how often a value is handed to a consumer while
// guaranteeing the most recent value is never lost.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle delivers values to fn at most once per interval. Values pushed
// inside the window replace each other; the newest one is delivered when the
// window closes, or on Flush. fn is never called concurrently with itself.
type Throttle[T any] struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	fn         func(T)
	pending    T
	hasPending bool
	timer      *time.Timer
	closed     bool
}

func New[T any](interval time.Duration, fn func(T)) *Throttle[T] {
	return &Throttle[T]{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		fn:      fn,
	}
}

// Push offers v. It reports whether v was delivered immediately.
func (t *Throttle[T]) Push(v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	if t.timer != nil {
		t.pending, t.hasPending = v, true
		return false
	}

	now := time.Now()
	r := t.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay == 0 {
		t.fn(v)
		return true
	}
	t.pending, t.hasPending = v, true
	t.timer = time.AfterFunc(delay, t.fire)
	return false
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.timer = nil
	if t.closed || !t.hasPending {
		return
	}
	v := t.pending
	t.clearPending()
	t.fn(v)
}

// Flush delivers the pending value, if any, right away.
func (t *Throttle[T]) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

// Close flushes and then drops every later Push.
func (t *Throttle[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	t.closed = true
}

// Discard drops the pending value and every later Push.
func (t *Throttle[T]) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.clearPending()
	t.closed = true
}

func (t *Throttle[T]) flushLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.closed || !t.hasPending {
		return
	}
	v := t.pending
	t.clearPending()
	t.fn(v)
}

func (t *Throttle[T]) clearPending() {
	var zero T
	t.pending, t.hasPending = zero, false
}
