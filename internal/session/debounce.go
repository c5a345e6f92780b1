package session

import (
	"sync"
	"time"
)

// Debouncer runs fn with the most recently scheduled value once its delay
// passes without another Schedule. Every Schedule supersedes the previous
// one; a superseded timer that already fired concurrently is still dropped
// because its generation no longer matches.
type Debouncer[T any] struct {
	clock Clock
	fn    func(T)

	mu         sync.Mutex
	generation uint64
	timer      Timer
}

func NewDebouncer[T any](clock Clock, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = SystemClock()
	}
	return &Debouncer[T]{clock: clock, fn: fn}
}

// Handle cancels the call it was returned for, and nothing newer.
type Handle struct {
	cancel func() bool
}

// Cancel reports whether the call was still pending.
func (h *Handle) Cancel() bool {
	if h == nil || h.cancel == nil {
		return false
	}
	return h.cancel()
}

func (d *Debouncer[T]) Schedule(value T, delay time.Duration) *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.generation++
	generation := d.generation
	d.timer = d.clock.AfterFunc(delay, func() {
		d.fire(generation, value)
	})
	return &Handle{cancel: func() bool {
		return d.cancel(generation)
	}}
}

// CancelAll drops whatever is pending and reports whether anything was.
func (d *Debouncer[T]) CancelAll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.timer != nil
	d.stopLocked()
	d.generation++
	return pending
}

func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer[T]) fire(generation uint64, value T) {
	d.mu.Lock()
	if generation != d.generation || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn(value)
}

func (d *Debouncer[T]) cancel(generation uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if generation != d.generation || d.timer == nil {
		return false
	}
	d.stopLocked()
	d.generation++
	return true
}

func (d *Debouncer[T]) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
