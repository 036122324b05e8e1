// Package cancel implements the cooperative cancellation latch shared by
// every suspending operation in the orchestration core.
package cancel

import (
	"context"
	"sync"
)

// Signal is a monotonic latch: once Set, it stays set. It is safe for
// concurrent use by any number of waiters and at most implicitly one
// setter (Set is idempotent regardless of caller count).
type Signal struct {
	once sync.Once
	ch   chan struct{}
	init sync.Once
}

// New returns a ready-to-use Signal.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

func (s *Signal) lazyInit() {
	s.init.Do(func() {
		if s.ch == nil {
			s.ch = make(chan struct{})
		}
	})
}

// Set latches the signal. Safe to call more than once or concurrently.
func (s *Signal) Set() {
	s.lazyInit()
	s.once.Do(func() { close(s.ch) })
}

// IsSet reports whether the signal has been set, without blocking.
func (s *Signal) IsSet() bool {
	s.lazyInit()
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait suspends until the signal is set or ctx is done, whichever
// happens first. It returns ctx.Err() if ctx ended the wait, nil if the
// signal was set.
func (s *Signal) Wait(ctx context.Context) error {
	s.lazyInit()
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the signal is set, for use directly
// in a select alongside other suspension points (model stream chunks,
// tool execute, confirmation wait).
func (s *Signal) Done() <-chan struct{} {
	s.lazyInit()
	return s.ch
}
