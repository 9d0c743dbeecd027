// Package loop runs submitted work on a single goroutine, giving headless
// front ends the same one-thread guarantee the TUI update loop provides.
package loop

import (
	"context"
	"errors"
)

// ErrStopped is returned when work is submitted to a loop that has exited.
var ErrStopped = errors.New("loop stopped")

type job struct {
	fn   func()
	done chan struct{}
}

// Loop serialises functions onto the goroutine that calls Run.
type Loop struct {
	jobs    chan job
	stopped chan struct{}
}

// New creates a Loop with room for queue pending jobs.
func New(queue int) *Loop {
	return &Loop{
		jobs:    make(chan job, queue),
		stopped: make(chan struct{}),
	}
}

// Run executes jobs until ctx is done. Jobs still queued are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-l.jobs:
			j.fn()
			if j.done != nil {
				close(j.done)
			}
		}
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.Stopped() {
		return ErrStopped
	}
	j := job{fn: fn, done: make(chan struct{})}
	select {
	case l.jobs <- j:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-j.done:
		return nil
	case <-l.stopped:
		// Run may have finished the job just before exiting.
		select {
		case <-j.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn without waiting. It reports false if the loop has exited.
func (l *Loop) Post(fn func()) bool {
	if l.Stopped() {
		return false
	}
	select {
	case l.jobs <- job{fn: fn}:
		return true
	case <-l.stopped:
		return false
	}
}

// Stopped reports whether Run has returned.
func (l *Loop) Stopped() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}
