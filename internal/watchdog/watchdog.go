// Package watchdog enforces wall-clock limits on the build run and its
// subprocesses.
//
// A Watchdog is a deadline carried by a context plus a supervising
// goroutine that observes expiry. Cancellation is cooperative: an expired
// deadline cancels the context, and the subprocess runner reacts by
// signalling the subprocess's whole process group to terminate, escalating
// to SIGKILL after a grace period. Two independent watchdog roles exist:
// one bounding only the SCM checkout phase, one bounding the entire run.
package watchdog

import (
	"context"
	"sync"
	"time"
)

// Watchdog supervises one deadline. Obtain one from Arm and stop it with
// Disarm on every exit path.
type Watchdog struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	expired bool
}

// Arm starts a watchdog named name that expires d after now. The returned
// watchdog's Context is cancelled at the deadline (or when parent is
// cancelled); onExpire, if non-nil, runs exactly once when the deadline
// itself fires.
func Arm(parent context.Context, name string, d time.Duration, onExpire func(name string)) *Watchdog {
	ctx, cancel := context.WithTimeout(parent, d)
	w := &Watchdog{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		<-ctx.Done()
		// Once Done is closed the error is stable: a Disarm cancel
		// racing in after the deadline fired cannot turn
		// DeadlineExceeded into Canceled.
		if ctx.Err() != context.DeadlineExceeded {
			return
		}
		w.mu.Lock()
		w.expired = true
		w.mu.Unlock()
		if onExpire != nil {
			onExpire(name)
		}
	}()

	return w
}

// Context returns the deadline context. Subprocesses bounded by this
// watchdog must run under it.
func (w *Watchdog) Context() context.Context {
	return w.ctx
}

// Disarm stops the watchdog and waits for its supervising goroutine to
// exit, so a disarmed watchdog can never fire against a later, unrelated
// piece of work. A deadline that fired before Disarm is still recorded as
// an expiry. Disarm is idempotent and safe on every exit path.
func (w *Watchdog) Disarm() {
	w.cancel()
	<-w.done
}

// Expired reports whether the deadline itself fired (as opposed to a
// disarm or parent cancellation).
func (w *Watchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}
