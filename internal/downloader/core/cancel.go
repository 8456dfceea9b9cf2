package core

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
)

// CancelSignal is a shared write-once flag. Once set it stays set for the rest of the run.
type CancelSignal struct {
	flag atomic.Bool

	initDone  sync.Once
	closeDone sync.Once
	done      chan struct{}
}

// NewCancelSignal returns an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{}
}

// Cancel sets the flag. Safe to call from a signal handler goroutine, any number of times.
func (c *CancelSignal) Cancel() {
	c.flag.Store(true)
	done := c.doneChan()
	c.closeDone.Do(func() { close(done) })
}

// Done returns a channel closed by the first Cancel. A nil signal never closes.
func (c *CancelSignal) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.doneChan()
}

func (c *CancelSignal) doneChan() chan struct{} {
	c.initDone.Do(func() { c.done = make(chan struct{}) })
	return c.done
}

// Context derives a context that ends when the signal is set, so requests
// blocked on a stalled peer return instead of waiting out their timeout.
func (c *CancelSignal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := c.Done()
	if done == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Cancelled reports whether Cancel has been called. A nil signal is never cancelled.
func (c *CancelSignal) Cancelled() bool {
	return c != nil && c.flag.Load()
}

// NotifyOnContext sets the flag when ctx is done. The returned function stops the watch.
func (c *CancelSignal) NotifyOnContext(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Cancel()
		case <-done:
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
	}
}

// ErrInterrupted is returned by blocking helpers that observed the CancelSignal.
var ErrInterrupted = stdErrors.New("interrupted")
