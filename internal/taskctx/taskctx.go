// Package taskctx provides the cancellable unit-of-work handle shared by
// every long-running operation: a context-backed cancellation token with a
// graceful-cancel / hard-abort distinction, plus throttled progress
// emission.
package taskctx

import (
	"context"
	"errors"
)

// Cancellation error taxonomy. Neither is an item-level failure: cancelled
// work either requeues or proceeds to discard cleanup, never both.
var (
	// ErrCancelled is a cooperative, user- or system-initiated stop.
	ErrCancelled = errors.New("operation was cancelled")
	// ErrAborted is a forced stop used when fully discarding a download.
	ErrAborted = errors.New("operation was aborted")
)

// Progress is one sample of task advancement.
type Progress struct {
	Progress float64
	BPS      float64
	ETA      float64
}

// Context is the handle a unit of work carries through every suspension
// point. Cancellation is cooperative: work is expected to call Checkpoint
// (or select on Done) at each file/network/subprocess boundary and unwind
// with the returned error.
type Context struct {
	id       string
	ctx      context.Context
	cancel   context.CancelCauseFunc
	throttle *Throttle
}

// New derives a task context from parent. onProgress may be nil; when set,
// it receives coalesced progress samples (at most one per throttle
// interval, final value always delivered by FlushProgress).
func New(parent context.Context, id string, onProgress func(Progress)) *Context {
	ctx, cancel := context.WithCancelCause(parent)
	return &Context{
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		throttle: NewThrottle(DefaultInterval, onProgress),
	}
}

// ID returns the task id this context belongs to.
func (c *Context) ID() string {
	return c.id
}

// Ctx exposes the underlying context for APIs that take a context.Context.
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Done is closed once the task has been cancelled or aborted.
func (c *Context) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Checkpoint returns nil while the task may continue, or the cancellation
// cause (ErrCancelled or ErrAborted) once a stop was requested. Call this
// at every suspension point.
func (c *Context) Checkpoint() error {
	if c.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(c.ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrCancelled
	}
	return cause
}

// CancelGracefully signals a cooperative stop. The running work observes
// it at its next suspension point.
func (c *Context) CancelGracefully() {
	c.cancel(ErrCancelled)
}

// Abort signals a forced stop, used when the item is being discarded
// outright rather than paused or displaced.
func (c *Context) Abort() {
	c.cancel(ErrAborted)
}

// Publish reports a progress sample through the coalescing throttle.
func (c *Context) Publish(p Progress) {
	c.throttle.Push(p)
}

// FlushProgress delivers any pending coalesced sample. Call once the work
// settles so the final value is never lost to throttling.
func (c *Context) FlushProgress() {
	c.throttle.Flush()
}

// IsCancelled reports whether err is any flavor of cooperative stop,
// including a plain context cancellation bubbling up from below.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled)
}

// IsAborted reports whether err is specifically the forced-discard stop.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
