package taskctx

import (
	"sync"
	"time"
)

// DefaultInterval bounds progress emission to 4 samples per second.
const DefaultInterval = 250 * time.Millisecond

// Throttle coalesces a stream of progress samples down to at most one
// emission per interval. The newest sample always wins; a trailing Flush
// delivers whatever was pending so final-value accuracy is preserved.
//
// The emit decision is a pure function of (now, lastEmit, interval),
// independent of any scheduler primitive; the clock is injectable for
// tests.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	emit     func(Progress)

	mu       sync.Mutex
	lastEmit time.Time
	pending  *Progress
}

// NewThrottle builds a throttle delivering to emit. A nil emit yields a
// no-op throttle, which keeps call sites unconditional.
func NewThrottle(interval time.Duration, emit func(Progress)) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		emit:     emit,
	}
}

// SetClock replaces the time source. Test hook.
func (t *Throttle) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Push offers a new sample. It is emitted immediately if the interval has
// elapsed since the last emission, otherwise it replaces the pending
// sample.
func (t *Throttle) Push(p Progress) {
	if t == nil || t.emit == nil {
		return
	}
	t.mu.Lock()
	now := t.now()
	if shouldEmit(now, t.lastEmit, t.interval) {
		t.lastEmit = now
		t.pending = nil
		t.mu.Unlock()
		t.emit(p)
		return
	}
	t.pending = &p
	t.mu.Unlock()
}

// Flush emits the pending sample, if any, regardless of the interval.
func (t *Throttle) Flush() {
	if t == nil || t.emit == nil {
		return
	}
	t.mu.Lock()
	p := t.pending
	if p != nil {
		t.pending = nil
		t.lastEmit = t.now()
	}
	t.mu.Unlock()
	if p != nil {
		t.emit(*p)
	}
}

// shouldEmit is the rate-limit law: emit when at least one interval has
// passed since the previous emission.
func shouldEmit(now, lastEmit time.Time, interval time.Duration) bool {
	return now.Sub(lastEmit) >= interval
}
