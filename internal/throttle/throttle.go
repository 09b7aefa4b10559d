// Package throttle implements the layered bandwidth limiting used by the
// FTP server.
//
// A Throttle is a sliding-window limiter: traffic is accounted into a
// window that is rebased every resetRate seconds so that the
// bytes/limit division never accumulates floating point drift. Several
// throttles can be stacked on one stream (server-wide, per-connection,
// per-user, per user-connection); the stream proceeds only once every
// stacked limiter permits it.
package throttle

import (
	"context"
	"sync"
	"time"
)

// DefaultResetRate is the window length after which accounting is rebased.
const DefaultResetRate = 10 * time.Second

// Throttle limits a single direction of a stream to a number of bytes
// per second. A zero limit disables the throttle. The zero value is not
// usable; use New.
type Throttle struct {
	mu        sync.Mutex
	limit     int64 // bytes per second, 0 means unlimited
	resetRate time.Duration
	start     time.Time // zero until the first Account call
	sum       int64     // bytes accounted into the current window
}

// New creates a throttle limited to limit bytes per second.
// A limit of 0 (or less) disables it.
func New(limit int64) *Throttle {
	return &Throttle{limit: limit, resetRate: DefaultResetRate}
}

// readyAt returns the earliest time at which the next I/O may start.
func (t *Throttle) readyAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit <= 0 || t.start.IsZero() {
		return time.Time{}
	}
	window := time.Duration(float64(t.sum) / float64(t.limit) * float64(time.Second))
	return t.start.Add(window)
}

// Wait blocks until the accounted traffic permits more I/O, or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	end := t.readyAt()
	if end.IsZero() {
		return ctx.Err()
	}
	d := time.Until(end)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Account counts n transferred bytes against the window. start is the
// time the I/O began. The window starts lazily on the first call and is
// rebased once it is older than the reset rate: the bytes the limit
// would have allowed since the window began are subtracted and the
// window restarts at start.
func (t *Throttle) Account(n int, start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit <= 0 {
		return
	}
	if t.start.IsZero() {
		t.start = start
	}
	if elapsed := start.Sub(t.start); elapsed > t.resetRate {
		t.sum -= int64(elapsed.Seconds() * float64(t.limit))
		t.start = start
	}
	t.sum += int64(n)
}

// Limit returns the current limit in bytes per second (0 = unlimited).
func (t *Throttle) Limit() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// SetLimit replaces the limit and resets the window.
func (t *Throttle) SetLimit(limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
	t.start = time.Time{}
	t.sum = 0
}

// Clone returns a throttle with the same configuration and no
// accounting state.
func (t *Throttle) Clone() *Throttle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Throttle{limit: t.limit, resetRate: t.resetRate}
}

// StreamThrottle pairs independent read and write throttles.
type StreamThrottle struct {
	Read  *Throttle
	Write *Throttle
}

// FromLimits builds a StreamThrottle from per-direction limits in bytes
// per second. Zero disables a direction.
func FromLimits(readLimit, writeLimit int64) *StreamThrottle {
	return &StreamThrottle{Read: New(readLimit), Write: New(writeLimit)}
}

// Clone copies the configuration without accounting state.
func (s *StreamThrottle) Clone() *StreamThrottle {
	return &StreamThrottle{Read: s.Read.Clone(), Write: s.Write.Clone()}
}

func (s *StreamThrottle) direction(dir Direction) *Throttle {
	if dir == Read {
		return s.Read
	}
	return s.Write
}

// Direction selects which throttle of a pair an operation applies to.
type Direction int

const (
	Read Direction = iota
	Write
)
