package engine

import (
	"sync/atomic"
	"time"
)

// Clock hands out the logical seq that orders the call log.
//
// Thread-safety: Clock is safe for concurrent use, although the engine only
// advances it while holding its write lock.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose first Next returns start+1. The engine
// starts it at the store's last recorded seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last seq handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeSource supplies the host time, in unix seconds, for calls that do not
// pin one.
type TimeSource interface {
	Now() uint64
}

// SystemTime reads the wall clock.
type SystemTime struct{}

// Now returns the current unix time.
func (SystemTime) Now() uint64 {
	return uint64(time.Now().Unix())
}
