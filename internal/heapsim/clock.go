package heapsim

import "sync/atomic"

// Clock is a deterministic, manually-advanced stand-in for a monotonic
// wall clock: tests step it explicitly so timing-derived log fields and
// GCInfo timestamps are reproducible.
type Clock struct {
	nanos atomic.Int64
}

// NewClock creates a clock starting at the given nanosecond value.
func NewClock(start int64) *Clock {
	c := &Clock{}
	c.nanos.Store(start)
	return c
}

func (c *Clock) NowNanos() int64  { return c.nanos.Load() }
func (c *Clock) NowMicros() int64 { return c.nanos.Load() / 1000 }

// Advance moves the clock forward by delta nanoseconds.
func (c *Clock) Advance(delta int64) { c.nanos.Add(delta) }
