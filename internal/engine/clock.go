package engine

import "sync/atomic"

// Clock is the logical tick counter of a run.
//
// Ticks are numbered from 1 and never reused. Nothing in a run is ordered by
// wall-clock time; mutation records carry their own sequence numbers from
// the graph.
//
// Thread-safety: Clock is safe for concurrent reads (atomic operations).
// Only the engine advances it.
type Clock struct {
	tick atomic.Int64
}

// NewClock creates a clock before the first tick.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next tick is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Next advances the clock and returns the new tick.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the last tick started, 0 before the first.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}

// rewind steps back after a tick was rolled back.
func (c *Clock) rewind() {
	c.tick.Add(-1)
}
