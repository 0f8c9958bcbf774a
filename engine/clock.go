package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping processed records.
//
// Every record walked by PreProcess receives a strictly increasing seq
// number from this clock. This ensures:
// - Deterministic ordering across batches (no wall-clock race conditions)
// - Traces of the same scenario are byte-identical run to run
// - Causal relationships between batches are explicit in logs
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the engine's single-threaded contract means only one goroutine
// normally calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used by tests and the harness to pin trace numbering.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
