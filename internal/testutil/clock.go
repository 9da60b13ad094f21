package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time reported by deterministic time sources.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe monotonic sequence clock for
// tests. Unlike engine.Clock it can be reset, so the same scenario run twice
// records identical change log seq values.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a new deterministic clock starting at 0.
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// Now returns Epoch advanced by one second per sequence number issued so
// far. It lets last-modified stamps move forward deterministically.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Current()) * time.Second)
}

// FixedTime returns a time source that always reports t.
func FixedTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
