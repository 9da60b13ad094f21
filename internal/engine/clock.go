package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps change events with a strictly increasing sequence number.
//
// The change log is ordered by seq, never by wall-clock time, so two
// requests recorded in the same millisecond still have a total order.
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start. Used to continue the
// sequence of an existing change log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// TimeFormat is the layout of the request timestamp written to
// last-modified columns and the change log.
const TimeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
