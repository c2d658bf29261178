package testutil

import (
	"sync/atomic"
	"time"
)

// Epoch is the wall time a DeterministicClock starts from.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a logical clock for tests. Each Now call is one
// millisecond after the previous one, starting at Epoch+1ms, so history
// timestamps come out as consecutive integers. Safe for concurrent use.
type DeterministicClock struct {
	ticks atomic.Int64
}

func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Now advances the clock by one tick. It has the shape of time.Now.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.ticks.Add(1)) * time.Millisecond)
}

// Ticks reports how many times Now has been called since the last Reset.
func (c *DeterministicClock) Ticks() int64 {
	return c.ticks.Load()
}

// Reset rewinds the clock so the next Now is Epoch+1ms again.
func (c *DeterministicClock) Reset() {
	c.ticks.Store(0)
}

// Frozen returns a clock func that always reports t.
func Frozen(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
