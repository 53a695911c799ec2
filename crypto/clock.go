package crypto

import (
	"sync/atomic"
	"time"
)

// Clock abstracts wall time so proof and round validation are testable.
type Clock interface {
	NowSeconds() int64
}

// SystemClock reads the operating system clock.
type SystemClock struct{}

func (SystemClock) NowSeconds() int64 { return time.Now().Unix() }

// ManualClock is a settable clock for deterministic tests.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock returns a ManualClock pinned at the given unix time.
func NewManualClock(now int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(now)
	return c
}

func (c *ManualClock) NowSeconds() int64 { return c.now.Load() }

// Advance moves the clock forward (or backward) by delta seconds.
func (c *ManualClock) Advance(delta int64) { c.now.Add(delta) }

// Set pins the clock to the given unix time.
func (c *ManualClock) Set(now int64) { c.now.Store(now) }
