// Package clock implements the monotonic clock and sleep dispatch of §4.1:
// short sleeps are busy-tolerant and interruptible by an alive flag; long
// sleeps are delegated to an injected callback so the host scheduler can
// yield in its own way.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/RedCarrottt/recordroid/internal/constants"
)

// Clock is the injectable time source used throughout the engine. Tests
// supply a fake that advances deterministically instead of sleeping
// wall-clock time.
type Clock interface {
	// NowMicros returns a monotonically non-decreasing microsecond timestamp.
	NowMicros() int64
	// SleepNanos dispatches to a short or long sleep per constants.ShortSleepThreshold,
	// returning early if alive transitions to false mid-sleep.
	SleepNanos(ns int64, alive *atomic.Bool)
}

// LongSleepFunc is the externally delegated long-sleep callback.
type LongSleepFunc func(ms int32)

// Real is the production Clock, backed by time.Now and a delegated
// long-sleep callback.
type Real struct {
	longSleep  LongSleepFunc
	maxSleepMs int
	start      time.Time
}

// NewReal constructs a Real clock. maxSleepMs caps every delegated long
// sleep; 0 means uncapped.
func NewReal(longSleep LongSleepFunc, maxSleepMs int) *Real {
	return &Real{longSleep: longSleep, maxSleepMs: maxSleepMs, start: time.Now()}
}

func (c *Real) NowMicros() int64 {
	return time.Since(c.start).Microseconds()
}

func (c *Real) SleepNanos(ns int64, alive *atomic.Bool) {
	if ns <= 0 {
		return
	}
	if time.Duration(ns) < constants.ShortSleepThreshold {
		c.shortSleep(ns, alive)
		return
	}
	c.longSleep_(ns/1_000_000, alive)
}

// shortSleep polls in small increments so it notices alive flipping to
// false without waiting out the full duration; this is the Go analogue of
// restarting a signal-interrupted nanosleep with the remaining time.
func (c *Real) shortSleep(ns int64, alive *atomic.Bool) {
	const slice = 200 * time.Microsecond
	remaining := time.Duration(ns)
	for remaining > 0 {
		if alive != nil && !alive.Load() {
			return
		}
		step := remaining
		if step > slice {
			step = slice
		}
		time.Sleep(step)
		remaining -= step
	}
}

func (c *Real) longSleep_(ms int64, alive *atomic.Bool) {
	if alive != nil && !alive.Load() {
		return
	}
	if c.maxSleepMs > 0 && ms > int64(c.maxSleepMs) {
		ms = int64(c.maxSleepMs)
	}
	if c.longSleep != nil {
		c.longSleep(int32(ms))
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// Fake is a deterministic Clock for tests: NowMicros is driven by Advance,
// and sleeps advance the clock without blocking. Only long sleeps are
// recorded, in LongSleeps (in whole milliseconds).
type Fake struct {
	micros     atomic.Int64
	LongSleeps []int32
}

func NewFake() *Fake { return &Fake{} }

func (c *Fake) NowMicros() int64 { return c.micros.Load() }

func (c *Fake) Advance(d time.Duration) { c.micros.Add(d.Microseconds()) }

func (c *Fake) SleepNanos(ns int64, alive *atomic.Bool) {
	if time.Duration(ns) < constants.ShortSleepThreshold {
		c.Advance(time.Duration(ns))
		return
	}
	ms := ns / 1_000_000
	c.LongSleeps = append(c.LongSleeps, int32(ms))
	c.Advance(time.Duration(ms) * time.Millisecond)
}
