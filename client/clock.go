package client

import (
	"math"
	"time"

	server "driftisle/server"
)

// RenderDelayTicks is how far rendering lags the local clock. The lag
// guarantees buffered samples exist on both sides of the render target,
// absorbing network jitter at the cost of a fixed, small latency.
const RenderDelayTicks = 2

// Clock turns wall-clock time into the client's estimate of the server
// tick. It is anchored once, at the tick reported by the join snapshot,
// and advances at the fixed server tick rate from then on; send-time
// jitter on individual messages never perturbs it.
type Clock struct {
	baseTick uint32
	start    time.Time
	interval time.Duration
}

// NewClock anchors a clock at baseTick as of start.
func NewClock(baseTick uint32, start time.Time, interval time.Duration) *Clock {
	if interval <= 0 {
		interval = server.TickInterval
	}
	return &Clock{baseTick: baseTick, start: start, interval: interval}
}

// Now reports the current tick and the fractional progress through it,
// in [0,1). Monotonic non-decreasing as long as now is.
func (c *Clock) Now(now time.Time) (tick uint32, frac float64) {
	elapsed := now.Sub(c.start)
	if elapsed < 0 {
		return c.baseTick, 0
	}
	ticks := float64(elapsed) / float64(c.interval)
	whole := math.Floor(ticks)
	return c.baseTick + uint32(whole), ticks - whole
}

// RenderTarget reports the simulation time rendering should sample:
// RenderDelayTicks behind the clock. Before the clock has advanced that
// far the anchor tick is returned, so a fresh join renders the snapshot
// state rather than underflowing.
func (c *Clock) RenderTarget(now time.Time) (tick uint32, frac float64) {
	tick, frac = c.Now(now)
	if tick < c.baseTick+RenderDelayTicks {
		return c.baseTick, 0
	}
	return tick - RenderDelayTicks, frac
}
