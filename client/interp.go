// Package client reconstructs a smoothly moving world from the server's
// sparse, tick-stamped replication stream. It owns the connection to the
// server, the per-entity interpolation buffers and the local tick clock,
// and exposes a non-blocking poll/render surface for a UI layer to call
// once per frame.
package client

import "driftisle/server/internal/net/proto"

// DefaultSampleDepth is how many position samples an entity buffers.
const DefaultSampleDepth = 8

// Sample is one tick-stamped position observation.
type Sample struct {
	Tick uint32
	Pos  proto.Vec2
}

// Buffer keeps the most recent samples of one entity, newest first.
// Ticks are strictly decreasing from index 0 onward; a pushed sample
// never reorders existing ones.
type Buffer struct {
	samples []Sample
	depth   int
}

// NewBuffer builds a buffer holding up to depth samples.
func NewBuffer(depth int) *Buffer {
	if depth <= 0 {
		depth = DefaultSampleDepth
	}
	return &Buffer{samples: make([]Sample, 0, depth), depth: depth}
}

// Push records a sample. A tick older than the newest stored one is
// discarded, the newest tick itself is overwritten in place; only a
// strictly newer tick shifts the buffer, evicting the oldest sample
// once depth is reached. Returns whether the sample was kept.
func (b *Buffer) Push(tick uint32, pos proto.Vec2) bool {
	n := len(b.samples)
	if n > 0 {
		newest := b.samples[0].Tick
		if tick < newest {
			return false
		}
		if tick == newest {
			b.samples[0].Pos = pos
			return true
		}
	}
	if n < b.depth {
		b.samples = b.samples[:n+1]
	}
	copy(b.samples[1:], b.samples)
	b.samples[0] = Sample{Tick: tick, Pos: pos}
	return true
}

// Len reports how many samples are buffered.
func (b *Buffer) Len() int { return len(b.samples) }

// Newest returns the most recent sample.
func (b *Buffer) Newest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[0], true
}

// Ticks lists the buffered ticks newest first, for diagnostics.
func (b *Buffer) Ticks() []uint32 {
	ticks := make([]uint32, len(b.samples))
	for i, s := range b.samples {
		ticks[i] = s.Tick
	}
	return ticks
}

// At returns the position at simulation time tick+frac, linearly
// interpolated between the two samples bracketing it. When no bracketing
// pair exists, right after a spawn or when the whole buffer trails the
// target, the newest sample is returned verbatim; that is a degraded
// fallback, not an error. The second return is false only for an empty
// buffer.
func (b *Buffer) At(tick uint32, frac float64) (proto.Vec2, bool) {
	if len(b.samples) == 0 {
		return proto.Vec2{}, false
	}
	older := -1
	for i, s := range b.samples {
		if s.Tick <= tick {
			older = i
			break
		}
	}
	if older <= 0 {
		return b.samples[0].Pos, true
	}
	lo := b.samples[older]
	hi := b.samples[older-1]
	span := float64(hi.Tick - lo.Tick)
	t := (float64(tick-lo.Tick) + frac) / span
	return lerp(lo.Pos, hi.Pos, float32(t)), true
}

func lerp(a, b proto.Vec2, t float32) proto.Vec2 {
	return proto.Vec2{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
}
