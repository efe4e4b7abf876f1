package server

import (
	"strings"
	"time"
)

// Config carries the hub's deployment knobs. Protocol timings
// (TickInterval and the heartbeat cadence) are fixed constants; these
// values tune history retention and the tick driver only.
type Config struct {
	// RootSeed feeds the labeled RNGs that lay out shard decorations.
	RootSeed string

	// TickInterval overrides the simulation step, for tests that want a
	// faster loop. Zero keeps the standard 50ms step.
	TickInterval time.Duration

	// KeyframeEvery is the number of ticks between recorded keyframes.
	KeyframeEvery int

	// KeyframeCapacity bounds the journal's keyframe ring.
	KeyframeCapacity int

	// KeyframeMaxAge expires keyframes regardless of count.
	KeyframeMaxAge time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RootSeed:         defaultRootSeed,
		TickInterval:     TickInterval,
		KeyframeEvery:    20,
		KeyframeCapacity: 32,
		KeyframeMaxAge:   5 * time.Minute,
	}
}

// normalized returns a config with defaults applied to zero values.
func (cfg Config) normalized() Config {
	normalized := cfg
	normalized.RootSeed = strings.TrimSpace(normalized.RootSeed)
	if normalized.RootSeed == "" {
		normalized.RootSeed = defaultRootSeed
	}
	if normalized.TickInterval <= 0 {
		normalized.TickInterval = TickInterval
	}
	if normalized.KeyframeEvery <= 0 {
		normalized.KeyframeEvery = 20
	}
	if normalized.KeyframeCapacity == 0 {
		normalized.KeyframeCapacity = 32
	}
	if normalized.KeyframeMaxAge <= 0 {
		normalized.KeyframeMaxAge = 5 * time.Minute
	}
	return normalized
}
