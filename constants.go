package server

import "time"

const (
	// DefaultAddr is the UDP endpoint the server binds when no address is
	// configured.
	DefaultAddr = "127.0.0.1:1337"

	// TickInterval is the fixed simulation step. Replication timestamps
	// count ticks, never wall-clock time.
	TickInterval = 50 * time.Millisecond

	// HeartbeatInterval is the cadence at which both ends emit keepalives
	// on the unreliable channel, independent of other traffic.
	HeartbeatInterval = 200 * time.Millisecond

	// HeartbeatTimeout evicts a session that has been silent this long.
	HeartbeatTimeout = 3 * time.Second
)

const (
	// heartbeatEveryTicks spaces the server's own keepalives in tick units.
	heartbeatEveryTicks = uint32(HeartbeatInterval / TickInterval)

	// tickSeconds is the simulation step in seconds; decoration animation
	// advances by this much per tick.
	tickSeconds = 0.05

	// Each shard seeds this many revolving vases around its origin.
	vaseCount     = 3
	vaseMinRadius = 1.0
	vaseMaxRadius = 2.5

	// defaultRootSeed feeds the labeled RNGs that lay out shard
	// decorations; recycling a shard under the same name reproduces the
	// same layout.
	defaultRootSeed = "driftisle"

	// chatFrameHint sizes the per-tick chat batch buffer.
	chatFrameHint = 10
)
