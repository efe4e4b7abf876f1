// Package proto defines the fixed set of wire messages exchanged between
// server and client, the static binding of each message kind to a logical
// channel, and the codec that turns messages into channel payloads.
package proto

import "fmt"

// Version tracks the wire-protocol revision expected by both ends.
const Version = 1

// Vec2 is a 2D position as it travels on the wire.
type Vec2 struct {
	X float32 `msgpack:"x" json:"x"`
	Y float32 `msgpack:"y" json:"y"`
}

// VisualKind identifies how an entity is drawn by clients.
type VisualKind uint8

const (
	VisualIsland VisualKind = iota
	VisualVase
)

// String renders the visual kind for logs and diagnostics payloads.
func (k VisualKind) String() string {
	switch k {
	case VisualIsland:
		return "island"
	case VisualVase:
		return "vase"
	default:
		return fmt.Sprintf("visual(%d)", uint8(k))
	}
}

// Valid reports whether the kind is one of the known enum values.
func (k VisualKind) Valid() bool {
	return k == VisualIsland || k == VisualVase
}

// Heartbeat carries no payload; its arrival alone refreshes liveness.
type Heartbeat struct{}

// Chat carries one line of player chat.
type Chat struct {
	Text string `msgpack:"text" json:"text"`
}

// Move reports an entity's position at a specific server tick. The tick
// stamp, not wall-clock time, is what clients interpolate against.
type Move struct {
	ID   uint64 `msgpack:"id" json:"id"`
	Tick uint32 `msgpack:"tick" json:"tick"`
	Pos  Vec2   `msgpack:"pos" json:"pos"`
}

// EntEventKind discriminates entity lifecycle events.
type EntEventKind uint8

const (
	EntSpawn EntEventKind = iota
	EntDespawn
)

// EntEvent announces an entity entering or leaving the world. Pos and
// Visual are meaningful for spawns only.
type EntEvent struct {
	Kind   EntEventKind `msgpack:"kind" json:"kind"`
	ID     uint64       `msgpack:"id" json:"id"`
	Pos    Vec2         `msgpack:"pos" json:"pos"`
	Visual VisualKind   `msgpack:"visual" json:"visual"`
}

// Island is one row of the WorldJoin snapshot.
type Island struct {
	ID     uint64     `msgpack:"id" json:"id"`
	Pos    Vec2       `msgpack:"pos" json:"pos"`
	Visual VisualKind `msgpack:"visual" json:"visual"`
}

// WorldJoin is the one-shot snapshot a peer receives after joining a
// world: every other entity currently present, the peer's own entity id,
// the world's name and its current tick.
type WorldJoin struct {
	Islands   []Island `msgpack:"islands" json:"islands"`
	YourID    uint64   `msgpack:"yourId" json:"yourId"`
	WorldName string   `msgpack:"worldName" json:"worldName"`
	Tick      uint32   `msgpack:"tick" json:"tick"`
}
