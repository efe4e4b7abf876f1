package lifecycle

import (
	"context"

	"driftisle/server/logging"
)

const (
	// EventSessionJoined is emitted when a session is placed into a
	// world shard.
	EventSessionJoined logging.EventType = "lifecycle.session_joined"
	// EventSessionTimedOut is emitted when a session misses its
	// heartbeat window and is despawned.
	EventSessionTimedOut logging.EventType = "lifecycle.session_timed_out"
)

// SessionJoinedPayload captures placement metadata for a new session.
type SessionJoinedPayload struct {
	World  string  `json:"world"`
	SpawnX float32 `json:"spawnX"`
	SpawnY float32 `json:"spawnY"`
}

// SessionTimedOutPayload captures how stale the session was.
type SessionTimedOutPayload struct {
	World        string `json:"world"`
	SilentMillis int64  `json:"silentMillis"`
}

// SessionJoined publishes a session join event.
func SessionJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionJoinedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// SessionTimedOut publishes a session removal event.
func SessionTimedOut(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionTimedOutPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionTimedOut,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
