package simulation

import (
	"context"

	"driftisle/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when a pool update exceeds the
	// tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventShardAllocated is emitted when the pool grows by one shard.
	EventShardAllocated logging.EventType = "simulation.shard_allocated"
	// EventShardRecycled is emitted when an empty shard is cleared and
	// reseeded for a new session.
	EventShardRecycled logging.EventType = "simulation.shard_recycled"
	// EventSpectatorResync is emitted when journal loss forces spectators
	// back onto keyframes.
	EventSpectatorResync logging.EventType = "simulation.spectator_resync"
)

// TickBudgetOverrunPayload captures timing details for a budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// ShardPayload names the shard an event concerns.
type ShardPayload struct {
	World    string `json:"world"`
	Shards   int    `json:"shards"`
	Sessions int    `json:"sessions,omitempty"`
}

// TickBudgetOverrun publishes a warning when an update ran long.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// ShardAllocated publishes a pool growth event.
func ShardAllocated(ctx context.Context, pub logging.Publisher, tick uint64, payload ShardPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventShardAllocated,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: payload.World, Kind: logging.EntityKindShard},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// SpectatorResyncPayload summarises the journal losses behind a resync.
type SpectatorResyncPayload struct {
	Summary string `json:"summary"`
}

// SpectatorResync publishes a warning that spectators were re-keyframed.
func SpectatorResync(ctx context.Context, pub logging.Publisher, tick uint64, payload SpectatorResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSpectatorResync,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// ShardRecycled publishes a shard reuse event.
func ShardRecycled(ctx context.Context, pub logging.Publisher, tick uint64, payload ShardPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventShardRecycled,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: payload.World, Kind: logging.EntityKindShard},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
