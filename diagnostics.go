package server

import (
	"driftisle/server/internal/journal"
	"driftisle/server/internal/net/channel"
)

// WorldDiagnostics is the per-shard row of a diagnostics snapshot.
type WorldDiagnostics struct {
	Name     string `json:"name"`
	Tick     uint32 `json:"tick"`
	Sessions int    `json:"sessions"`
	Entities int    `json:"entities"`
	Occupied bool   `json:"occupied"`
}

// KeyframeWindow reports the journal's keyframe retention bounds.
type KeyframeWindow struct {
	Size           int    `json:"size"`
	OldestSequence uint64 `json:"oldestSequence"`
	NewestSequence uint64 `json:"newestSequence"`
}

// DiagnosticsSnapshot is the point-in-time view served by /diagnostics.
type DiagnosticsSnapshot struct {
	UptimeMillis   int64              `json:"uptimeMillis"`
	Ticks          uint64             `json:"ticks"`
	Shards         int                `json:"shards"`
	Sessions       int                `json:"sessions"`
	Entities       int                `json:"entities"`
	AcceptedTotal  uint64             `json:"acceptedTotal"`
	Worlds         []WorldDiagnostics `json:"worlds"`
	Channels       []channel.Stats    `json:"channels"`
	KeyframeWindow KeyframeWindow     `json:"keyframeWindow"`
	RecentEvents   []journal.Event    `json:"recentEvents"`
	Counters       map[string]uint64  `json:"counters"`
}

// DiagnosticsSnapshot collects the hub's current state. Channel statistics
// are summed across every connected peer, per channel.
func (h *Hub) DiagnosticsSnapshot() DiagnosticsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot := DiagnosticsSnapshot{
		UptimeMillis:  h.clock.Now().Sub(h.startedAt).Milliseconds(),
		Ticks:         h.ticks,
		Shards:        h.pool.ShardCount(),
		Sessions:      h.pool.SessionCount(),
		Entities:      h.pool.EntityCount(),
		AcceptedTotal: h.acceptedTotal,
		Worlds:        make([]WorldDiagnostics, 0, h.pool.ShardCount()),
		Channels:      h.channelStatsLocked(),
		RecentEvents:  h.journal.RecentEvents(),
		Counters:      h.counters.Snapshot(),
	}
	for _, shard := range h.pool.Shards() {
		snapshot.Worlds = append(snapshot.Worlds, WorldDiagnostics{
			Name:     shard.Name(),
			Tick:     shard.Tick(),
			Sessions: shard.SessionCount(),
			Entities: shard.EntityCount(),
			Occupied: shard.isOccupied(),
		})
	}
	size, oldest, newest := h.journal.KeyframeWindow()
	snapshot.KeyframeWindow = KeyframeWindow{Size: size, OldestSequence: oldest, NewestSequence: newest}
	return snapshot
}

// WorldsSnapshot lists the per-shard rows only, for /worlds.
func (h *Hub) WorldsSnapshot() []WorldDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()
	worlds := make([]WorldDiagnostics, 0, h.pool.ShardCount())
	for _, shard := range h.pool.Shards() {
		worlds = append(worlds, WorldDiagnostics{
			Name:     shard.Name(),
			Tick:     shard.Tick(),
			Sessions: shard.SessionCount(),
			Entities: shard.EntityCount(),
			Occupied: shard.isOccupied(),
		})
	}
	return worlds
}

func (h *Hub) channelStatsLocked() []channel.Stats {
	var agg []channel.Stats
	for _, peer := range h.peers {
		stats := peer.Mux().Stats()
		if agg == nil {
			agg = make([]channel.Stats, len(stats.Channels))
			for i, s := range stats.Channels {
				agg[i].Name = s.Name
			}
		}
		for i, s := range stats.Channels {
			if i >= len(agg) {
				break
			}
			agg[i].Sent += s.Sent
			agg[i].Received += s.Received
			agg[i].Retransmits += s.Retransmits
			agg[i].Dropped += s.Dropped
			agg[i].Pending += s.Pending
			agg[i].InFlight += s.InFlight
		}
	}
	return agg
}
