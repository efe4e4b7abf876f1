package server

import (
	"context"
	"fmt"
	"time"

	"driftisle/server/internal/journal"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	logsimulation "driftisle/server/logging/simulation"
)

// WorldPool places each newly connected peer into a shard: the first
// unoccupied shard is recycled, otherwise a fresh one is allocated. Shards
// are never removed, so the pool grows to the high-water mark of
// concurrent sessions rather than with cumulative connections.
type WorldPool struct {
	shards   []*WorldShard
	rootSeed string

	pub     logging.Publisher
	metrics telemetry.Metrics
	journal *journal.Journal
}

// NewWorldPool builds an empty pool. jrnl may be nil when no event history
// is wanted.
func NewWorldPool(rootSeed string, pub logging.Publisher, metrics telemetry.Metrics, jrnl *journal.Journal) *WorldPool {
	if rootSeed == "" {
		rootSeed = defaultRootSeed
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.WrapMetrics(nil)
	}
	return &WorldPool{
		shards:   make([]*WorldShard, 0, 10),
		rootSeed: rootSeed,
		pub:      pub,
		metrics:  metrics,
		journal:  jrnl,
	}
}

// Connect places the session into a shard, recycling before allocating,
// and runs the join protocol. Returns the session's entity id and shard.
func (p *WorldPool) Connect(sess *Session, now time.Time) (EntityID, *WorldShard) {
	for _, shard := range p.shards {
		if shard.isOccupied() {
			continue
		}
		shard.recycle()
		p.metrics.Add(telemetry.CounterShardsRecycled, 1)
		logsimulation.ShardRecycled(context.Background(), p.pub, uint64(shard.Tick()), logsimulation.ShardPayload{
			World:  shard.Name(),
			Shards: len(p.shards),
		})
		return shard.Join(sess, now), shard
	}

	shard := newWorldShard(fmt.Sprintf("Starter World %d", len(p.shards)), p.rootSeed, p.pub, p.metrics, p.journal)
	p.shards = append(p.shards, shard)
	p.metrics.Add(telemetry.CounterShardsAllocated, 1)
	logsimulation.ShardAllocated(context.Background(), p.pub, uint64(shard.Tick()), logsimulation.ShardPayload{
		World:  shard.Name(),
		Shards: len(p.shards),
	})
	return shard.Join(sess, now), shard
}

// Update advances every occupied shard one tick. Unoccupied shards stay
// frozen; they hold no sessions to notify. Returns the sessions removed
// across all shards this tick.
func (p *WorldPool) Update(now time.Time) []*Session {
	var removed []*Session
	for _, shard := range p.shards {
		if !shard.isOccupied() {
			continue
		}
		removed = append(removed, shard.Step(now)...)
	}
	return removed
}

// Shards returns the pool's shard list; the slice is shared, callers must
// not mutate it.
func (p *WorldPool) Shards() []*WorldShard { return p.shards }

// ShardCount reports the number of allocated shards.
func (p *WorldPool) ShardCount() int { return len(p.shards) }

// SessionCount reports the live sessions across all shards.
func (p *WorldPool) SessionCount() int {
	count := 0
	for _, shard := range p.shards {
		count += shard.SessionCount()
	}
	return count
}

// EntityCount reports the live entities across all shards.
func (p *WorldPool) EntityCount() int {
	count := 0
	for _, shard := range p.shards {
		count += shard.EntityCount()
	}
	return count
}
