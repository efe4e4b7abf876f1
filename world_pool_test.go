package server

import (
	"testing"
	"time"

	"driftisle/server/internal/net/proto"
)

func vasePositions(snapshot []proto.Island) []proto.Vec2 {
	var out []proto.Vec2
	for _, island := range snapshot {
		if island.Visual == proto.VisualVase {
			out = append(out, island.Pos)
		}
	}
	return out
}

func TestConnectAllocatesThenRecycles(t *testing.T) {
	t0 := time.Unix(3000, 0)
	pool := NewWorldPool("seed", nil, nil, nil)

	a := newDuplex(t, 6000, t0)
	_, shardA := pool.Connect(NewSession(a.link, t0), t0)
	if pool.ShardCount() != 1 || shardA.Name() != "Starter World 0" {
		t.Fatalf("expected the first shard, got %d shards named %q", pool.ShardCount(), shardA.Name())
	}

	// The first shard is occupied, so a second connect grows the pool.
	b := newDuplex(t, 6001, t0)
	_, shardB := pool.Connect(NewSession(b.link, t0), t0)
	if pool.ShardCount() != 2 || shardB.Name() != "Starter World 1" {
		t.Fatalf("expected a second shard, got %d shards named %q", pool.ShardCount(), shardB.Name())
	}

	// Both sessions go silent and are evicted at the next update.
	removed := pool.Update(t0.Add(HeartbeatTimeout + time.Second))
	if len(removed) != 2 {
		t.Fatalf("expected both sessions evicted, got %d", len(removed))
	}
	if pool.SessionCount() != 0 {
		t.Fatalf("expected no live sessions, got %d", pool.SessionCount())
	}

	// A new connection recycles the first empty shard instead of
	// growing the pool.
	c := newDuplex(t, 6002, t0)
	_, shardC := pool.Connect(NewSession(c.link, t0.Add(5*time.Second)), t0.Add(5*time.Second))
	if pool.ShardCount() != 2 {
		t.Fatalf("expected the pool to stay at 2 shards, got %d", pool.ShardCount())
	}
	if shardC.Name() != "Starter World 0" {
		t.Fatalf("expected the first shard recycled, got %q", shardC.Name())
	}
	if shardC.Tick() != 0 {
		t.Fatalf("expected the recycled shard's tick reset, got %d", shardC.Tick())
	}
}

func TestRecycledShardReproducesDecorationLayout(t *testing.T) {
	t0 := time.Unix(3000, 0)
	pool := NewWorldPool("seed", nil, nil, nil)

	a := newDuplex(t, 6003, t0)
	_, shard := pool.Connect(NewSession(a.link, t0), t0)
	fresh := vasePositions(shard.Snapshot())
	if len(fresh) != vaseCount {
		t.Fatalf("expected %d vases, got %d", vaseCount, len(fresh))
	}

	// Tick a few times so the decorations wander, then evict the lone
	// session.
	now := t0
	for i := 0; i < 5; i++ {
		now = now.Add(TickInterval)
		a.beat(t, now)
		pool.Update(now)
	}
	pool.Update(now.Add(HeartbeatTimeout + time.Second))
	if pool.SessionCount() != 0 {
		t.Fatalf("expected the session evicted, got %d", pool.SessionCount())
	}

	b := newDuplex(t, 6004, t0)
	_, recycled := pool.Connect(NewSession(b.link, now), now)
	if recycled != shard {
		t.Fatalf("expected the same shard recycled")
	}
	again := vasePositions(recycled.Snapshot())
	if len(again) != len(fresh) {
		t.Fatalf("expected %d vases after recycling, got %d", len(fresh), len(again))
	}
	for i := range fresh {
		if fresh[i] != again[i] {
			t.Fatalf("expected deterministic layout, vase %d moved from %+v to %+v", i, fresh[i], again[i])
		}
	}
}

func TestUpdateSkipsUnoccupiedShards(t *testing.T) {
	t0 := time.Unix(3000, 0)
	pool := NewWorldPool("seed", nil, nil, nil)

	a := newDuplex(t, 6005, t0)
	_, shard := pool.Connect(NewSession(a.link, t0), t0)

	// One update with the session live, one that evicts it.
	a.beat(t, t0.Add(TickInterval))
	pool.Update(t0.Add(TickInterval))
	pool.Update(t0.Add(HeartbeatTimeout + time.Second))
	tickAfterEviction := shard.Tick()

	// An unoccupied shard is frozen: further updates do not advance it.
	pool.Update(t0.Add(HeartbeatTimeout + 2*time.Second))
	pool.Update(t0.Add(HeartbeatTimeout + 3*time.Second))
	if shard.Tick() != tickAfterEviction {
		t.Fatalf("expected the empty shard frozen at tick %d, got %d", tickAfterEviction, shard.Tick())
	}
}

func TestRecycledStoreReusesSlotsWithFreshGenerations(t *testing.T) {
	t0 := time.Unix(3000, 0)
	pool := NewWorldPool("seed", nil, nil, nil)

	a := newDuplex(t, 6006, t0)
	idA, _ := pool.Connect(NewSession(a.link, t0), t0)
	pool.Update(t0.Add(HeartbeatTimeout + time.Second))

	b := newDuplex(t, 6007, t0)
	idB, _ := pool.Connect(NewSession(b.link, t0), t0)

	if idA.Slot() != idB.Slot() {
		t.Fatalf("expected the recycled shard to reuse slot %d, got %d", idA.Slot(), idB.Slot())
	}
	if idA.Generation() == idB.Generation() {
		t.Fatalf("expected a fresh generation after recycling, both are %d", idA.Generation())
	}
	if uint64(idA) == uint64(idB) {
		t.Fatalf("expected distinct entity ids across the recycle")
	}
}
