package server

import (
	"testing"
	"time"

	"driftisle/server/internal/net/proto"
)

func TestJoinAnnouncesSpawnToExistingPeersOnly(t *testing.T) {
	t0 := time.Unix(2000, 0)
	shard := newWorldShard("Test World", "seed", nil, nil, nil)

	a := newDuplex(t, 5000, t0)
	sessA := NewSession(a.link, t0)
	idA := shard.Join(sessA, t0)
	sessA.Flush(t0)
	a.carry(t, t0)

	joins := a.recvWorldJoins(t)
	if len(joins) != 1 {
		t.Fatalf("expected exactly one join snapshot, got %d", len(joins))
	}
	if joins[0].YourID != uint64(idA) {
		t.Fatalf("expected YourID %d, got %d", idA, joins[0].YourID)
	}
	if joins[0].WorldName != "Test World" {
		t.Fatalf("expected the shard name, got %q", joins[0].WorldName)
	}
	if len(joins[0].Islands) != vaseCount {
		t.Fatalf("expected %d decoration rows in the snapshot, got %d", vaseCount, len(joins[0].Islands))
	}
	if events := a.recvEntEvents(t); len(events) != 0 {
		t.Fatalf("expected the joiner to see no spawn events, got %d", len(events))
	}

	b := newDuplex(t, 5001, t0)
	sessB := NewSession(b.link, t0)
	idB := shard.Join(sessB, t0)
	sessA.Flush(t0)
	sessB.Flush(t0)
	a.carry(t, t0)
	b.carry(t, t0)

	spawns := a.recvEntEvents(t)
	if len(spawns) != 1 {
		t.Fatalf("expected the existing peer to see one spawn, got %d", len(spawns))
	}
	if spawns[0].Kind != proto.EntSpawn || spawns[0].ID != uint64(idB) {
		t.Fatalf("expected a spawn for entity %d, got %+v", idB, spawns[0])
	}

	if events := b.recvEntEvents(t); len(events) != 0 {
		t.Fatalf("expected the joiner to receive zero spawn events, got %d", len(events))
	}
	joinsB := b.recvWorldJoins(t)
	if len(joinsB) != 1 {
		t.Fatalf("expected one snapshot for the second joiner, got %d", len(joinsB))
	}
	if got := len(joinsB[0].Islands); got != vaseCount+1 {
		t.Fatalf("expected %d snapshot rows, got %d", vaseCount+1, got)
	}
	for _, island := range joinsB[0].Islands {
		if island.ID == uint64(idB) {
			t.Fatalf("expected the snapshot to exclude the joiner's own entity")
		}
	}
}

func TestStepEmitsMovesOnlyForChangedEntities(t *testing.T) {
	t0 := time.Unix(2000, 0)
	shard := newWorldShard("Test World", "seed", nil, nil, nil)

	a := newDuplex(t, 5002, t0)
	sessA := NewSession(a.link, t0)
	idA := shard.Join(sessA, t0)
	sessA.Flush(t0)
	a.carry(t, t0)
	a.recvWorldJoins(t)

	// First tick establishes every entity's broadcast baseline
	// silently; the spawn and snapshot already carried the positions.
	t1 := t0.Add(TickInterval)
	shard.Step(t1)
	a.carry(t, t1)
	if moves := a.recvMoves(t); len(moves) != 0 {
		t.Fatalf("expected no moves on the baseline tick, got %d", len(moves))
	}

	// Decorations revolved during the first tick, so the second tick
	// emits exactly one move per vase and none for the idle player.
	t2 := t1.Add(TickInterval)
	shard.Step(t2)
	a.carry(t, t2)
	moves := a.recvMoves(t)
	if len(moves) != vaseCount {
		t.Fatalf("expected %d moves for the revolving vases, got %d", vaseCount, len(moves))
	}
	seen := make(map[uint64]bool, len(moves))
	for _, move := range moves {
		if move.ID == uint64(idA) {
			t.Fatalf("expected no move for the unchanged player entity")
		}
		if seen[move.ID] {
			t.Fatalf("expected at most one move per entity, got a duplicate for %d", move.ID)
		}
		seen[move.ID] = true
		if move.Tick != 2 {
			t.Fatalf("expected moves stamped with the shard tick 2, got %d", move.Tick)
		}
	}
}

func TestChatFanOutEchoesSender(t *testing.T) {
	t0 := time.Unix(2000, 0)
	shard := newWorldShard("Test World", "seed", nil, nil, nil)

	a := newDuplex(t, 5003, t0)
	sessA := NewSession(a.link, t0)
	shard.Join(sessA, t0)
	b := newDuplex(t, 5004, t0)
	sessB := NewSession(b.link, t0)
	shard.Join(sessB, t0)
	sessA.Flush(t0)
	sessB.Flush(t0)
	a.carry(t, t0)
	b.carry(t, t0)
	a.recvWorldJoins(t)
	a.recvEntEvents(t)
	b.recvWorldJoins(t)

	t1 := t0.Add(TickInterval)
	b.say(t, t1, "ahoy there")
	shard.Step(t1)
	a.carry(t, t1)
	b.carry(t, t1)

	got := a.recvChats(t)
	if len(got) != 1 || got[0].Text != "ahoy there" {
		t.Fatalf("expected the other peer to receive the chat, got %+v", got)
	}
	echo := b.recvChats(t)
	if len(echo) != 1 || echo[0].Text != "ahoy there" {
		t.Fatalf("expected the sender to receive its own chat back, got %+v", echo)
	}
}

func TestTimeoutBroadcastsDespawnExactlyOnce(t *testing.T) {
	t0 := time.Unix(2000, 0)
	shard := newWorldShard("Test World", "seed", nil, nil, nil)

	a := newDuplex(t, 5005, t0)
	sessA := NewSession(a.link, t0)
	idA := shard.Join(sessA, t0)
	b := newDuplex(t, 5006, t0)
	sessB := NewSession(b.link, t0)
	shard.Join(sessB, t0)
	sessA.Flush(t0)
	sessB.Flush(t0)
	a.carry(t, t0)
	b.carry(t, t0)
	a.recvWorldJoins(t)
	a.recvEntEvents(t)
	b.recvWorldJoins(t)

	// A goes silent; B keeps its heartbeat flowing.
	t1 := t0.Add(HeartbeatTimeout + time.Second)
	b.beat(t, t1)
	removed := shard.Step(t1)
	if len(removed) != 1 || removed[0] != sessA {
		t.Fatalf("expected exactly the silent session removed, got %d", len(removed))
	}
	if shard.SessionCount() != 1 {
		t.Fatalf("expected one live session, got %d", shard.SessionCount())
	}
	if shard.EntityCount() != vaseCount+1 {
		t.Fatalf("expected the entity removed from the store, got %d entities", shard.EntityCount())
	}

	// The despawn was queued after B's flush this tick; the next tick
	// delivers it.
	t2 := t1.Add(TickInterval)
	b.beat(t, t2)
	shard.Step(t2)
	b.carry(t, t2)

	despawns := 0
	for _, ev := range b.recvEntEvents(t) {
		if ev.Kind != proto.EntDespawn {
			t.Fatalf("expected only despawn events, got %+v", ev)
		}
		if ev.ID != uint64(idA) {
			t.Fatalf("expected a despawn for entity %d, got %d", idA, ev.ID)
		}
		despawns++
	}
	if despawns != 1 {
		t.Fatalf("expected exactly one despawn, got %d", despawns)
	}

	// Later ticks must not repeat it.
	t3 := t2.Add(TickInterval)
	b.beat(t, t3)
	shard.Step(t3)
	b.carry(t, t3)
	if extra := b.recvEntEvents(t); len(extra) != 0 {
		t.Fatalf("expected no further despawns, got %d", len(extra))
	}
}

func TestDecodeFailureDropsMessageOnly(t *testing.T) {
	t0 := time.Unix(2000, 0)
	shard := newWorldShard("Test World", "seed", nil, nil, nil)

	a := newDuplex(t, 5007, t0)
	sessA := NewSession(a.link, t0)
	shard.Join(sessA, t0)
	sessA.Flush(t0)
	a.carry(t, t0)
	a.recvWorldJoins(t)

	// A garbage chat payload followed by a valid one: the frame keeps
	// the valid line.
	if err := a.remote.Send(proto.ChannelChat, []byte{0xc1}); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	a.remote.Flush(t0)
	a.carry(t, t0)
	t1 := t0.Add(TickInterval)
	a.say(t, t1, "still here")

	shard.Step(t1)
	a.carry(t, t1)
	got := a.recvChats(t)
	if len(got) != 1 || got[0].Text != "still here" {
		t.Fatalf("expected the valid chat to survive the malformed one, got %+v", got)
	}
}
