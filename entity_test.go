package server

import (
	"testing"

	"driftisle/server/internal/net/proto"
)

func TestEntityIDPacksSlotAndGeneration(t *testing.T) {
	id := makeEntityID(7, 3)
	if id.Slot() != 7 {
		t.Fatalf("expected slot 7, got %d", id.Slot())
	}
	if id.Generation() != 3 {
		t.Fatalf("expected generation 3, got %d", id.Generation())
	}
	if id == makeEntityID(7, 4) {
		t.Fatalf("expected distinct ids across generations")
	}
}

func TestEntityStoreInsertGetRemove(t *testing.T) {
	var store entityStore

	a := store.Insert(Entity{Pos: proto.Vec2{X: 1}})
	b := store.Insert(Entity{Pos: proto.Vec2{X: 2}})
	if store.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", store.Len())
	}

	got, ok := store.Get(a)
	if !ok || got.Pos.X != 1 {
		t.Fatalf("expected to fetch entity a, got ok=%v pos=%v", ok, got)
	}

	removed, ok := store.Remove(a)
	if !ok || removed.Pos.X != 1 {
		t.Fatalf("expected to evict entity a, got ok=%v pos=%v", ok, removed)
	}
	if _, ok := store.Get(a); ok {
		t.Fatalf("expected stale id to miss after removal")
	}
	if _, ok := store.Remove(a); ok {
		t.Fatalf("expected double removal to fail")
	}
	if _, ok := store.Get(b); !ok {
		t.Fatalf("expected entity b to survive a's removal")
	}
}

func TestEntityStoreReusesSlotsWithFreshGenerations(t *testing.T) {
	var store entityStore

	a := store.Insert(Entity{})
	store.Insert(Entity{})
	if _, ok := store.Remove(a); !ok {
		t.Fatalf("remove failed")
	}

	c := store.Insert(Entity{Pos: proto.Vec2{X: 9}})
	if c.Slot() != a.Slot() {
		t.Fatalf("expected slot %d to be reused, got %d", a.Slot(), c.Slot())
	}
	if c.Generation() != a.Generation()+1 {
		t.Fatalf("expected generation %d, got %d", a.Generation()+1, c.Generation())
	}

	// The stale id must not resolve against the slot's new occupant.
	if _, ok := store.Get(a); ok {
		t.Fatalf("expected stale id to miss the reused slot")
	}
	got, ok := store.Get(c)
	if !ok || got.Pos.X != 9 {
		t.Fatalf("expected fresh id to resolve, got ok=%v pos=%v", ok, got)
	}
}

func TestEntityStoreClearRefillsFromSlotZero(t *testing.T) {
	var store entityStore
	for i := 0; i < 4; i++ {
		store.Insert(Entity{})
	}
	store.Clear()
	if store.Len() != 0 {
		t.Fatalf("expected empty store after clear, got %d", store.Len())
	}

	for want := uint32(0); want < 4; want++ {
		id := store.Insert(Entity{})
		if id.Slot() != want {
			t.Fatalf("expected slot %d after clear, got %d", want, id.Slot())
		}
		if id.Generation() != 1 {
			t.Fatalf("expected generation 1 after clear, got %d", id.Generation())
		}
	}
}

func TestEntityStoreForEachVisitsSlotOrder(t *testing.T) {
	var store entityStore
	a := store.Insert(Entity{})
	b := store.Insert(Entity{})
	c := store.Insert(Entity{})
	store.Remove(b)

	var seen []EntityID
	store.ForEach(func(id EntityID, _ *Entity) {
		seen = append(seen, id)
	})
	if len(seen) != 2 || seen[0] != a || seen[1] != c {
		t.Fatalf("expected [%v %v], got %v", a, c, seen)
	}
}
