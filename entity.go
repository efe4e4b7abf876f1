package server

import (
	"math"

	"driftisle/server/internal/net/proto"
)

// EntityID packs a store slot index in the low 32 bits and the slot's
// generation in the high 32 bits. The generation bumps every time a slot is
// freed, so an id held across a despawn never resolves against the slot's
// next occupant.
type EntityID uint64

func makeEntityID(slot, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(slot))
}

// Slot returns the store index portion of the id.
func (id EntityID) Slot() uint32 { return uint32(id) }

// Generation returns the reuse counter portion of the id.
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }

// Revolve animates a decoration around a fixed center. The angle is a pure
// function of the shard tick, so a recycled shard replays the same orbit.
type Revolve struct {
	Center proto.Vec2
	Radius float32
	Phase  float32
}

// at returns the orbit position for the given tick.
func (r *Revolve) at(tick uint32) proto.Vec2 {
	angle := float64(r.Phase) + float64(tick)*tickSeconds
	return proto.Vec2{
		X: r.Center.X + r.Radius*float32(math.Cos(angle)),
		Y: r.Center.Y + r.Radius*float32(math.Sin(angle)),
	}
}

// Entity is one row of a shard's store. Session is set for player islands
// only; Revolve for decorations only.
type Entity struct {
	Pos     proto.Vec2
	Visual  proto.VisualKind
	Session *Session
	Revolve *Revolve
}

type entitySlot struct {
	generation uint32
	occupied   bool
	entity     Entity
}

// entityStore keeps entities in a slot array with a free list. Freed slots
// are reused before the array grows; generations make reuse observable as a
// distinct id.
type entityStore struct {
	slots []entitySlot
	free  []uint32
	count int
}

// Insert stores the entity and returns its id.
func (s *entityStore) Insert(e Entity) EntityID {
	if n := len(s.free); n > 0 {
		slot := s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[slot].occupied = true
		s.slots[slot].entity = e
		s.count++
		return makeEntityID(slot, s.slots[slot].generation)
	}
	s.slots = append(s.slots, entitySlot{occupied: true, entity: e})
	s.count++
	return makeEntityID(uint32(len(s.slots)-1), 0)
}

// Get returns a pointer into the store valid until the next Insert, Remove
// or Clear.
func (s *entityStore) Get(id EntityID) (*Entity, bool) {
	slot := id.Slot()
	if int(slot) >= len(s.slots) {
		return nil, false
	}
	entry := &s.slots[slot]
	if !entry.occupied || entry.generation != id.Generation() {
		return nil, false
	}
	return &entry.entity, true
}

// Remove frees the slot and returns the evicted entity.
func (s *entityStore) Remove(id EntityID) (Entity, bool) {
	slot := id.Slot()
	if int(slot) >= len(s.slots) {
		return Entity{}, false
	}
	entry := &s.slots[slot]
	if !entry.occupied || entry.generation != id.Generation() {
		return Entity{}, false
	}
	removed := entry.entity
	entry.entity = Entity{}
	entry.occupied = false
	entry.generation++
	s.free = append(s.free, slot)
	s.count--
	return removed, true
}

// Len reports the number of live entities.
func (s *entityStore) Len() int { return s.count }

// ForEach visits every live entity in slot order. The visitor must not
// insert or remove; collect ids during iteration and mutate afterwards.
func (s *entityStore) ForEach(fn func(EntityID, *Entity)) {
	for i := range s.slots {
		entry := &s.slots[i]
		if !entry.occupied {
			continue
		}
		fn(makeEntityID(uint32(i), entry.generation), &entry.entity)
	}
}

// Clear frees every slot. Generations bump and the free list is rebuilt
// in descending slot order so the next occupancy fills slots from zero
// upward, keeping recycled layouts deterministic.
func (s *entityStore) Clear() {
	s.free = s.free[:0]
	for i := len(s.slots) - 1; i >= 0; i-- {
		entry := &s.slots[i]
		if entry.occupied {
			entry.entity = Entity{}
			entry.occupied = false
			entry.generation++
		}
		s.free = append(s.free, uint32(i))
	}
	s.count = 0
}
