package server

import (
	"context"
	"time"

	"driftisle/server/internal/journal"
	"driftisle/server/internal/net/proto"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	loglifecycle "driftisle/server/logging/lifecycle"
	lognetwork "driftisle/server/logging/network"
)

// WorldShard is one fully independent simulation: its own entity store,
// tick counter and replication state. Cross-shard visibility never occurs.
// A shard is touched only by the pool's tick goroutine.
type WorldShard struct {
	name     string
	rootSeed string
	entities entityStore
	tick     uint32

	// lastBroadcast tracks the position most recently announced per
	// entity; a Move goes out only when the live position differs.
	lastBroadcast map[EntityID]proto.Vec2

	// Scratch buffers rebuilt every tick.
	moveFrame []proto.Move
	chatFrame []proto.Chat
	timedOut  []EntityID
	removed   []*Session

	pub     logging.Publisher
	metrics telemetry.Metrics
	journal *journal.Journal
}

func newWorldShard(name, rootSeed string, pub logging.Publisher, metrics telemetry.Metrics, jrnl *journal.Journal) *WorldShard {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.WrapMetrics(nil)
	}
	w := &WorldShard{
		name:          name,
		rootSeed:      rootSeed,
		lastBroadcast: make(map[EntityID]proto.Vec2),
		chatFrame:     make([]proto.Chat, 0, chatFrameHint),
		pub:           pub,
		metrics:       metrics,
		journal:       jrnl,
	}
	w.seedDecorations()
	return w
}

// Name returns the shard's label.
func (w *WorldShard) Name() string { return w.name }

// Tick returns the shard's current tick counter.
func (w *WorldShard) Tick() uint32 { return w.tick }

// EntityCount reports the number of live entities.
func (w *WorldShard) EntityCount() int { return w.entities.Len() }

// SessionCount reports the number of player-backed entities.
func (w *WorldShard) SessionCount() int {
	count := 0
	w.entities.ForEach(func(_ EntityID, e *Entity) {
		if e.Session != nil {
			count++
		}
	})
	return count
}

func (w *WorldShard) isOccupied() bool { return w.SessionCount() > 0 }

// Snapshot lists every live entity as wire rows, for keyframes and
// diagnostics.
func (w *WorldShard) Snapshot() []proto.Island {
	islands := make([]proto.Island, 0, w.entities.Len())
	w.entities.ForEach(func(id EntityID, e *Entity) {
		islands = append(islands, proto.Island{ID: uint64(id), Pos: e.Pos, Visual: e.Visual})
	})
	return islands
}

// Join inserts the session's island, announces the spawn to every existing
// peer, then sends the joiner its one-shot snapshot. The snapshot lists
// every other entity; the joiner learns its own id from YourID and must
// never see a Spawn event for itself.
func (w *WorldShard) Join(sess *Session, now time.Time) EntityID {
	spawn := proto.Vec2{}
	id := w.entities.Insert(Entity{Pos: spawn, Visual: proto.VisualIsland, Session: sess})

	spawnMsg := proto.EntEvent{Kind: proto.EntSpawn, ID: uint64(id), Pos: spawn, Visual: proto.VisualIsland}
	islands := make([]proto.Island, 0, w.entities.Len()-1)
	w.entities.ForEach(func(other EntityID, e *Entity) {
		if other == id {
			return
		}
		if e.Session != nil {
			if err := e.Session.SendEntEvent(spawnMsg); err != nil {
				w.reportSendFailure(e.Session, err)
			}
		}
		islands = append(islands, proto.Island{ID: uint64(other), Pos: e.Pos, Visual: e.Visual})
	})

	if err := sess.SendWorldJoin(proto.WorldJoin{
		Islands:   islands,
		YourID:    uint64(id),
		WorldName: w.name,
		Tick:      w.tick,
	}); err != nil {
		w.reportSendFailure(sess, err)
	}

	w.record(journal.Event{
		Tick:   uint64(w.tick),
		World:  w.name,
		Kind:   journal.EventSessionJoined,
		Entity: uint64(id),
		Pos:    spawn,
	})
	w.metrics.Add(telemetry.CounterSessionsJoined, 1)
	loglifecycle.SessionJoined(context.Background(), w.pub, uint64(w.tick), sessionRef(sess), loglifecycle.SessionJoinedPayload{
		World:  w.name,
		SpawnX: spawn.X,
		SpawnY: spawn.Y,
	})
	return id
}

// Step advances the shard one tick: batch this tick's chat, compute
// position deltas, then per session run the liveness check, deliver both
// frames, queue a keepalive when due and flush. Timed-out sessions are
// collected during iteration and despawned after it; decorations advance
// last, so their movement is picked up by the next tick's delta pass.
// Returns the sessions removed this tick.
func (w *WorldShard) Step(now time.Time) []*Session {
	w.tick++

	w.fillChat()
	w.trackMoves()

	heartbeatDue := w.tick%heartbeatEveryTicks == 0

	w.timedOut = w.timedOut[:0]
	w.entities.ForEach(func(id EntityID, e *Entity) {
		if e.Session == nil {
			return
		}
		if e.Session.CheckLiveness(now, HeartbeatTimeout) {
			w.timedOut = append(w.timedOut, id)
		}
		w.syncMoves(e.Session)
		w.syncChat(e.Session)
		if heartbeatDue {
			if err := e.Session.SendHeartbeat(); err != nil {
				w.reportSendFailure(e.Session, err)
			}
		}
		e.Session.Flush(now)
	})

	w.removed = w.removed[:0]
	for _, id := range w.timedOut {
		w.despawn(id, now)
	}

	w.revolve()
	return w.removed
}

// fillChat drains every session's pending chat into this tick's frame.
// Undecodable payloads are dropped and counted; the rest of the queue
// stays readable.
func (w *WorldShard) fillChat() {
	w.chatFrame = w.chatFrame[:0]
	w.entities.ForEach(func(id EntityID, e *Entity) {
		if e.Session == nil {
			return
		}
		for {
			msg, ok, err := e.Session.PollChat()
			if !ok {
				break
			}
			if err != nil {
				w.metrics.Add(telemetry.CounterDecodeErrors, 1)
				lognetwork.DecodeFailed(context.Background(), w.pub, uint64(w.tick), sessionRef(e.Session), lognetwork.DecodeFailedPayload{
					Channel: "chat",
					Error:   err.Error(),
				})
				continue
			}
			w.chatFrame = append(w.chatFrame, msg)
			w.record(journal.Event{
				Tick:   uint64(w.tick),
				World:  w.name,
				Kind:   journal.EventChat,
				Entity: uint64(id),
				Text:   msg.Text,
			})
		}
	})
}

// trackMoves rebuilds the tick's move frame. An entity seen for the first
// time establishes its baseline silently; its spawn already carried the
// position.
func (w *WorldShard) trackMoves() {
	w.moveFrame = w.moveFrame[:0]
	w.entities.ForEach(func(id EntityID, e *Entity) {
		last, seen := w.lastBroadcast[id]
		if seen && last == e.Pos {
			return
		}
		w.lastBroadcast[id] = e.Pos
		if !seen {
			return
		}
		w.moveFrame = append(w.moveFrame, proto.Move{ID: uint64(id), Tick: w.tick, Pos: e.Pos})
	})
}

func (w *WorldShard) syncMoves(sess *Session) {
	for _, msg := range w.moveFrame {
		if err := sess.SendMove(msg); err != nil {
			w.reportSendFailure(sess, err)
		}
	}
}

// syncChat fans the frame out to one session. The sender is included: the
// echo doubles as delivery confirmation.
func (w *WorldShard) syncChat(sess *Session) {
	for _, msg := range w.chatFrame {
		if err := sess.SendChat(msg); err != nil {
			w.reportSendFailure(sess, err)
		}
	}
}

// despawn broadcasts the removal to every remaining peer, then deletes the
// entity. Broadcast-before-removal means no peer can observe the entity
// gone without having been told.
func (w *WorldShard) despawn(id EntityID, now time.Time) {
	entity, ok := w.entities.Get(id)
	if !ok {
		return
	}
	sess := entity.Session

	msg := proto.EntEvent{Kind: proto.EntDespawn, ID: uint64(id)}
	w.entities.ForEach(func(other EntityID, e *Entity) {
		if other == id || e.Session == nil {
			return
		}
		if err := e.Session.SendEntEvent(msg); err != nil {
			w.reportSendFailure(e.Session, err)
		}
	})

	w.entities.Remove(id)
	delete(w.lastBroadcast, id)

	w.record(journal.Event{
		Tick:   uint64(w.tick),
		World:  w.name,
		Kind:   journal.EventEntityDespawned,
		Entity: uint64(id),
	})
	if sess != nil {
		w.removed = append(w.removed, sess)
		w.metrics.Add(telemetry.CounterSessionsTimedOut, 1)
		w.record(journal.Event{
			Tick:   uint64(w.tick),
			World:  w.name,
			Kind:   journal.EventSessionTimedOut,
			Entity: uint64(id),
		})
		loglifecycle.SessionTimedOut(context.Background(), w.pub, uint64(w.tick), sessionRef(sess), loglifecycle.SessionTimedOutPayload{
			World:        w.name,
			SilentMillis: sess.SilentFor(now).Milliseconds(),
		})
	}
}

// revolve advances every decoration along its orbit.
func (w *WorldShard) revolve() {
	w.entities.ForEach(func(_ EntityID, e *Entity) {
		if e.Revolve == nil {
			return
		}
		e.Pos = e.Revolve.at(w.tick)
	})
}

// seedDecorations lays out the shard's vases from a labeled RNG, so the
// same shard name always produces the same layout.
func (w *WorldShard) seedDecorations() {
	rng := newDeterministicRNG(w.rootSeed, w.name)
	for i := 0; i < vaseCount; i++ {
		rev := &Revolve{
			Radius: vaseMinRadius + rng.Float32()*(vaseMaxRadius-vaseMinRadius),
			Phase:  float32(i) / vaseCount * tau,
		}
		id := w.entities.Insert(Entity{
			Pos:     rev.at(w.tick),
			Visual:  proto.VisualVase,
			Revolve: rev,
		})
		w.record(journal.Event{
			Tick:   uint64(w.tick),
			World:  w.name,
			Kind:   journal.EventEntitySpawned,
			Entity: uint64(id),
			Pos:    rev.at(w.tick),
		})
	}
}

// recycle returns the shard to its freshly seeded state. Safe only while
// unoccupied: entities vanish without despawn traffic because there is no
// peer left to notify.
func (w *WorldShard) recycle() {
	if w.journal != nil {
		w.journal.PurgeWorld(w.name)
	}
	w.entities.Clear()
	clear(w.lastBroadcast)
	w.tick = 0
	w.seedDecorations()
}

func (w *WorldShard) record(e journal.Event) {
	if w.journal != nil {
		w.journal.Record(e)
	}
}

func (w *WorldShard) reportSendFailure(sess *Session, err error) {
	w.metrics.Add(telemetry.CounterSendErrors, 1)
	lognetwork.SendFailed(context.Background(), w.pub, lognetwork.SendFailedPayload{
		Addr:  sess.Addr().String(),
		Error: err.Error(),
	})
}

func sessionRef(sess *Session) logging.EntityRef {
	return logging.EntityRef{ID: sess.Addr().String(), Kind: logging.EntityKindSession}
}
