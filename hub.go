package server

import (
	"context"
	"sync"
	"time"

	"driftisle/server/internal/journal"
	"driftisle/server/internal/net/transport"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	logsimulation "driftisle/server/logging/simulation"
)

// Acceptor feeds newly admitted peers to the hub and reclaims them after
// their session despawns. transport.Listener satisfies it.
type Acceptor interface {
	Accepted() <-chan *transport.Peer
	Remove(*transport.Peer)
}

// EventSink receives the journal's output for live spectators.
type EventSink interface {
	BroadcastEvents([]journal.Event)
	BroadcastKeyframe(journal.Keyframe)
}

// HubDeps collects the hub's collaborators. Zero fields degrade to no-ops
// so tests can wire only what they exercise.
type HubDeps struct {
	Acceptor  Acceptor
	Feed      EventSink
	Publisher logging.Publisher
	Metrics   *logging.Metrics
	Clock     logging.Clock
}

// Hub owns the world pool and the event journal, admits peers from the
// transport, drives the fixed-timestep simulation and reclaims transport
// peers whose sessions time out.
type Hub struct {
	mu    sync.Mutex
	cfg   Config
	pool  *WorldPool
	peers map[*Session]*transport.Peer

	journal journal.Journal

	acceptor Acceptor
	feed     EventSink
	pub      logging.Publisher
	metrics  telemetry.Metrics
	counters *logging.Metrics
	clock    logging.Clock

	startedAt     time.Time
	ticks         uint64
	keyframeSeq   uint64
	acceptedTotal uint64
}

// NewHub builds a hub around the supplied collaborators.
func NewHub(cfg Config, deps HubDeps) *Hub {
	cfg = cfg.normalized()
	pub := deps.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	metrics := telemetry.WrapMetrics(deps.Metrics)

	h := &Hub{
		cfg:       cfg,
		peers:     make(map[*Session]*transport.Peer),
		journal:   journal.New(cfg.KeyframeCapacity, cfg.KeyframeMaxAge),
		acceptor:  deps.Acceptor,
		feed:      deps.Feed,
		pub:       pub,
		metrics:   metrics,
		counters:  deps.Metrics,
		clock:     clock,
		startedAt: clock.Now(),
	}
	h.journal.AttachTelemetry(journalTelemetry{metrics: metrics})
	h.pool = NewWorldPool(cfg.RootSeed, pub, metrics, &h.journal)
	return h
}

// Journal exposes the hub's event and keyframe history.
func (h *Hub) Journal() *journal.Journal { return &h.journal }

// RunSimulation drives the fixed-timestep loop until stop closes. Each
// tick that runs longer than its budget is reported, never skipped.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	interval := h.cfg.TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := h.clock.Now()
			h.Step(now)
			if duration := h.clock.Now().Sub(now); duration > interval {
				logsimulation.TickBudgetOverrun(context.Background(), h.pub, h.Ticks(), logsimulation.TickBudgetOverrunPayload{
					DurationMillis: duration.Milliseconds(),
					BudgetMillis:   interval.Milliseconds(),
					Ratio:          float64(duration) / float64(interval),
				})
			}
		}
	}
}

// Step runs one simulation tick: admit at most one waiting peer, advance
// every occupied shard, reclaim transport peers for sessions that timed
// out, publish journal output and record keyframes on cadence. Exported
// so tests can drive the hub deterministically.
func (h *Hub) Step(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ticks++

	h.acceptOneLocked(now)

	removed := h.pool.Update(now)
	for _, sess := range removed {
		peer, ok := h.peers[sess]
		if !ok {
			continue
		}
		delete(h.peers, sess)
		if h.acceptor != nil {
			h.acceptor.Remove(peer)
		}
	}

	if h.ticks%uint64(h.cfg.KeyframeEvery) == 0 {
		h.recordKeyframesLocked()
	}
	h.publishJournalLocked()
}

// acceptOneLocked admits at most one pending peer per tick; the transport
// hand-off queue absorbs bursts.
func (h *Hub) acceptOneLocked(now time.Time) {
	if h.acceptor == nil {
		return
	}
	select {
	case peer, ok := <-h.acceptor.Accepted():
		if !ok || peer == nil {
			return
		}
		sess := NewSession(peer, now)
		h.peers[sess] = peer
		h.pool.Connect(sess, now)
		h.acceptedTotal++
	default:
	}
}

func (h *Hub) recordKeyframesLocked() {
	for _, shard := range h.pool.Shards() {
		if !shard.isOccupied() {
			continue
		}
		h.keyframeSeq++
		h.journal.RecordKeyframe(journal.Keyframe{
			Tick:     uint64(shard.Tick()),
			Sequence: h.keyframeSeq,
			World:    shard.Name(),
			Entities: shard.Snapshot(),
		})
	}
}

// publishJournalLocked hands this tick's events to the spectator feed.
// When the journal reports event loss, spectators get fresh keyframes so
// their view re-converges.
func (h *Hub) publishJournalLocked() {
	if signal, ok := h.journal.ConsumeResyncHint(); ok {
		logsimulation.SpectatorResync(context.Background(), h.pub, h.ticks, logsimulation.SpectatorResyncPayload{
			Summary: signal.Summary(),
		})
		if h.feed != nil {
			h.recordKeyframesLocked()
			for _, shard := range h.pool.Shards() {
				if !shard.isOccupied() {
					continue
				}
				if frame, ok := h.journal.KeyframeLatest(shard.Name()); ok {
					h.feed.BroadcastKeyframe(frame)
				}
			}
		}
	}

	events := h.journal.DrainEvents()
	if len(events) > 0 && h.feed != nil {
		h.feed.BroadcastEvents(events)
	}
}

// Ticks reports how many loop iterations have run.
func (h *Hub) Ticks() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticks
}

type journalTelemetry struct {
	metrics telemetry.Metrics
}

func (t journalTelemetry) RecordJournalDrop(metric string) {
	t.metrics.Add(metric, 1)
}
