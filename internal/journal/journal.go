// Package journal keeps a short history of what each world shard did:
// discrete replication events staged per tick for the spectator feed, a
// bounded trail of recent events for diagnostics, and a rolling buffer of
// keyframes so late-joining spectators can rehydrate state.
package journal

import (
	"sync"
	"time"

	"driftisle/server/internal/net/proto"
)

// Telemetry receives counters for events the journal had to drop.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

// EventKind discriminates journal entries.
type EventKind string

const (
	EventSessionJoined   EventKind = "session_joined"
	EventSessionTimedOut EventKind = "session_timed_out"
	EventEntitySpawned   EventKind = "entity_spawned"
	EventEntityDespawned EventKind = "entity_despawned"
	EventChat            EventKind = "chat"
)

// Event is one replication-visible occurrence inside a shard. Movement is
// not journaled; positions travel in keyframes.
type Event struct {
	Tick       uint64     `json:"tick"`
	World      string     `json:"world"`
	Kind       EventKind  `json:"kind"`
	Entity     uint64     `json:"entity,omitempty"`
	Pos        proto.Vec2 `json:"pos"`
	Text       string     `json:"text,omitempty"`
	RecordedAt time.Time  `json:"recordedAt"`
}

// Keyframe is a full snapshot of one shard at a tick boundary.
type Keyframe struct {
	Tick       uint64         `json:"tick"`
	Sequence   uint64         `json:"sequence"`
	World      string         `json:"world"`
	Entities   []proto.Island `json:"entities"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// KeyframeEviction names a keyframe removed while enforcing retention.
type KeyframeEviction struct {
	Sequence uint64
	Tick     uint64
	Reason   string
}

// KeyframeRecordResult reports the retention window after a record call.
type KeyframeRecordResult struct {
	Size           int
	OldestSequence uint64
	NewestSequence uint64
	Evicted        []KeyframeEviction
}

// maxStagedEvents caps the per-tick staging buffer; the simulation drains it
// every tick, so hitting the cap means the drain loop has stalled.
const maxStagedEvents = 256

// recentEventLimit bounds the diagnostics trail.
const recentEventLimit = 64

// Journal accumulates replication events generated during a tick and keeps a
// rolling buffer of recent keyframes so spectators can rehydrate state.
type Journal struct {
	mu        sync.RWMutex
	staged    []Event
	recent    []Event
	keyframes []Keyframe
	maxFrames int
	maxAge    time.Duration
	telemetry Telemetry
	resync    *Policy
}

// New constructs a journal with storage for the configured number of
// keyframes and retention window.
func New(keyframeCapacity int, maxAge time.Duration) Journal {
	if keyframeCapacity < 0 {
		keyframeCapacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return Journal{
		staged:    make([]Event, 0),
		recent:    make([]Event, 0, recentEventLimit),
		keyframes: make([]Keyframe, 0, keyframeCapacity),
		maxFrames: keyframeCapacity,
		maxAge:    maxAge,
		resync:    NewPolicy(),
	}
}

// Record stages an event for the current tick and appends it to the
// diagnostics trail. When the staging buffer is full the oldest staged event
// is discarded and the loss is reported to telemetry and the resync policy.
func (j *Journal) Record(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	if j.resync != nil {
		j.resync.NoteEvent()
	}

	if len(j.staged) >= maxStagedEvents {
		j.recordJournalDropLocked(metricJournalStagedOverflow)
		if j.resync != nil {
			j.resync.NoteLostEvent(metricJournalStagedOverflow, j.staged[0].World)
		}
		copy(j.staged, j.staged[1:])
		j.staged = j.staged[:len(j.staged)-1]
	}
	j.staged = append(j.staged, e)

	if len(j.recent) >= recentEventLimit {
		copy(j.recent, j.recent[1:])
		j.recent = j.recent[:len(j.recent)-1]
	}
	j.recent = append(j.recent, e)
}

// DrainEvents returns the staged events in record order and resets the
// staging buffer. Callers receive a copy they are free to retain.
func (j *Journal) DrainEvents() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.staged) == 0 {
		return nil
	}
	drained := make([]Event, len(j.staged))
	copy(drained, j.staged)
	j.staged = j.staged[:0]
	return drained
}

// SnapshotEvents copies the staged events without clearing them.
func (j *Journal) SnapshotEvents() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.staged) == 0 {
		return nil
	}
	snapshot := make([]Event, len(j.staged))
	copy(snapshot, j.staged)
	return snapshot
}

// RestoreEvents puts drained events back at the front of the staging buffer,
// ahead of anything recorded since the drain.
func (j *Journal) RestoreEvents(events []Event) {
	if len(events) == 0 {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	restored := make([]Event, 0, len(events)+len(j.staged))
	restored = append(restored, events...)
	restored = append(restored, j.staged...)
	j.staged = restored
}

// RecentEvents returns the diagnostics trail in chronological order.
func (j *Journal) RecentEvents() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.recent) == 0 {
		return nil
	}
	events := make([]Event, len(j.recent))
	copy(events, j.recent)
	return events
}

// PurgeWorld drops staged events for a shard that is being recycled so a
// fresh occupant never replays the previous incarnation's history.
func (j *Journal) PurgeWorld(world string) {
	if world == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	filtered := j.staged[:0]
	for _, e := range j.staged {
		if e.World == world {
			continue
		}
		filtered = append(filtered, e)
	}
	j.staged = filtered
}

// ConsumeResyncHint reports whether the journal lost enough events that
// spectators should be sent a fresh keyframe instead of the event stream.
// Counters reset after each consumption.
func (j *Journal) ConsumeResyncHint() (ResyncSignal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resync == nil {
		return ResyncSignal{}, false
	}
	return j.resync.Consume()
}

// RecordKeyframe stores a keyframe in the buffer enforcing retention limits
// by count and age.
func (j *Journal) RecordKeyframe(frame Keyframe) KeyframeRecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxFrames == 0 {
		j.keyframes = j.keyframes[:0]
		return KeyframeRecordResult{}
	}

	frame.RecordedAt = time.Now()
	j.keyframes = append(j.keyframes, cloneKeyframe(frame))

	cutoff := time.Time{}
	if j.maxAge > 0 {
		cutoff = frame.RecordedAt.Add(-j.maxAge)
	}

	evicted := make([]KeyframeEviction, 0)
	if !cutoff.IsZero() {
		idx := 0
		for idx < len(j.keyframes) {
			if !j.keyframes[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, KeyframeEviction{
				Sequence: j.keyframes[idx].Sequence,
				Tick:     j.keyframes[idx].Tick,
				Reason:   "expired",
			})
			idx++
		}
		if idx > 0 {
			copy(j.keyframes, j.keyframes[idx:])
			j.keyframes = j.keyframes[:len(j.keyframes)-idx]
		}
	}

	if j.maxFrames > 0 && len(j.keyframes) > j.maxFrames {
		overflow := len(j.keyframes) - j.maxFrames
		for i := 0; i < overflow; i++ {
			frame := j.keyframes[i]
			evicted = append(evicted, KeyframeEviction{
				Sequence: frame.Sequence,
				Tick:     frame.Tick,
				Reason:   "count",
			})
		}
		copy(j.keyframes, j.keyframes[overflow:])
		j.keyframes = j.keyframes[:len(j.keyframes)-overflow]
	}

	size := len(j.keyframes)
	result := KeyframeRecordResult{Size: size}
	if size > 0 {
		result.OldestSequence = j.keyframes[0].Sequence
		result.NewestSequence = j.keyframes[size-1].Sequence
	}
	result.Evicted = evicted
	return result
}

// Keyframes exposes the current keyframe buffer contents in chronological
// order. Callers receive copies to avoid holding references into the buffer.
func (j *Journal) Keyframes() []Keyframe {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.keyframes) == 0 {
		return nil
	}
	frames := make([]Keyframe, len(j.keyframes))
	for i, frame := range j.keyframes {
		frames[i] = cloneKeyframe(frame)
	}
	return frames
}

// KeyframeBySequence returns the keyframe matching the provided sequence.
func (j *Journal) KeyframeBySequence(sequence uint64) (Keyframe, bool) {
	if sequence == 0 {
		return Keyframe{}, false
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, frame := range j.keyframes {
		if frame.Sequence == sequence {
			return cloneKeyframe(frame), true
		}
	}
	return Keyframe{}, false
}

// KeyframeLatest returns the most recently recorded keyframe for a world, or
// the newest overall when world is empty.
func (j *Journal) KeyframeLatest(world string) (Keyframe, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.keyframes) - 1; i >= 0; i-- {
		if world != "" && j.keyframes[i].World != world {
			continue
		}
		return cloneKeyframe(j.keyframes[i]), true
	}
	return Keyframe{}, false
}

// KeyframeWindow reports the current retention window.
func (j *Journal) KeyframeWindow() (size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	size = len(j.keyframes)
	if size == 0 {
		return size, 0, 0
	}
	oldest = j.keyframes[0].Sequence
	newest = j.keyframes[size-1].Sequence
	return size, oldest, newest
}

func cloneKeyframe(frame Keyframe) Keyframe {
	if len(frame.Entities) > 0 {
		entities := make([]proto.Island, len(frame.Entities))
		copy(entities, frame.Entities)
		frame.Entities = entities
	}
	return frame
}

const metricJournalStagedOverflow = "journal_staged_overflow"

func (j *Journal) recordJournalDropLocked(metric string) {
	if j.telemetry == nil || metric == "" {
		return
	}
	j.telemetry.RecordJournalDrop(metric)
}

// AttachTelemetry wires the drop counter sink. Safe to call at any time.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}
