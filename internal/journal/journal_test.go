package journal

import (
	"fmt"
	"testing"
	"time"

	"driftisle/server/internal/net/proto"
)

type dropRecorder struct {
	metrics []string
}

func (r *dropRecorder) RecordJournalDrop(metric string) {
	r.metrics = append(r.metrics, metric)
}

func TestJournalEventBuffersClone(t *testing.T) {
	j := New(0, 0)

	original := Event{
		Tick:   12,
		World:  "Starter World 1",
		Kind:   EventChat,
		Entity: 42,
		Text:   "hello",
	}
	j.Record(original)

	snapshot := j.SnapshotEvents()
	if len(snapshot) != 1 {
		t.Fatalf("expected snapshot to contain 1 event, got %d", len(snapshot))
	}
	snapshot[0].Text = "mutated"
	snapshot[0].Kind = EventEntityDespawned

	drained := j.DrainEvents()
	if len(drained) != 1 {
		t.Fatalf("expected drain to return 1 event, got %d", len(drained))
	}
	if drained[0].Text != original.Text {
		t.Fatalf("expected drain to preserve text %q, got %q", original.Text, drained[0].Text)
	}
	if drained[0].Kind != original.Kind {
		t.Fatalf("expected drain to preserve kind %q, got %q", original.Kind, drained[0].Kind)
	}

	drained[0].Text = "restored"
	j.RestoreEvents(drained)
	drained[0].Text = "post-restore-mutation"

	restored := j.SnapshotEvents()
	if len(restored) != 1 {
		t.Fatalf("expected restored snapshot to contain 1 event, got %d", len(restored))
	}
	if restored[0].Text != "restored" {
		t.Fatalf("expected restore to capture text %q, got %q", "restored", restored[0].Text)
	}

	secondDrain := j.DrainEvents()
	if len(secondDrain) != 1 {
		t.Fatalf("expected second drain to return 1 event, got %d", len(secondDrain))
	}
	if secondDrain[0].Text != "restored" {
		t.Fatalf("expected second drain to keep text %q, got %q", "restored", secondDrain[0].Text)
	}

	if cleared := j.DrainEvents(); len(cleared) != 0 {
		t.Fatalf("expected journal to be empty after drain, got %d events", len(cleared))
	}
}

func TestJournalRestoreEventsPrepends(t *testing.T) {
	j := New(0, 0)

	j.Record(Event{Tick: 1, World: "Starter World 1", Kind: EventEntitySpawned, Entity: 1})
	drained := j.DrainEvents()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained event, got %d", len(drained))
	}

	j.Record(Event{Tick: 2, World: "Starter World 1", Kind: EventChat, Entity: 1, Text: "late"})
	j.RestoreEvents(drained)

	events := j.DrainEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 events after restore, got %d", len(events))
	}
	if events[0].Kind != EventEntitySpawned {
		t.Fatalf("expected restored event first, got %q", events[0].Kind)
	}
	if events[1].Kind != EventChat {
		t.Fatalf("expected later event second, got %q", events[1].Kind)
	}
}

func TestJournalRecordCapsStagedBuffer(t *testing.T) {
	j := New(0, 0)
	recorder := &dropRecorder{}
	j.AttachTelemetry(recorder)

	total := maxStagedEvents + 3
	for i := 0; i < total; i++ {
		j.Record(Event{
			Tick:  uint64(i + 1),
			World: "Starter World 1",
			Kind:  EventChat,
			Text:  fmt.Sprintf("line %d", i+1),
		})
	}

	staged := j.SnapshotEvents()
	if len(staged) != maxStagedEvents {
		t.Fatalf("expected staged buffer capped at %d, got %d", maxStagedEvents, len(staged))
	}
	if staged[0].Tick != 4 {
		t.Fatalf("expected oldest events dropped, first staged tick 4, got %d", staged[0].Tick)
	}
	if len(recorder.metrics) != 3 {
		t.Fatalf("expected 3 drop metrics, got %d", len(recorder.metrics))
	}
	for _, metric := range recorder.metrics {
		if metric != metricJournalStagedOverflow {
			t.Fatalf("expected drop metric %q, got %q", metricJournalStagedOverflow, metric)
		}
	}
}

func TestJournalRecentEventsTrail(t *testing.T) {
	j := New(0, 0)

	total := recentEventLimit + 5
	for i := 0; i < total; i++ {
		j.Record(Event{Tick: uint64(i + 1), World: "Starter World 1", Kind: EventChat})
		if i == total/2 {
			j.DrainEvents()
		}
	}

	recent := j.RecentEvents()
	if len(recent) != recentEventLimit {
		t.Fatalf("expected trail capped at %d, got %d", recentEventLimit, len(recent))
	}
	if recent[0].Tick != 6 {
		t.Fatalf("expected trail to keep newest events, first tick 6, got %d", recent[0].Tick)
	}
	if recent[len(recent)-1].Tick != uint64(total) {
		t.Fatalf("expected trail to end at tick %d, got %d", total, recent[len(recent)-1].Tick)
	}
}

func TestJournalPurgeWorld(t *testing.T) {
	j := New(0, 0)

	j.Record(Event{Tick: 1, World: "Starter World 1", Kind: EventEntitySpawned, Entity: 1})
	j.Record(Event{Tick: 1, World: "Starter World 2", Kind: EventEntitySpawned, Entity: 2})
	j.Record(Event{Tick: 2, World: "Starter World 1", Kind: EventChat, Entity: 1, Text: "hi"})

	j.PurgeWorld("Starter World 1")

	staged := j.SnapshotEvents()
	if len(staged) != 1 {
		t.Fatalf("expected 1 staged event after purge, got %d", len(staged))
	}
	if staged[0].World != "Starter World 2" {
		t.Fatalf("expected surviving event from %q, got %q", "Starter World 2", staged[0].World)
	}
}

func TestJournalResyncPolicySignals(t *testing.T) {
	j := New(0, 0)

	if signal, ok := j.ConsumeResyncHint(); ok || signal.LostEvents != 0 || signal.TotalEvents != 0 || len(signal.Reasons) != 0 {
		t.Fatalf("expected no resync signal before events, got %+v", signal)
	}

	// Overflowing the staging buffer should trigger a lost-event resync hint.
	for i := 0; i <= maxStagedEvents; i++ {
		j.Record(Event{Tick: uint64(i + 1), World: "Starter World 1", Kind: EventChat})
	}

	signal, ok := j.ConsumeResyncHint()
	if !ok {
		t.Fatalf("expected resync hint after staged overflow")
	}
	if signal.LostEvents != 1 {
		t.Fatalf("expected lost events to be 1, got %d", signal.LostEvents)
	}
	if signal.TotalEvents == 0 {
		t.Fatalf("expected total events to be counted, got 0")
	}
	if len(signal.Reasons) != 1 {
		t.Fatalf("expected one reason, got %d", len(signal.Reasons))
	}
	if signal.Reasons[0].Kind != metricJournalStagedOverflow {
		t.Fatalf("expected reason kind %q, got %q", metricJournalStagedOverflow, signal.Reasons[0].Kind)
	}
	if signal.Reasons[0].World != "Starter World 1" {
		t.Fatalf("expected reason world %q, got %q", "Starter World 1", signal.Reasons[0].World)
	}
	if signal.Summary() == "" {
		t.Fatalf("expected non-empty summary for consumed signal")
	}

	if _, ok := j.ConsumeResyncHint(); ok {
		t.Fatalf("expected resync hint to reset after consumption")
	}

	// Ordinary records should not re-trigger the hint without a new loss.
	j.DrainEvents()
	j.Record(Event{Tick: 600, World: "Starter World 1", Kind: EventChat})

	if _, ok := j.ConsumeResyncHint(); ok {
		t.Fatalf("expected no resync hint without a new lost event")
	}
}

func TestJournalKeyframeEvictionByCount(t *testing.T) {
	j := New(2, 0)

	for seq := uint64(1); seq <= 2; seq++ {
		result := j.RecordKeyframe(Keyframe{Tick: seq * 10, Sequence: seq, World: "Starter World 1"})
		if len(result.Evicted) != 0 {
			t.Fatalf("expected no evictions while under capacity, got %d", len(result.Evicted))
		}
	}

	result := j.RecordKeyframe(Keyframe{Tick: 30, Sequence: 3, World: "Starter World 1"})
	if result.Size != 2 {
		t.Fatalf("expected retained size 2, got %d", result.Size)
	}
	if result.OldestSequence != 2 || result.NewestSequence != 3 {
		t.Fatalf("expected window [2,3], got [%d,%d]", result.OldestSequence, result.NewestSequence)
	}
	if len(result.Evicted) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(result.Evicted))
	}
	if result.Evicted[0].Sequence != 1 || result.Evicted[0].Reason != "count" {
		t.Fatalf("expected sequence 1 evicted for count, got %+v", result.Evicted[0])
	}

	size, oldest, newest := j.KeyframeWindow()
	if size != 2 || oldest != 2 || newest != 3 {
		t.Fatalf("expected window size 2 [2,3], got size %d [%d,%d]", size, oldest, newest)
	}
}

func TestJournalKeyframeEvictionByAge(t *testing.T) {
	j := New(8, time.Millisecond)

	j.RecordKeyframe(Keyframe{Tick: 10, Sequence: 1, World: "Starter World 1"})
	time.Sleep(5 * time.Millisecond)
	result := j.RecordKeyframe(Keyframe{Tick: 20, Sequence: 2, World: "Starter World 1"})

	if result.Size != 1 {
		t.Fatalf("expected retained size 1, got %d", result.Size)
	}
	if len(result.Evicted) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(result.Evicted))
	}
	if result.Evicted[0].Sequence != 1 || result.Evicted[0].Reason != "expired" {
		t.Fatalf("expected sequence 1 evicted as expired, got %+v", result.Evicted[0])
	}
	if result.OldestSequence != 2 || result.NewestSequence != 2 {
		t.Fatalf("expected window [2,2], got [%d,%d]", result.OldestSequence, result.NewestSequence)
	}
}

func TestJournalKeyframeZeroCapacityDropsFrames(t *testing.T) {
	j := New(0, 0)

	result := j.RecordKeyframe(Keyframe{Tick: 10, Sequence: 1, World: "Starter World 1"})
	if result.Size != 0 || len(result.Evicted) != 0 {
		t.Fatalf("expected empty result with zero capacity, got %+v", result)
	}
	if frames := j.Keyframes(); frames != nil {
		t.Fatalf("expected no retained keyframes, got %d", len(frames))
	}
	if size, oldest, newest := j.KeyframeWindow(); size != 0 || oldest != 0 || newest != 0 {
		t.Fatalf("expected empty window, got size %d [%d,%d]", size, oldest, newest)
	}
}

func TestJournalKeyframeCopiesEntities(t *testing.T) {
	j := New(4, 0)

	entities := []proto.Island{
		{ID: 1, Pos: proto.Vec2{X: 10, Y: 20}, Visual: proto.VisualIsland},
		{ID: 2, Pos: proto.Vec2{X: 30, Y: 40}, Visual: proto.VisualVase},
	}
	frame := Keyframe{Tick: 256, Sequence: 8001, World: "Starter World 1", Entities: entities}

	j.RecordKeyframe(frame)

	entities[0].ID = 99
	entities[1].Pos = proto.Vec2{X: -1, Y: -1}

	recorded, ok := j.KeyframeBySequence(frame.Sequence)
	if !ok {
		t.Fatalf("expected journal to return keyframe %d", frame.Sequence)
	}
	if recorded.Entities[0].ID != 1 {
		t.Fatalf("expected recorded entity id 1, got %d", recorded.Entities[0].ID)
	}
	if recorded.Entities[1].Pos.X != 30 {
		t.Fatalf("expected recorded entity position preserved, got %v", recorded.Entities[1].Pos)
	}

	recorded.Entities[0].ID = 77

	again, ok := j.KeyframeBySequence(frame.Sequence)
	if !ok {
		t.Fatalf("expected journal to return keyframe %d on second lookup", frame.Sequence)
	}
	if again.Entities[0].ID != 1 {
		t.Fatalf("expected stored entities to remain unchanged, got id %d", again.Entities[0].ID)
	}
}

func TestJournalKeyframeBySequenceRejectsZero(t *testing.T) {
	j := New(4, 0)
	j.RecordKeyframe(Keyframe{Tick: 10, Sequence: 0, World: "Starter World 1"})

	if _, ok := j.KeyframeBySequence(0); ok {
		t.Fatalf("expected sequence zero lookups to miss")
	}
}

func TestJournalKeyframeLatestFiltersByWorld(t *testing.T) {
	j := New(8, 0)

	j.RecordKeyframe(Keyframe{Tick: 10, Sequence: 1, World: "Starter World 1"})
	j.RecordKeyframe(Keyframe{Tick: 10, Sequence: 2, World: "Starter World 2"})
	j.RecordKeyframe(Keyframe{Tick: 20, Sequence: 3, World: "Starter World 1"})

	latest, ok := j.KeyframeLatest("Starter World 1")
	if !ok {
		t.Fatalf("expected a keyframe for Starter World 1")
	}
	if latest.Sequence != 3 {
		t.Fatalf("expected newest matching sequence 3, got %d", latest.Sequence)
	}

	newest, ok := j.KeyframeLatest("")
	if !ok || newest.Sequence != 3 {
		t.Fatalf("expected newest overall sequence 3, got %d (ok=%v)", newest.Sequence, ok)
	}

	if _, ok := j.KeyframeLatest("Nowhere"); ok {
		t.Fatalf("expected no keyframe for unknown world")
	}
}
