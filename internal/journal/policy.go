package journal

import (
	"fmt"
)

// ResyncReason names one dropped-event occurrence that contributed to a
// pending resync signal.
type ResyncReason struct {
	Kind  string
	World string
}

// ResyncSignal summarises the losses observed since the last consumption.
type ResyncSignal struct {
	LostEvents  uint64
	TotalEvents uint64
	Reasons     []ResyncReason
}

// Policy decides when event loss is severe enough that spectators should be
// resynchronised from a keyframe rather than trust the event stream.
type Policy struct {
	totalEvents uint64
	lostEvents  uint64
	pending     bool
	reasons     []ResyncReason
}

const lostEventThresholdPerTenThousand = 1
const resyncReasonLimit = 8

func NewPolicy() *Policy {
	return &Policy{reasons: make([]ResyncReason, 0, resyncReasonLimit)}
}

// NoteEvent counts a successfully journaled event. Counters halve rather
// than wrap when saturated so the loss ratio stays meaningful.
func (p *Policy) NoteEvent() {
	if p == nil {
		return
	}
	if p.totalEvents == ^uint64(0) {
		p.totalEvents = p.totalEvents / 2
		p.lostEvents = p.lostEvents / 2
	}
	p.totalEvents++
}

// NoteLostEvent counts a dropped event and re-evaluates the pending signal.
func (p *Policy) NoteLostEvent(kind, world string) {
	if p == nil {
		return
	}
	p.lostEvents++
	if len(p.reasons) < resyncReasonLimit {
		p.reasons = append(p.reasons, ResyncReason{Kind: kind, World: world})
	}
	p.evaluate()
}

func (p *Policy) evaluate() {
	if p == nil || p.pending || p.lostEvents == 0 {
		return
	}
	total := p.totalEvents
	if total == 0 {
		total = 1
	}
	if p.lostEvents*10000 >= total*lostEventThresholdPerTenThousand {
		p.pending = true
	}
}

// Consume returns the pending signal, if any, and resets the counters.
func (p *Policy) Consume() (ResyncSignal, bool) {
	if p == nil || !p.pending {
		return ResyncSignal{}, false
	}
	signal := ResyncSignal{
		LostEvents:  p.lostEvents,
		TotalEvents: p.totalEvents,
		Reasons:     append([]ResyncReason(nil), p.reasons...),
	}
	p.pending = false
	p.totalEvents = 0
	p.lostEvents = 0
	if len(p.reasons) > 0 {
		p.reasons = p.reasons[:0]
	}
	return signal, true
}

// Summary renders the signal for log payloads.
func (s ResyncSignal) Summary() string {
	if s.LostEvents == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("lost_events=%d total_events=%d reasons=%v", s.LostEvents, s.TotalEvents, s.Reasons)
}
