package channel

import (
	"time"

	"golang.org/x/time/rate"
)

// flight is one reliable message between first transmission and
// acknowledgment.
type flight struct {
	seq           uint16
	payload       []byte
	sentAt        time.Time
	deadline      time.Time
	rto           time.Duration
	retransmitted bool
}

// reliable is the ordered, acknowledged channel implementation.
// Cumulative acks keep the in-flight set contiguous, so it is stored
// as a slice ordered by sequence with base tracking the oldest
// unacknowledged message.
type reliable struct {
	id  ID
	cfg Settings

	// Send side.
	pending  [][]byte
	inflight []*flight
	base     uint16
	nextSeq  uint16
	srtt     time.Duration
	limiter  *rate.Limiter

	// Receive side.
	expected   uint16
	future     map[uint16][]byte
	inbox      [][]byte
	ackPending bool

	stats Stats
}

func newReliable(id ID, cfg Settings, now time.Time) *reliable {
	r := cfg.Reliable
	limit := rate.Inf
	if r.Bandwidth > 0 {
		limit = rate.Limit(r.Bandwidth)
	}
	burst := r.BurstBandwidth
	if burst <= 0 {
		burst = r.MaxMessageLength
	}
	limiter := rate.NewLimiter(limit, burst)
	// A fresh limiter holds a full bucket; consume the difference so
	// the first flush spends only the configured initial allowance.
	if priming := burst - r.InitialSendAllowance; priming > 0 {
		limiter.AllowN(now, priming)
	}
	return &reliable{
		id:       id,
		cfg:      cfg,
		base:     initialSeq,
		nextSeq:  initialSeq,
		srtt:     r.InitialRTT,
		limiter:  limiter,
		expected: initialSeq,
		future:   make(map[uint16][]byte),
		stats:    Stats{Name: cfg.Name},
	}
}

func (c *reliable) send(payload []byte) error {
	if len(payload) > c.cfg.Reliable.MaxMessageLength {
		return ErrMessageTooLarge
	}
	if len(c.pending) >= c.cfg.MessageBufferCapacity {
		return ErrBufferFull
	}
	c.pending = append(c.pending, cloneBytes(payload))
	return nil
}

func (c *reliable) tryReceive() ([]byte, bool) {
	if len(c.inbox) == 0 {
		return nil, false
	}
	msg := c.inbox[0]
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	c.promote()
	return msg, true
}

func (c *reliable) dispatch(datagram []byte, now time.Time) {
	if len(datagram) < reliableHeaderLen {
		c.stats.Dropped++
		return
	}
	kind := datagram[1]
	seq := be.Uint16(datagram[2:4])
	ack := be.Uint16(datagram[4:6])
	c.handleAck(ack, now)
	switch kind {
	case frameAck:
	case frameData:
		c.acceptData(seq, datagram[reliableHeaderLen:])
	default:
		c.stats.Dropped++
	}
}

// handleAck retires every in-flight message at or before ack and folds
// round-trip samples from first transmissions into the smoothed
// estimate. Samples from retransmitted messages are discarded because
// the ack cannot be matched to a specific transmission.
func (c *reliable) handleAck(ack uint16, now time.Time) {
	if len(c.inflight) == 0 {
		return
	}
	n := int(int16(ack-c.base)) + 1
	if n <= 0 {
		return
	}
	if n > len(c.inflight) {
		n = len(c.inflight)
	}
	for i := 0; i < n; i++ {
		msg := c.inflight[i]
		if !msg.retransmitted {
			c.observeRTT(now.Sub(msg.sentAt))
		}
		c.inflight[i] = nil
	}
	c.inflight = c.inflight[n:]
	c.base += uint16(n)
}

func (c *reliable) observeRTT(sample time.Duration) {
	if sample < 0 {
		return
	}
	c.srtt += time.Duration(float64(sample-c.srtt) * c.cfg.Reliable.RTTUpdateFactor)
}

// acceptData buffers one data frame. Every data frame earns an ack,
// including duplicates, so a peer that missed the previous ack
// converges instead of retransmitting forever.
func (c *reliable) acceptData(seq uint16, payload []byte) {
	c.ackPending = true
	if seqLess(seq, c.expected) {
		c.stats.Dropped++
		return
	}
	if uint16(seq-c.expected) >= c.cfg.Reliable.RecvWindow {
		c.stats.Dropped++
		return
	}
	if _, ok := c.future[seq]; !ok {
		c.future[seq] = cloneBytes(payload)
	}
	c.promote()
}

// promote moves consecutive buffered frames into the in-order inbox.
// It stops at the receive window bound: a stalled reader then withholds
// acks, which throttles the sender instead of growing the inbox.
func (c *reliable) promote() {
	for len(c.inbox) < int(c.cfg.Reliable.RecvWindow) {
		payload, ok := c.future[c.expected]
		if !ok {
			return
		}
		delete(c.future, c.expected)
		c.inbox = append(c.inbox, payload)
		c.expected++
		c.stats.Received++
	}
}

func (c *reliable) flush(now time.Time, emit func(*Packet) bool) {
	c.flushRetransmits(now, emit)
	c.flushAck(emit)
	for len(c.pending) > 0 {
		if len(c.inflight) >= int(c.cfg.Reliable.SendWindow) {
			return
		}
		payload := c.pending[0]
		if !c.limiter.AllowN(now, len(payload)) {
			return
		}
		c.pending[0] = nil
		c.pending = c.pending[1:]
		msg := &flight{
			seq:     c.nextSeq,
			payload: payload,
			sentAt:  now,
			rto:     c.resendInterval(),
		}
		msg.deadline = now.Add(msg.rto)
		c.nextSeq++
		c.inflight = append(c.inflight, msg)
		c.emitData(msg, emit)
		c.stats.Sent++
	}
}

// flushRetransmits resends every in-flight message past its deadline.
// Retransmits bypass the budget gate but still draw it down, delaying
// fresh sends instead of starving recovery.
func (c *reliable) flushRetransmits(now time.Time, emit func(*Packet) bool) {
	for _, msg := range c.inflight {
		if msg.deadline.After(now) {
			continue
		}
		msg.retransmitted = true
		msg.rto = clampRTT(time.Duration(float64(msg.rto)*c.cfg.Reliable.RTTResendFactor), c.cfg.Reliable.MaxRTT)
		msg.deadline = now.Add(msg.rto)
		c.limiter.ReserveN(now, len(msg.payload))
		c.emitData(msg, emit)
		c.stats.Retransmits++
	}
}

func (c *reliable) flushAck(emit func(*Packet) bool) {
	if !c.ackPending {
		return
	}
	pkt := newPacket()
	pkt.buf[0] = byte(c.id)
	pkt.buf[1] = frameAck
	be.PutUint16(pkt.buf[2:4], 0)
	be.PutUint16(pkt.buf[4:6], c.expected-1)
	pkt.n = reliableHeaderLen
	if emit(pkt) {
		c.ackPending = false
	}
}

// emitData writes one data frame with the current cumulative ack
// piggybacked. A full outgoing queue is survivable: the message stays
// in flight and the retransmit sweep covers it.
func (c *reliable) emitData(msg *flight, emit func(*Packet) bool) {
	pkt := newPacket()
	pkt.buf[0] = byte(c.id)
	pkt.buf[1] = frameData
	be.PutUint16(pkt.buf[2:4], msg.seq)
	be.PutUint16(pkt.buf[4:6], c.expected-1)
	n := copy(pkt.buf[reliableHeaderLen:], msg.payload)
	pkt.n = reliableHeaderLen + n
	if emit(pkt) {
		c.ackPending = false
	}
}

// resendInterval derives the first deadline of a fresh transmission
// from the smoothed round trip.
func (c *reliable) resendInterval() time.Duration {
	return clampRTT(time.Duration(float64(c.srtt)*c.cfg.Reliable.RTTResendFactor), c.cfg.Reliable.MaxRTT)
}

func clampRTT(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

func (c *reliable) snapshot() Stats {
	s := c.stats
	s.Pending = len(c.pending)
	s.InFlight = len(c.inflight)
	return s
}
