// Package channel multiplexes independent logical channels, each with
// its own delivery contract, over a single datagram stream. One Mux
// serves one peer; both ends of a connection construct it from the
// same settings table.
//
// Nothing is transmitted without an explicit Flush: callers queue
// messages with Send, then Flush once per tick or frame drains every
// channel into the outgoing packet queue. The only exception is
// FlushRetransmits, which the transport's send pump runs on the wakeup
// interval so reliable delivery survives a stalled caller.
package channel

import (
	"sync"
	"time"
)

// endpoint is the per-channel state machine behind a table slot.
type endpoint interface {
	send(payload []byte) error
	tryReceive() ([]byte, bool)
	dispatch(datagram []byte, now time.Time)
	flush(now time.Time, emit func(*Packet) bool)
	flushRetransmits(now time.Time, emit func(*Packet) bool)
	snapshot() Stats
}

// Stats is a point-in-time snapshot of one channel's counters.
type Stats struct {
	Name        string `json:"name"`
	Sent        uint64 `json:"sent"`
	Received    uint64 `json:"received"`
	Retransmits uint64 `json:"retransmits,omitempty"`
	Dropped     uint64 `json:"dropped,omitempty"`
	Pending     int    `json:"pending,omitempty"`
	InFlight    int    `json:"inFlight,omitempty"`
}

// MuxStats aggregates per-channel snapshots with datagrams discarded
// before channel routing.
type MuxStats struct {
	Channels  []Stats `json:"channels"`
	Malformed uint64  `json:"malformed,omitempty"`
}

// Mux fans one peer's datagram stream out to its channels and funnels
// their frames back into one outgoing packet queue.
type Mux struct {
	mu        sync.Mutex
	channels  []endpoint
	outgoing  chan *Packet
	done      chan struct{}
	closed    bool
	malformed uint64
}

// NewMux builds a multiplexer from a settings table. The table index
// is the channel ID. now seeds the send budgets; pass the same clock
// used for Flush.
func NewMux(table []Settings, now time.Time) *Mux {
	channels := make([]endpoint, len(table))
	queueCap := 0
	for i, s := range table {
		s = s.normalized()
		switch s.Mode {
		case ModeReliable:
			channels[i] = newReliable(ID(i), s, now)
		default:
			channels[i] = newUnreliable(ID(i), s)
		}
		queueCap += s.PacketBufferCapacity
	}
	return &Mux{
		channels: channels,
		outgoing: make(chan *Packet, queueCap),
		done:     make(chan struct{}),
	}
}

// Send queues one message on a channel. The payload is copied; the
// caller may reuse it immediately. Nothing reaches the wire until the
// next Flush.
func (m *Mux) Send(ch ID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	if int(ch) >= len(m.channels) {
		return ErrChannelClosed
	}
	return m.channels[ch].send(payload)
}

// TryReceive returns the next message queued on a channel, or false
// without blocking.
func (m *Mux) TryReceive(ch ID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || int(ch) >= len(m.channels) {
		return nil, false
	}
	return m.channels[ch].tryReceive()
}

// Dispatch routes one received datagram to its channel. Malformed
// datagrams are counted and dropped; other channels are unaffected.
// ErrChannelClosed tells the caller to stop routing to this peer.
func (m *Mux) Dispatch(datagram []byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	if len(datagram) == 0 || int(datagram[0]) >= len(m.channels) {
		m.malformed++
		return nil
	}
	m.channels[datagram[0]].dispatch(datagram, now)
	return nil
}

// Flush drains every channel's retransmits, pending acks, and queued
// messages into the outgoing packet queue. Call once per tick or
// frame.
func (m *Mux) Flush(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.channels {
		ch.flush(now, m.emit)
	}
}

// FlushRetransmits resends only overdue reliable messages. The
// transport send pump calls it on the wakeup interval.
func (m *Mux) FlushRetransmits(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.channels {
		ch.flushRetransmits(now, m.emit)
	}
}

// emit hands one packet to the outgoing queue without blocking. The
// caller holds m.mu. A false return means the queue was full and the
// packet has been released.
func (m *Mux) emit(pkt *Packet) bool {
	select {
	case m.outgoing <- pkt:
		return true
	default:
		pkt.Release()
		return false
	}
}

// Outgoing is the queue of packets awaiting transmission. It is closed
// by Close, which ends the consumer's range loop.
func (m *Mux) Outgoing() <-chan *Packet {
	return m.outgoing
}

// Done is closed when the multiplexer is torn down.
func (m *Mux) Done() <-chan struct{} {
	return m.done
}

// Close tears the multiplexer down. Queued outgoing packets remain
// readable until drained; subsequent Sends fail with ErrChannelClosed.
func (m *Mux) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
	close(m.outgoing)
}

// Stats snapshots every channel's counters.
func (m *Mux) Stats() MuxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := MuxStats{Channels: make([]Stats, len(m.channels)), Malformed: m.malformed}
	for i, ch := range m.channels {
		out.Channels[i] = ch.snapshot()
	}
	return out
}
