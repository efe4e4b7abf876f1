package channel

import "time"

// unreliable is the fire-and-forget channel implementation. Both the
// outbound and inbound queues are bounded and drop the oldest entry on
// overflow; a stale heartbeat or movement sample is worth less than a
// fresh one.
type unreliable struct {
	id      ID
	cfg     Settings
	pending [][]byte
	inbox   [][]byte
	stats   Stats
}

func newUnreliable(id ID, cfg Settings) *unreliable {
	return &unreliable{id: id, cfg: cfg, stats: Stats{Name: cfg.Name}}
}

func (c *unreliable) send(payload []byte) error {
	if len(payload) > MaxDatagram-unreliableHeaderLen {
		return ErrMessageTooLarge
	}
	if len(c.pending) >= c.cfg.MessageBufferCapacity {
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.stats.Dropped++
	}
	c.pending = append(c.pending, cloneBytes(payload))
	return nil
}

func (c *unreliable) tryReceive() ([]byte, bool) {
	if len(c.inbox) == 0 {
		return nil, false
	}
	msg := c.inbox[0]
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	return msg, true
}

func (c *unreliable) dispatch(datagram []byte, _ time.Time) {
	if len(datagram) < unreliableHeaderLen {
		c.stats.Dropped++
		return
	}
	if len(c.inbox) >= c.cfg.MessageBufferCapacity {
		c.inbox[0] = nil
		c.inbox = c.inbox[1:]
		c.stats.Dropped++
	}
	c.inbox = append(c.inbox, cloneBytes(datagram[unreliableHeaderLen:]))
	c.stats.Received++
}

func (c *unreliable) flush(_ time.Time, emit func(*Packet) bool) {
	for i, payload := range c.pending {
		pkt := newPacket()
		pkt.buf[0] = byte(c.id)
		n := copy(pkt.buf[unreliableHeaderLen:], payload)
		pkt.n = unreliableHeaderLen + n
		if emit(pkt) {
			c.stats.Sent++
		} else {
			c.stats.Dropped++
		}
		c.pending[i] = nil
	}
	c.pending = c.pending[:0]
}

func (c *unreliable) flushRetransmits(time.Time, func(*Packet) bool) {}

func (c *unreliable) snapshot() Stats {
	s := c.stats
	s.Pending = len(c.pending)
	return s
}
