package channel

import (
	"encoding/binary"
	"sync"
)

var be = binary.BigEndian

// MaxDatagram is the size of every pooled packet buffer and the read
// buffer on the wire. A maximum-length reliable message plus its frame
// header fits in one datagram, so messages are never fragmented.
const MaxDatagram = 1200

// Datagram layout, identical in both directions:
//
//	byte 0      channel index
//	unreliable: payload
//	reliable:
//	byte 1      frame kind (data or ack)
//	bytes 2:4   sequence, big endian (zero in ack frames)
//	bytes 4:6   cumulative ack, big endian
//	bytes 6:    payload (empty in ack frames)
const (
	frameData = 0
	frameAck  = 1

	unreliableHeaderLen = 1
	reliableHeaderLen   = 6
)

// initialSeq is where both ends start sequence numbering. Starting
// near the top of the u16 range exercises wraparound within the first
// minute of a session instead of hiding it for the first 65k messages.
const initialSeq uint16 = 65500

// seqLess reports whether a precedes b on the u16 circle. Valid while
// live sequences span less than half the space, which the send window
// guarantees.
func seqLess(a, b uint16) bool {
	return int16(b-a) > 0
}

var packetPool = sync.Pool{
	New: func() any { return new(Packet) },
}

// Packet is one outgoing datagram backed by a pooled buffer. The
// consumer must call Release after the bytes are handed to the socket.
type Packet struct {
	buf [MaxDatagram]byte
	n   int
}

func newPacket() *Packet {
	p := packetPool.Get().(*Packet)
	p.n = 0
	return p
}

// Bytes returns the filled prefix of the packet buffer. The slice is
// invalid once Release is called.
func (p *Packet) Bytes() []byte {
	return p.buf[:p.n]
}

// Release returns the packet to the pool.
func (p *Packet) Release() {
	p.n = 0
	packetPool.Put(p)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
