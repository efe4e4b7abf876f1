package channel

import "time"

// ID indexes a channel slot inside a multiplexer table. The same table
// must be used on both ends of a connection; a mismatch is a
// programmer error, not a runtime condition.
type ID uint8

// Mode selects the delivery contract of a channel.
type Mode uint8

const (
	// ModeUnreliable sends fire-and-forget: messages may be lost,
	// duplicated, or reordered in transit and are never retransmitted.
	ModeUnreliable Mode = iota
	// ModeReliable delivers every message in send order, retransmitting
	// until acknowledged.
	ModeReliable
)

// Default queue bounds applied when a table entry leaves them zero.
const (
	DefaultMessageBuffer = 8
	DefaultPacketBuffer  = 8
)

// ReliableSettings tune the acknowledgment and retransmit machinery of
// a reliable channel.
type ReliableSettings struct {
	// Bandwidth is the sustained send budget in payload bytes per
	// second. Zero means unthrottled.
	Bandwidth int
	// SendWindow bounds how many messages may be in flight, sent but
	// not yet acknowledged.
	SendWindow uint16
	// RecvWindow bounds how far past the next expected sequence the
	// receiver buffers out-of-order arrivals, and how many in-order
	// messages may sit undelivered before acks are withheld.
	RecvWindow uint16
	// BurstBandwidth is the bucket depth of the send budget. It must
	// admit at least one maximum-length message.
	BurstBandwidth int
	// InitialSendAllowance is the budget available before any time has
	// accrued, so the first flush after connect is not silent.
	InitialSendAllowance int
	// WakeupInterval is the cadence of the background retransmit sweep
	// run by the peer send pump between explicit flushes.
	WakeupInterval time.Duration
	// InitialRTT seeds the smoothed round-trip estimate.
	InitialRTT time.Duration
	// MaxRTT caps every retransmit deadline.
	MaxRTT time.Duration
	// RTTUpdateFactor is the exponential smoothing weight applied to
	// round-trip samples from first transmissions. Samples from
	// retransmitted messages are ambiguous and are discarded.
	RTTUpdateFactor float64
	// RTTResendFactor scales the smoothed round trip into a resend
	// deadline; each retransmit of a message grows its deadline by the
	// same factor.
	RTTResendFactor float64
	// MaxMessageLength bounds one message payload in bytes. Longer
	// sends fail with ErrMessageTooLarge.
	MaxMessageLength int
}

// DefaultReliable returns the tuning shared by every reliable channel
// in the wire contract.
func DefaultReliable() ReliableSettings {
	return ReliableSettings{
		Bandwidth:            4096,
		SendWindow:           1024,
		RecvWindow:           1024,
		BurstBandwidth:       1024,
		InitialSendAllowance: 512,
		WakeupInterval:       100 * time.Millisecond,
		InitialRTT:           200 * time.Millisecond,
		MaxRTT:               2 * time.Second,
		RTTUpdateFactor:      0.1,
		RTTResendFactor:      1.5,
		MaxMessageLength:     1024,
	}
}

// Settings describes one channel slot. Tables of Settings are built
// once at process start and passed by reference into each multiplexer;
// there is no ambient registry.
type Settings struct {
	// Name appears in logs and diagnostics snapshots.
	Name string
	Mode Mode
	// Reliable is consulted only when Mode is ModeReliable. A zero
	// value is replaced with DefaultReliable.
	Reliable ReliableSettings
	// MessageBufferCapacity bounds the pending-send queue (reliable
	// channels reject with ErrBufferFull, unreliable channels drop the
	// oldest unsent message) and the inbound queue of an unreliable
	// channel.
	MessageBufferCapacity int
	// PacketBufferCapacity is this channel's share of the shared
	// outgoing packet queue.
	PacketBufferCapacity int
}

func (s Settings) normalized() Settings {
	if s.MessageBufferCapacity <= 0 {
		s.MessageBufferCapacity = DefaultMessageBuffer
	}
	if s.PacketBufferCapacity <= 0 {
		s.PacketBufferCapacity = DefaultPacketBuffer
	}
	if s.Mode == ModeReliable && s.Reliable == (ReliableSettings{}) {
		s.Reliable = DefaultReliable()
	}
	return s
}
