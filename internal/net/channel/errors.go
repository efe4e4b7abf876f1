package channel

import "errors"

// Send rejection reasons. Callers on unreliable channels may ignore
// them; a rejection on a reliable channel means the message will never
// reach the peer.
var (
	// ErrMessageTooLarge reports a payload longer than the channel's
	// maximum message length.
	ErrMessageTooLarge = errors.New("channel: message exceeds max length")
	// ErrBufferFull reports a reliable pending queue at capacity.
	ErrBufferFull = errors.New("channel: send buffer full")
	// ErrChannelClosed reports use of a multiplexer after Close.
	ErrChannelClosed = errors.New("channel: closed")
)
