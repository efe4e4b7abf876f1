package network

import (
	"context"

	"driftisle/server/logging"
)

const (
	// EventPeerAccepted is emitted when a datagram from an unknown
	// address creates a peer.
	EventPeerAccepted logging.EventType = "network.peer_accepted"
	// EventAcceptQueueFull is emitted when a new peer is turned away
	// because the hand-off queue is at capacity.
	EventAcceptQueueFull logging.EventType = "network.accept_queue_full"
	// EventSendFailed is emitted when a datagram write fails. The
	// session survives; the heartbeat timeout is the removal signal.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventDecodeFailed is emitted when a message payload does not
	// decode. The message is dropped, the channel continues.
	EventDecodeFailed logging.EventType = "network.decode_failed"
)

// PeerPayload identifies the remote endpoint of a network event.
type PeerPayload struct {
	Addr string `json:"addr"`
}

// SendFailedPayload carries the write error alongside the endpoint.
type SendFailedPayload struct {
	Addr  string `json:"addr"`
	Error string `json:"error"`
}

// DecodeFailedPayload names the channel whose payload was rejected.
type DecodeFailedPayload struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
}

// PeerAccepted publishes a debug event for a newly registered peer.
func PeerAccepted(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerAccepted,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// AcceptQueueFull publishes a warning when a peer is turned away.
func AcceptQueueFull(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAcceptQueueFull,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// SendFailed publishes a warning for a failed datagram write.
func SendFailed(ctx context.Context, pub logging.Publisher, payload SendFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendFailed,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// DecodeFailed publishes a debug event for a dropped message.
func DecodeFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DecodeFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecodeFailed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
