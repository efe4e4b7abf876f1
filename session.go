package server

import (
	"net/netip"
	"time"

	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/net/proto"
)

// Link is the transport-facing surface a session drives: the remote
// address and the peer's channel mux. transport.Peer satisfies it; tests
// substitute in-memory pairs.
type Link interface {
	Addr() netip.AddrPort
	Mux() *channel.Mux
}

// Session is the server-side handle for one connected peer: its link plus
// the liveness stamp the heartbeat monitor maintains.
type Session struct {
	link          Link
	lastHeartbeat time.Time
}

// NewSession wraps a freshly accepted link. The peer counts as alive from
// now; its first heartbeat only extends that.
func NewSession(link Link, now time.Time) *Session {
	return &Session{link: link, lastHeartbeat: now}
}

// Addr returns the peer's remote address.
func (s *Session) Addr() netip.AddrPort { return s.link.Addr() }

// Link returns the transport handle the session was built around.
func (s *Session) Link() Link { return s.link }

// Flush drains every channel's pending traffic into the outgoing packet
// queue. Nothing reaches the wire without it.
func (s *Session) Flush(now time.Time) {
	s.link.Mux().Flush(now)
}

// CheckLiveness consumes all pending heartbeats, each refreshing the
// liveness stamp, then reports whether the session has exceeded timeout.
// The drain happens first so a heartbeat that raced the tick still counts.
func (s *Session) CheckLiveness(now time.Time, timeout time.Duration) bool {
	for {
		if _, ok := s.link.Mux().TryReceive(proto.ChannelHeartbeat); !ok {
			break
		}
		s.lastHeartbeat = now
	}
	return now.Sub(s.lastHeartbeat) > timeout
}

// SilentFor reports the time since the last observed heartbeat.
func (s *Session) SilentFor(now time.Time) time.Duration {
	return now.Sub(s.lastHeartbeat)
}

// SendHeartbeat queues a keepalive on the unreliable channel.
func (s *Session) SendHeartbeat() error {
	payload, err := proto.EncodeHeartbeat(proto.Heartbeat{})
	if err != nil {
		return err
	}
	return s.link.Mux().Send(proto.ChannelHeartbeat, payload)
}

// SendChat queues one chat line on the reliable channel.
func (s *Session) SendChat(msg proto.Chat) error {
	payload, err := proto.EncodeChat(msg)
	if err != nil {
		return err
	}
	return s.link.Mux().Send(proto.ChannelChat, payload)
}

// SendMove queues a position sample on the unreliable channel.
func (s *Session) SendMove(msg proto.Move) error {
	payload, err := proto.EncodeMove(msg)
	if err != nil {
		return err
	}
	return s.link.Mux().Send(proto.ChannelMove, payload)
}

// SendEntEvent queues a spawn or despawn announcement on the reliable
// channel.
func (s *Session) SendEntEvent(msg proto.EntEvent) error {
	payload, err := proto.EncodeEntEvent(msg)
	if err != nil {
		return err
	}
	return s.link.Mux().Send(proto.ChannelEntEvent, payload)
}

// SendWorldJoin queues the one-shot join snapshot on the reliable channel.
func (s *Session) SendWorldJoin(msg proto.WorldJoin) error {
	payload, err := proto.EncodeWorldJoin(msg)
	if err != nil {
		return err
	}
	return s.link.Mux().Send(proto.ChannelWorldJoin, payload)
}

// PollChat pops the next pending chat message. ok reports whether a
// payload was consumed; a non-nil error means the consumed payload failed
// to decode and was dropped, leaving later messages readable.
func (s *Session) PollChat() (proto.Chat, bool, error) {
	payload, ok := s.link.Mux().TryReceive(proto.ChannelChat)
	if !ok {
		return proto.Chat{}, false, nil
	}
	msg, err := proto.DecodeChat(payload)
	if err != nil {
		return proto.Chat{}, true, err
	}
	return msg, true, nil
}
