package server

import (
	"net/netip"
	"testing"
	"time"

	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/net/proto"
)

// testLink satisfies Link with an in-memory multiplexer.
type testLink struct {
	addr netip.AddrPort
	mux  *channel.Mux
}

func (l *testLink) Addr() netip.AddrPort { return l.addr }
func (l *testLink) Mux() *channel.Mux    { return l.mux }

// duplex pairs a session-side link with the multiplexer its pretend
// client would hold, so tests observe exactly what the peer receives.
type duplex struct {
	link   *testLink
	remote *channel.Mux
}

func newDuplex(t *testing.T, port uint16, now time.Time) *duplex {
	t.Helper()
	addr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
	return &duplex{
		link:   &testLink{addr: addr, mux: channel.NewMux(proto.ChannelTable(), now)},
		remote: channel.NewMux(proto.ChannelTable(), now),
	}
}

// carry moves queued packets in both directions.
func (d *duplex) carry(t *testing.T, now time.Time) {
	t.Helper()
	move := func(from, to *channel.Mux) {
		for {
			select {
			case pkt, ok := <-from.Outgoing():
				if !ok {
					return
				}
				if err := to.Dispatch(pkt.Bytes(), now); err != nil {
					t.Fatalf("dispatch: %v", err)
				}
				pkt.Release()
			default:
				return
			}
		}
	}
	move(d.link.mux, d.remote)
	move(d.remote, d.link.mux)
}

// beat queues a client heartbeat and delivers it to the session side.
func (d *duplex) beat(t *testing.T, now time.Time) {
	t.Helper()
	payload, err := proto.EncodeHeartbeat(proto.Heartbeat{})
	if err != nil {
		t.Fatalf("encode heartbeat: %v", err)
	}
	if err := d.remote.Send(proto.ChannelHeartbeat, payload); err != nil {
		t.Fatalf("send heartbeat: %v", err)
	}
	d.remote.Flush(now)
	d.carry(t, now)
}

// say queues a client chat line and delivers it to the session side.
func (d *duplex) say(t *testing.T, now time.Time, text string) {
	t.Helper()
	payload, err := proto.EncodeChat(proto.Chat{Text: text})
	if err != nil {
		t.Fatalf("encode chat: %v", err)
	}
	if err := d.remote.Send(proto.ChannelChat, payload); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	d.remote.Flush(now)
	d.carry(t, now)
}

func (d *duplex) recvEntEvents(t *testing.T) []proto.EntEvent {
	t.Helper()
	var out []proto.EntEvent
	for {
		payload, ok := d.remote.TryReceive(proto.ChannelEntEvent)
		if !ok {
			return out
		}
		ev, err := proto.DecodeEntEvent(payload)
		if err != nil {
			t.Fatalf("decode entevent: %v", err)
		}
		out = append(out, ev)
	}
}

func (d *duplex) recvMoves(t *testing.T) []proto.Move {
	t.Helper()
	var out []proto.Move
	for {
		payload, ok := d.remote.TryReceive(proto.ChannelMove)
		if !ok {
			return out
		}
		move, err := proto.DecodeMove(payload)
		if err != nil {
			t.Fatalf("decode move: %v", err)
		}
		out = append(out, move)
	}
}

func (d *duplex) recvChats(t *testing.T) []proto.Chat {
	t.Helper()
	var out []proto.Chat
	for {
		payload, ok := d.remote.TryReceive(proto.ChannelChat)
		if !ok {
			return out
		}
		msg, err := proto.DecodeChat(payload)
		if err != nil {
			t.Fatalf("decode chat: %v", err)
		}
		out = append(out, msg)
	}
}

func (d *duplex) recvWorldJoins(t *testing.T) []proto.WorldJoin {
	t.Helper()
	var out []proto.WorldJoin
	for {
		payload, ok := d.remote.TryReceive(proto.ChannelWorldJoin)
		if !ok {
			return out
		}
		join, err := proto.DecodeWorldJoin(payload)
		if err != nil {
			t.Fatalf("decode worldjoin: %v", err)
		}
		out = append(out, join)
	}
}
