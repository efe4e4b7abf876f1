package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	server "driftisle/server"
	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/net/proto"
	"driftisle/server/internal/net/transport"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	lognetwork "driftisle/server/logging/network"
)

// joinPollInterval paces the wait loop between connect and the arrival
// of the join snapshot.
const joinPollInterval = 5 * time.Millisecond

// Link is the transport surface the client drives. transport.Conn
// satisfies it; tests substitute in-memory multiplexers.
type Link interface {
	Mux() *channel.Mux
}

// Options tune a client. The zero value matches the server's wire
// contract.
type Options struct {
	// Publisher receives network events. Nil disables them.
	Publisher logging.Publisher
	// Metrics receives client counters. Nil disables them.
	Metrics telemetry.Metrics
	// SampleDepth overrides the per-entity interpolation buffer depth.
	SampleDepth int
	// HeartbeatInterval overrides the keepalive cadence.
	HeartbeatInterval time.Duration
	// TickInterval overrides the server tick duration the clock
	// advances by.
	TickInterval time.Duration
}

func (o Options) normalized() Options {
	if o.Publisher == nil {
		o.Publisher = logging.NopPublisher()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.WrapMetrics(nil)
	}
	if o.SampleDepth <= 0 {
		o.SampleDepth = DefaultSampleDepth
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = server.HeartbeatInterval
	}
	if o.TickInterval <= 0 {
		o.TickInterval = server.TickInterval
	}
	return o
}

// View is one entity as the render layer sees it.
type View struct {
	ID     uint64
	Visual proto.VisualKind
	Pos    proto.Vec2
}

type entityState struct {
	visual proto.VisualKind
	buf    *Buffer
}

// Client is one connected peer: the channel multiplexer toward the
// server, the replicated entity set with its interpolation buffers, and
// the local tick clock. All methods are non-blocking except Join; the
// caller drives Poll and Positions once per frame from a single
// goroutine.
type Client struct {
	link Link
	conn *transport.Conn

	opts  Options
	clock *Clock

	joined    bool
	yourID    uint64
	worldName string
	ents      map[uint64]*entityState
	chats     []proto.Chat

	lastBeat time.Time
}

// Dial connects to the server address and returns an unjoined client.
func Dial(addr string, opts Options) (*Client, error) {
	opts = opts.normalized()
	conn, err := transport.Dial(addr, transport.Config{
		Table:     proto.ChannelTable(),
		Publisher: opts.Publisher,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c := New(conn, opts)
	c.conn = conn
	return c, nil
}

// New wraps an existing link. Dial is the usual entry point; New exists
// for tests and custom transports.
func New(link Link, opts Options) *Client {
	opts = opts.normalized()
	return &Client{
		link: link,
		opts: opts,
		ents: make(map[uint64]*entityState),
	}
}

// Join heartbeats the server until the world snapshot arrives, then
// anchors the clock at the snapshot tick and seeds the entity set from
// it. Entity events that raced the snapshot are applied on top; applying
// them is idempotent, so a spawn that is also listed in the snapshot is
// harmless.
func (c *Client) Join(ctx context.Context) (proto.WorldJoin, error) {
	var pending []proto.EntEvent
	for {
		now := time.Now()
		c.heartbeatIfDue(now)
		c.link.Mux().Flush(now)

		for {
			payload, ok := c.link.Mux().TryReceive(proto.ChannelEntEvent)
			if !ok {
				break
			}
			ev, err := proto.DecodeEntEvent(payload)
			if err != nil {
				c.reportDecodeFailure("entevent", err)
				continue
			}
			pending = append(pending, ev)
		}

		if payload, ok := c.link.Mux().TryReceive(proto.ChannelWorldJoin); ok {
			join, err := proto.DecodeWorldJoin(payload)
			if err == nil {
				c.applyJoin(join, now)
				for _, ev := range pending {
					c.applyEntEvent(ev)
				}
				return join, nil
			}
			// A malformed snapshot is dropped like any other bad
			// payload; the wait continues at the poll cadence.
			c.reportDecodeFailure("worldjoin", err)
		}

		select {
		case <-ctx.Done():
			return proto.WorldJoin{}, fmt.Errorf("client: join: %w", ctx.Err())
		case <-time.After(joinPollInterval):
		}
	}
}

func (c *Client) applyJoin(join proto.WorldJoin, now time.Time) {
	c.joined = true
	c.yourID = join.YourID
	c.worldName = join.WorldName
	c.clock = NewClock(join.Tick, now, c.opts.TickInterval)
	for _, island := range join.Islands {
		state := &entityState{visual: island.Visual, buf: NewBuffer(c.opts.SampleDepth)}
		state.buf.Push(join.Tick, island.Pos)
		c.ents[island.ID] = state
	}
}

// Poll drains everything the server sent since the last call: entity
// events update the replicated set, moves feed the interpolation
// buffers, chat accumulates for Chats. A keepalive is queued when due
// and the multiplexer is flushed, so calling Poll once per frame is all
// the connection upkeep there is.
func (c *Client) Poll(now time.Time) {
	mux := c.link.Mux()

	for {
		payload, ok := mux.TryReceive(proto.ChannelEntEvent)
		if !ok {
			break
		}
		ev, err := proto.DecodeEntEvent(payload)
		if err != nil {
			c.reportDecodeFailure("entevent", err)
			continue
		}
		c.applyEntEvent(ev)
	}

	for {
		payload, ok := mux.TryReceive(proto.ChannelMove)
		if !ok {
			break
		}
		move, err := proto.DecodeMove(payload)
		if err != nil {
			c.reportDecodeFailure("move", err)
			continue
		}
		if state, ok := c.ents[move.ID]; ok {
			state.buf.Push(move.Tick, move.Pos)
		}
	}

	for {
		payload, ok := mux.TryReceive(proto.ChannelChat)
		if !ok {
			break
		}
		msg, err := proto.DecodeChat(payload)
		if err != nil {
			c.reportDecodeFailure("chat", err)
			continue
		}
		c.chats = append(c.chats, msg)
	}

	c.heartbeatIfDue(now)
	mux.Flush(now)
}

// applyEntEvent mutates the entity set. A spawn seeds the buffer with
// the spawn position at the current clock tick; a despawn drops the
// entity and its history.
func (c *Client) applyEntEvent(ev proto.EntEvent) {
	switch ev.Kind {
	case proto.EntSpawn:
		state := &entityState{visual: ev.Visual, buf: NewBuffer(c.opts.SampleDepth)}
		tick := uint32(0)
		if c.clock != nil {
			tick, _ = c.clock.Now(time.Now())
		}
		state.buf.Push(tick, ev.Pos)
		c.ents[ev.ID] = state
	case proto.EntDespawn:
		delete(c.ents, ev.ID)
	}
}

func (c *Client) heartbeatIfDue(now time.Time) {
	if !c.lastBeat.IsZero() && now.Sub(c.lastBeat) < c.opts.HeartbeatInterval {
		return
	}
	c.lastBeat = now
	payload, err := proto.EncodeHeartbeat(proto.Heartbeat{})
	if err != nil {
		return
	}
	// Heartbeats ride the unreliable channel; a dropped one is covered
	// by the next.
	_ = c.link.Mux().Send(proto.ChannelHeartbeat, payload)
}

// SendChat queues one chat line. It reaches the wire on the next Poll.
func (c *Client) SendChat(text string) error {
	payload, err := proto.EncodeChat(proto.Chat{Text: text})
	if err != nil {
		return err
	}
	return c.link.Mux().Send(proto.ChannelChat, payload)
}

// Chats returns the chat lines received since the previous call.
func (c *Client) Chats() []proto.Chat {
	out := c.chats
	c.chats = nil
	return out
}

// Positions renders every known entity at the current render target,
// sorted by id for a stable draw order.
func (c *Client) Positions(now time.Time) []View {
	if !c.joined {
		return nil
	}
	tick, frac := c.clock.RenderTarget(now)
	views := make([]View, 0, len(c.ents))
	for id, state := range c.ents {
		pos, ok := state.buf.At(tick, frac)
		if !ok {
			continue
		}
		views = append(views, View{ID: id, Visual: state.visual, Pos: pos})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// YourID is the entity id the server assigned this client. Zero before
// Join returns.
func (c *Client) YourID() uint64 { return c.yourID }

// WorldName is the shard this client plays in. Empty before Join.
func (c *Client) WorldName() string { return c.worldName }

// Clock exposes the tick clock, nil before Join.
func (c *Client) Clock() *Clock { return c.clock }

// EntityCount reports how many entities the client currently tracks.
func (c *Client) EntityCount() int { return len(c.ents) }

// Close tears down the connection when the client owns one.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) reportDecodeFailure(channelName string, err error) {
	c.opts.Metrics.Add(telemetry.CounterDecodeErrors, 1)
	var tick uint64
	if c.clock != nil {
		now, _ := c.clock.Now(time.Now())
		tick = uint64(now)
	}
	lognetwork.DecodeFailed(context.Background(), c.opts.Publisher, tick, logging.EntityRef{ID: c.worldName, Kind: logging.EntityKindSession}, lognetwork.DecodeFailedPayload{
		Channel: channelName,
		Error:   err.Error(),
	})
}
