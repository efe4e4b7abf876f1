// Package ws streams the replication journal to spectators over
// websockets. Spectators are read-only: the feed pushes JSON envelopes
// of journal events and keyframes and ignores everything a spectator
// sends back. Game traffic never touches this surface; players speak
// the UDP channel protocol.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"driftisle/server/internal/journal"
	"driftisle/server/logging"
	lognetwork "driftisle/server/logging/network"
)

// Envelope kinds pushed to spectators.
const (
	EnvelopeEvents   = "events"
	EnvelopeKeyframe = "keyframe"
)

// Envelope wraps one feed payload with its kind tag.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SnapshotFunc supplies the keyframes a freshly connected spectator
// needs to rehydrate the world before the event stream makes sense.
type SnapshotFunc func() []journal.Keyframe

// Feed fans journal output out to every connected spectator. It
// satisfies the hub's EventSink.
type Feed struct {
	pub      logging.Publisher
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     map[*websocket.Conn]*sync.Mutex
	snapshots SnapshotFunc
	closed    bool
}

// NewFeed builds an empty feed. pub may be nil.
func NewFeed(pub logging.Publisher) *Feed {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Feed{
		pub: pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// SetSnapshots installs the keyframe provider used to greet new
// spectators. Must be called before the first connection is served.
func (f *Feed) SetSnapshots(fn SnapshotFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = fn
}

// ServeHTTP lets the feed mount directly on an HTTP router.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Handle(w, r)
}

// Handle upgrades one HTTP request into a spectator connection and
// blocks until the spectator disconnects.
func (f *Feed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	writeMu := &sync.Mutex{}
	f.conns[conn] = writeMu
	snapshots := f.snapshots
	f.mu.Unlock()

	if snapshots != nil {
		for _, frame := range snapshots() {
			if err := writeEnvelope(conn, writeMu, Envelope{Type: EnvelopeKeyframe, Data: frame}); err != nil {
				f.drop(conn)
				return
			}
		}
	}

	// Spectators have nothing to say; the read loop exists to notice
	// the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.drop(conn)
			return
		}
	}
}

// ClientCount reports connected spectators.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// BroadcastEvents pushes one tick's drained journal events.
func (f *Feed) BroadcastEvents(events []journal.Event) {
	if len(events) == 0 {
		return
	}
	f.broadcast(Envelope{Type: EnvelopeEvents, Data: events})
}

// BroadcastKeyframe pushes a full shard snapshot, typically after the
// journal reported event loss.
func (f *Feed) BroadcastKeyframe(frame journal.Keyframe) {
	f.broadcast(Envelope{Type: EnvelopeKeyframe, Data: frame})
}

// broadcast writes the envelope to every spectator. Failed connections
// are collected during iteration and dropped afterwards.
func (f *Feed) broadcast(env Envelope) {
	f.mu.Lock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(f.conns))
	for conn, writeMu := range f.conns {
		targets[conn] = writeMu
	}
	f.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	var failed []*websocket.Conn
	for conn, writeMu := range targets {
		if err := writeEnvelope(conn, writeMu, env); err != nil {
			lognetwork.SendFailed(context.Background(), f.pub, lognetwork.SendFailedPayload{
				Addr:  conn.RemoteAddr().String(),
				Error: err.Error(),
			})
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		f.drop(conn)
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, present := f.conns[conn]
	delete(f.conns, conn)
	f.mu.Unlock()
	if present {
		conn.Close()
	}
}

// Close disconnects every spectator and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for conn := range f.conns {
		conns = append(conns, conn)
	}
	f.conns = make(map[*websocket.Conn]*sync.Mutex)
	f.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func writeEnvelope(conn *websocket.Conn, writeMu *sync.Mutex, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
