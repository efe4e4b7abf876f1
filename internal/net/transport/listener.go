package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	lognet "driftisle/server/logging/network"
)

// Peer is the server-side handle for one remote address: its
// multiplexer plus the identity the receive loop keys on.
type Peer struct {
	addr netip.AddrPort
	mux  *channel.Mux
}

// Addr is the remote endpoint. It is immutable for the peer's life.
func (p *Peer) Addr() netip.AddrPort {
	return p.addr
}

// Mux is the peer's channel multiplexer.
func (p *Peer) Mux() *channel.Mux {
	return p.mux
}

// Listener serves many peers over one UDP socket.
type Listener struct {
	conn    *net.UDPConn
	table   []channel.Settings
	pub     logging.Publisher
	metrics telemetry.Metrics
	wakeup  time.Duration

	mu     sync.Mutex
	peers  map[netip.AddrPort]*Peer
	closed bool

	accepted chan *Peer
}

// Listen binds the UDP socket. Call Run to start serving.
func Listen(addr string, cfg Config) (*Listener, error) {
	cfg = cfg.normalized()
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	return &Listener{
		conn:     conn,
		table:    cfg.Table,
		pub:      cfg.Publisher,
		metrics:  cfg.Metrics,
		wakeup:   wakeupInterval(cfg.Table),
		peers:    make(map[netip.AddrPort]*Peer),
		accepted: make(chan *Peer, cfg.AcceptBacklog),
	}, nil
}

// LocalAddr is the bound socket address.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Accepted delivers each newly registered peer exactly once. The world
// pool drains it every tick.
func (l *Listener) Accepted() <-chan *Peer {
	return l.accepted
}

// PeerCount reports how many peers are currently registered.
func (l *Listener) PeerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}

// Run reads datagrams until Close or until stop closes. One shared
// read loop serves every peer; send pumps run one per peer.
func (l *Listener) Run(stop <-chan struct{}) {
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-stop:
			l.Close()
		case <-finished:
		}
	}()

	buf := make([]byte, channel.MaxDatagram)
	for {
		n, addr, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.isClosed() {
				return
			}
			continue
		}
		l.metrics.Add(telemetry.CounterDatagramsReceived, 1)
		l.route(addr, buf[:n])
	}
}

// route hands one datagram to its peer's multiplexer, registering the
// peer first when the address is new.
func (l *Listener) route(addr netip.AddrPort, datagram []byte) {
	peer, known := l.lookup(addr)
	if !known {
		peer = l.admit(addr)
		if peer == nil {
			return
		}
	}
	if err := peer.mux.Dispatch(datagram, time.Now()); err != nil {
		// The multiplexer is torn down; stop routing to this peer.
		l.forget(addr)
	}
}

func (l *Listener) lookup(addr netip.AddrPort) (*Peer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	peer, ok := l.peers[addr]
	return peer, ok
}

// admit creates a peer for a new address. The hand-off enqueue happens
// before registration: a peer nobody will ever drain must not occupy
// the peer table or a pump goroutine.
func (l *Listener) admit(addr netip.AddrPort) *Peer {
	peer := &Peer{addr: addr, mux: channel.NewMux(l.table, time.Now())}
	select {
	case l.accepted <- peer:
	default:
		peer.mux.Close()
		l.metrics.Add(telemetry.CounterPeersRejected, 1)
		lognet.AcceptQueueFull(context.Background(), l.pub, lognet.PeerPayload{Addr: addr.String()})
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		peer.mux.Close()
		return nil
	}
	l.peers[addr] = peer
	l.mu.Unlock()

	go l.pump(peer)
	lognet.PeerAccepted(context.Background(), l.pub, lognet.PeerPayload{Addr: addr.String()})
	return peer
}

func (l *Listener) forget(addr netip.AddrPort) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, addr)
}

// Remove tears a peer down: its pump exits when the multiplexer's
// outgoing queue closes, and the receive loop stops routing to it.
func (l *Listener) Remove(peer *Peer) {
	if peer == nil {
		return
	}
	peer.mux.Close()
	l.forget(peer.addr)
}

// pump delivers one peer's outgoing packets and sweeps retransmits on
// the wakeup interval. A send error is logged and the session lives
// on; the heartbeat timeout is the sole removal signal.
func (l *Listener) pump(peer *Peer) {
	ticker := time.NewTicker(l.wakeup)
	defer ticker.Stop()
	for {
		select {
		case pkt, ok := <-peer.mux.Outgoing():
			if !ok {
				return
			}
			if _, err := l.conn.WriteToUDPAddrPort(pkt.Bytes(), peer.addr); err != nil {
				l.metrics.Add(telemetry.CounterSendErrors, 1)
				lognet.SendFailed(context.Background(), l.pub, lognet.SendFailedPayload{Addr: peer.addr.String(), Error: err.Error()})
			} else {
				l.metrics.Add(telemetry.CounterDatagramsSent, 1)
			}
			pkt.Release()
		case <-ticker.C:
			peer.mux.FlushRetransmits(time.Now())
		}
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close tears down the socket and every peer.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	peers := make([]*Peer, 0, len(l.peers))
	for _, peer := range l.peers {
		peers = append(peers, peer)
	}
	l.peers = make(map[netip.AddrPort]*Peer)
	l.mu.Unlock()

	for _, peer := range peers {
		peer.mux.Close()
	}
	return l.conn.Close()
}
