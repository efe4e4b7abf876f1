package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
	lognet "driftisle/server/logging/network"
)

// Conn is the client end of a connection: one socket connected to the
// server address, one multiplexer, and the same send pump the server
// runs per peer. The connected socket discards datagrams from any
// other source.
type Conn struct {
	conn    *net.UDPConn
	mux     *channel.Mux
	pub     logging.Publisher
	metrics telemetry.Metrics
	wakeup  time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Dial binds an ephemeral port filtered to the server address and
// starts the receive loop and send pump.
func Dial(addr string, cfg Config) (*Conn, error) {
	cfg = cfg.normalized()
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", addr, err)
	}
	c := &Conn{
		conn:    conn,
		mux:     channel.NewMux(cfg.Table, time.Now()),
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		wakeup:  wakeupInterval(cfg.Table),
	}
	go c.readLoop()
	go c.pump()
	return c, nil
}

// Mux is the connection's channel multiplexer.
func (c *Conn) Mux() *channel.Mux {
	return c.mux
}

// LocalAddr is the bound local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Conn) readLoop() {
	buf := make([]byte, channel.MaxDatagram)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				c.mux.Close()
				return
			}
			continue
		}
		c.metrics.Add(telemetry.CounterDatagramsReceived, 1)
		if err := c.mux.Dispatch(buf[:n], time.Now()); err != nil {
			return
		}
	}
}

func (c *Conn) pump() {
	ticker := time.NewTicker(c.wakeup)
	defer ticker.Stop()
	for {
		select {
		case pkt, ok := <-c.mux.Outgoing():
			if !ok {
				return
			}
			if _, err := c.conn.Write(pkt.Bytes()); err != nil {
				c.metrics.Add(telemetry.CounterSendErrors, 1)
				lognet.SendFailed(context.Background(), c.pub, lognet.SendFailedPayload{Addr: c.conn.RemoteAddr().String(), Error: err.Error()})
			} else {
				c.metrics.Add(telemetry.CounterDatagramsSent, 1)
			}
			pkt.Release()
		case <-ticker.C:
			c.mux.FlushRetransmits(time.Now())
		}
	}
}

// Close tears down the multiplexer and the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mux.Close()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
