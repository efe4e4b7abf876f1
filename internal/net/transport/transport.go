// Package transport moves datagrams between UDP sockets and per-peer
// channel multiplexers. The server owns one socket shared by every
// peer: a single receive loop demultiplexes by source address and one
// send pump per peer drains that peer's outgoing queue. The client
// owns a connected socket with the same pump around a single
// multiplexer.
package transport

import (
	"errors"
	"time"

	"driftisle/server/internal/net/channel"
	"driftisle/server/internal/telemetry"
	"driftisle/server/logging"
)

// ErrClosed reports use of a listener or connection after Close.
var ErrClosed = errors.New("transport: closed")

// DefaultAcceptBacklog bounds how many newly seen peers may wait for
// the world pool between ticks. Datagrams from addresses beyond the
// backlog are dropped without registering the peer; the sender's
// retransmits and heartbeats retry the introduction.
const DefaultAcceptBacklog = 100

// Config carries the dependencies shared by both endpoint kinds.
type Config struct {
	// Table is the channel layout, identical on both ends.
	Table []channel.Settings
	// Publisher receives network events. Nil disables them.
	Publisher logging.Publisher
	// Metrics receives transport counters. Nil disables them.
	Metrics telemetry.Metrics
	// AcceptBacklog bounds the accepted-peer hand-off queue. Server
	// side only.
	AcceptBacklog int
}

func (c Config) normalized() Config {
	if c.AcceptBacklog <= 0 {
		c.AcceptBacklog = DefaultAcceptBacklog
	}
	if c.Publisher == nil {
		c.Publisher = logging.NopPublisher()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.WrapMetrics(nil)
	}
	return c
}

// wakeupInterval picks the shortest reliable wakeup in the table so
// one pump ticker serves every channel's retransmit cadence.
func wakeupInterval(table []channel.Settings) time.Duration {
	interval := channel.DefaultReliable().WakeupInterval
	for _, s := range table {
		if s.Mode != channel.ModeReliable {
			continue
		}
		if w := s.Reliable.WakeupInterval; w > 0 && w < interval {
			interval = w
		}
	}
	return interval
}
