package proto

import "driftisle/server/internal/net/channel"

// Channel indices. Every message kind is statically bound to exactly one
// logical channel; the binding is identical on both ends of a connection.
const (
	ChannelHeartbeat channel.ID = iota
	ChannelChat
	ChannelMove
	ChannelEntEvent
	ChannelWorldJoin

	ChannelCount
)

// ChannelTable builds the per-channel configuration shared by every peer.
// The table is constructed once at process start and passed by reference
// into each multiplexer; there is no ambient registry.
func ChannelTable() []channel.Settings {
	reliable := channel.DefaultReliable()
	return []channel.Settings{
		ChannelHeartbeat: {
			Name:                  "heartbeat",
			Mode:                  channel.ModeUnreliable,
			MessageBufferCapacity: 8,
			PacketBufferCapacity:  8,
		},
		ChannelChat: {
			Name:                  "chat",
			Mode:                  channel.ModeReliable,
			Reliable:              reliable,
			MessageBufferCapacity: 8,
			PacketBufferCapacity:  8,
		},
		ChannelMove: {
			Name:                  "move",
			Mode:                  channel.ModeUnreliable,
			MessageBufferCapacity: 8,
			PacketBufferCapacity:  8,
		},
		ChannelEntEvent: {
			Name:                  "entevent",
			Mode:                  channel.ModeReliable,
			Reliable:              reliable,
			MessageBufferCapacity: 8,
			PacketBufferCapacity:  8,
		},
		ChannelWorldJoin: {
			Name:                  "worldjoin",
			Mode:                  channel.ModeReliable,
			Reliable:              reliable,
			MessageBufferCapacity: 8,
			PacketBufferCapacity:  8,
		},
	}
}
