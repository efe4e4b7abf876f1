package proto

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// The codec is deliberately one function pair per message kind. The
// channel index already identifies the kind on the wire, so payloads
// carry no extra type tag and a decoder never dispatches on runtime type
// information.

// EncodeHeartbeat renders a heartbeat payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

// DecodeHeartbeat parses a heartbeat payload.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	var msg Heartbeat
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Heartbeat{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return msg, nil
}

// EncodeChat renders a chat payload.
func EncodeChat(msg Chat) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

// DecodeChat parses a chat payload.
func DecodeChat(data []byte) (Chat, error) {
	var msg Chat
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Chat{}, fmt.Errorf("decode chat: %w", err)
	}
	return msg, nil
}

// EncodeMove renders a move payload.
func EncodeMove(msg Move) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

// DecodeMove parses a move payload.
func DecodeMove(data []byte) (Move, error) {
	var msg Move
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Move{}, fmt.Errorf("decode move: %w", err)
	}
	return msg, nil
}

// EncodeEntEvent renders an entity lifecycle payload.
func EncodeEntEvent(msg EntEvent) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

// DecodeEntEvent parses an entity lifecycle payload.
func DecodeEntEvent(data []byte) (EntEvent, error) {
	var msg EntEvent
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return EntEvent{}, fmt.Errorf("decode entevent: %w", err)
	}
	if msg.Kind != EntSpawn && msg.Kind != EntDespawn {
		return EntEvent{}, fmt.Errorf("decode entevent: unknown kind %d", msg.Kind)
	}
	return msg, nil
}

// EncodeWorldJoin renders a world snapshot payload.
func EncodeWorldJoin(msg WorldJoin) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

// DecodeWorldJoin parses a world snapshot payload.
func DecodeWorldJoin(data []byte) (WorldJoin, error) {
	var msg WorldJoin
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return WorldJoin{}, fmt.Errorf("decode worldjoin: %w", err)
	}
	return msg, nil
}
