// Package ipc provides the control socket between the banishd daemon
// and its CLI.
//
// The protocol is a fixed binary frame header followed by a JSON
// payload over a unix socket. Requests are strictly request/response;
// there is no streaming, because the daemon's only mutable state is a
// single visibility bit.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x42495043 // "BIPC"

	// MaxPayload bounds a frame payload; control replies are small.
	MaxPayload = 64 * 1024
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Requests.
	MsgPing   MessageType = 0x0001
	MsgStatus MessageType = 0x0002
	MsgPause  MessageType = 0x0003
	MsgResume MessageType = 0x0004
	MsgShow   MessageType = 0x0005

	// Responses.
	MsgPong       MessageType = 0x0101
	MsgStatusResp MessageType = 0x0102
	MsgOK         MessageType = 0x0103
	MsgError      MessageType = 0x01ff
)

// String returns the wire name of the message type.
func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgStatus:
		return "status"
	case MsgPause:
		return "pause"
	case MsgResume:
		return "resume"
	case MsgShow:
		return "show"
	case MsgPong:
		return "pong"
	case MsgStatusResp:
		return "status-resp"
	case MsgOK:
		return "ok"
	case MsgError:
		return "error"
	}
	return fmt.Sprintf("ipc.MessageType(0x%04x)", uint16(t))
}

// header is the fixed-size frame header.
type header struct {
	Magic   uint32
	Version uint8
	_       uint8
	Type    MessageType
	Length  uint32
}

// Message is one framed protocol message.
type Message struct {
	Type    MessageType
	Payload json.RawMessage
}

// ErrorPayload carries an error response.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds a message with a JSON-encoded payload.
func NewMessage(t MessageType, payload any) (*Message, error) {
	m := &Message{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		m.Payload = data
	}
	return m, nil
}

// NewError builds an error response message.
func NewError(err error) *Message {
	m, _ := NewMessage(MsgError, ErrorPayload{Message: err.Error()})
	return m
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.Type)
	}
	return json.Unmarshal(m.Payload, v)
}

// WriteMessage writes one framed message.
func WriteMessage(w io.Writer, m *Message) error {
	if len(m.Payload) > MaxPayload {
		return fmt.Errorf("payload too large: %d bytes", len(m.Payload))
	}
	h := header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Type:    m.Type,
		Length:  uint32(len(m.Payload)),
	}
	if err := binary.Write(w, binary.BigEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one framed message.
func ReadMessage(r io.Reader) (*Message, error) {
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("bad magic 0x%08x", h.Magic)
	}
	if h.Version != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", h.Version)
	}
	if h.Length > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
	}

	m := &Message{Type: h.Type}
	if h.Length > 0 {
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return m, nil
}
