// Package protocol defines the wire messages exchanged between peers.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the protocol version both peers must agree on.
const Version = 1

// MessageType defines the type of a framed message
type MessageType string

const (
	// TypeHello is sent by each peer once after connecting
	TypeHello MessageType = "hello"

	// TypeInputEvent carries one captured input event
	TypeInputEvent MessageType = "input"

	// TypeActivate asks the peer to take ownership of input
	TypeActivate MessageType = "activate"

	// TypeActivated confirms the peer took ownership
	TypeActivated MessageType = "activated"

	// TypeDeactivate hands ownership back
	TypeDeactivate MessageType = "deactivate"

	// TypeDeactivated confirms the hand-back
	TypeDeactivated MessageType = "deactivated"

	// TypePairRequest / TypePairAccept drive first-time pairing
	TypePairRequest MessageType = "pair_req"
	TypePairAccept  MessageType = "pair_accept"

	// TypePhysics is reserved for the peer-shared overlay configuration.
	// Decoded and dropped; it never affects ownership state.
	TypePhysics MessageType = "physics"
)

var knownTypes = map[MessageType]bool{
	TypeHello:       true,
	TypeInputEvent:  true,
	TypeActivate:    true,
	TypeActivated:   true,
	TypeDeactivate:  true,
	TypeDeactivated: true,
	TypePairRequest: true,
	TypePairAccept:  true,
	TypePhysics:     true,
}

// Decode errors. Frames that fail to decode are logged and dropped
// without disconnecting.
var (
	ErrVersionMismatch = errors.New("protocol: version mismatch")
	ErrUnknownType     = errors.New("protocol: unknown message type")
)

// Envelope is the generic container for all framed messages. The
// payload stays opaque until the receiver dispatches on Type.
type Envelope struct {
	Version int             `json:"v"`
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	MonoNs  uint64          `json:"ts"`
	Source  string          `json:"src"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with the given payload serialized in.
// A nil payload produces an empty-payload envelope.
func NewEnvelope(t MessageType, seq uint64, monoNs uint64, source string, payload any) (*Envelope, error) {
	e := &Envelope{
		Version: Version,
		Type:    t,
		Seq:     seq,
		MonoNs:  monoNs,
		Source:  source,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", t, err)
		}
		e.Payload = raw
	}
	return e, nil
}

// Encode serializes the envelope for framing.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses one frame. The payload is not interpreted; use
// DecodePayload once the type is known.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, e.Version, Version)
	}
	if !knownTypes[e.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return &e, nil
}

// DecodePayload unmarshals the opaque payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// ActivatePayload conveys the vertical crossing coordinate as a
// fraction of the sender's virtual-screen height. X is always 0.
type ActivatePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DeactivatePayload conveys the return crossing coordinate.
type DeactivatePayload struct {
	Y float64 `json:"y"`
}

// HelloPayload identifies a peer after connecting.
type HelloPayload struct {
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
}
