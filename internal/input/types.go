// Package input provides cross-platform input capture and injection.
package input

import (
	"errors"

	"inputshare/internal/geometry"
)

// ProvenanceMarker is the sentinel written into every injected event's
// user-data field. The capture adapters skip events carrying it so the
// local injector's output is never re-captured.
const ProvenanceMarker uint64 = 0x1453_4841_5245_4431

// Kind discriminates the event variants.
type Kind string

const (
	KindMouseMove    Kind = "mouse_move"
	KindMouseButton  Kind = "mouse_btn"
	KindScroll       Kind = "scroll"
	KindKey          Kind = "key"
	KindFlagsChanged Kind = "flags"
)

// Button identifies a mouse button. 1=left, 2=right, 3=other.
type Button int

const (
	ButtonLeft  Button = 1
	ButtonRight Button = 2
	ButtonOther Button = 3
)

// Event is a decoded input event. Kind selects which fields are
// meaningful; Flags is carried on every kind.
type Event struct {
	Kind Kind `json:"kind"`

	// Flags is the OS-defined modifier bitmask at capture time.
	Flags uint64 `json:"flags,omitempty"`

	// Mouse move: raw relative pixel deltas from the device, plus an
	// informational normalized position in [0,1]^2.
	DX int     `json:"dx,omitempty"`
	DY int     `json:"dy,omitempty"`
	NX float64 `json:"nx,omitempty"`
	NY float64 `json:"ny,omitempty"`

	// Mouse button / key state.
	Button  Button `json:"btn,omitempty"`
	Pressed bool   `json:"pressed,omitempty"`

	// Scroll: continuous pixel-unit deltas.
	ScrollDX float64 `json:"sdx,omitempty"`
	ScrollDY float64 `json:"sdy,omitempty"`

	// Key: virtual keycode.
	KeyCode uint16 `json:"key,omitempty"`
}

// ErrPermissionDenied reports a missing HID capability grant. Fatal for
// capture and injection, not for the transport.
var ErrPermissionDenied = errors.New("input: HID access not granted")

// ErrAdapterDisabled reports that the OS tore down the hook and a
// re-enable failed.
var ErrAdapterDisabled = errors.New("input: hook disabled by OS")

// Handler receives decoded events from a capture adapter. Called
// synchronously on the adapter's hook thread; it must hand off and
// return promptly.
type Handler func(Event)

// RawMoveHandler receives the current cursor position (or the virtual
// cursor position while suppressing) on every mouse move.
type RawMoveHandler func(geometry.Point)

// Capture observes system-wide input. Events injected with the
// provenance marker never reach the handler.
type Capture interface {
	Start() error
	Stop() error
	SetHandler(Handler)
	SetRawMoveHandler(RawMoveHandler)

	// StartSuppressing disassociates the physical mouse from the
	// cursor, pins the real cursor, optionally hides it, and tracks a
	// virtual cursor seeded at virtualStart. While suppressed, events
	// are dropped from local window-server delivery. The first few
	// moves after entry are discarded: the warp to the pin point shows
	// up as one spurious delta equal to the warp distance.
	StartSuppressing(virtualStart geometry.Point, hideCursor bool) error

	// StopSuppressing reattaches the physical cursor and unhides it.
	// Idempotent.
	StopSuppressing() error

	// WarpCursor moves the real cursor. Used for the handoff entry and
	// return points.
	WarpCursor(p geometry.Point) error

	// Suppressing reports whether suppression is engaged.
	Suppressing() bool
}

// KillSwitch is implemented by capture adapters that can register an
// emergency-release hotkey. The callback fires from the hook thread.
type KillSwitch interface {
	SetKillSwitch(func())
}

// Injector posts synthetic input events against the OS HID layer.
// Every injected event carries ProvenanceMarker. The injector tracks
// held buttons so moves become drags while a button is down.
type Injector interface {
	Inject(Event) error
	WarpCursor(p geometry.Point) error
}
