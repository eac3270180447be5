//go:build windows

package input

import (
	"fmt"
	"sync"
	"unsafe"

	"inputshare/internal/geometry"
)

// Windows injection adapter built on SendInput. Every synthetic event
// carries ProvenanceMarker in dwExtraInfo so the capture hooks skip it.

var procSendInput = user32.NewProc("SendInput")

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseEventfMove       = 0x0001
	mouseEventfLeftDown   = 0x0002
	mouseEventfLeftUp     = 0x0004
	mouseEventfRightDown  = 0x0008
	mouseEventfRightUp    = 0x0010
	mouseEventfMiddleDown = 0x0020
	mouseEventfMiddleUp   = 0x0040
	mouseEventfWheel      = 0x0800
	mouseEventfHWheel     = 0x1000

	keyEventfKeyUp = 0x0002
)

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	Vk          uint16
	Scan        uint16
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
	_           [8]byte // pad to the size of mouseInput
}

type winInput struct {
	Type uint32
	_    uint32 // alignment
	Mi   mouseInput
}

// WindowsInjector posts synthetic events. It tracks held buttons so
// forwarded moves become drags while a button is down, matching how
// the events would have looked had they originated locally.
type WindowsInjector struct {
	mu      sync.Mutex
	buttons map[Button]bool
}

func NewSystemInjector() (*WindowsInjector, error) {
	return &WindowsInjector{buttons: make(map[Button]bool)}, nil
}

func sendMouse(mi mouseInput) error {
	mi.DwExtraInfo = uintptr(ProvenanceMarker)
	in := winInput{Type: inputMouse, Mi: mi}
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return fmt.Errorf("input: SendInput: %w", err)
	}
	return nil
}

func sendKey(vk uint16, pressed bool) error {
	ki := keybdInput{Vk: vk, DwExtraInfo: uintptr(ProvenanceMarker)}
	if !pressed {
		ki.Flags = keyEventfKeyUp
	}
	in := struct {
		Type uint32
		_    uint32
		Ki   keybdInput
	}{Type: inputKeyboard, Ki: ki}
	ret, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if ret == 0 {
		return fmt.Errorf("input: SendInput: %w", err)
	}
	return nil
}

func (i *WindowsInjector) Inject(ev Event) error {
	switch ev.Kind {
	case KindMouseMove:
		// Relative move; drag-ness is implicit in the held button
		// state, which the hook layer of local applications resolves.
		return sendMouse(mouseInput{
			Dx:    int32(ev.DX),
			Dy:    int32(ev.DY),
			Flags: mouseEventfMove,
		})
	case KindMouseButton:
		i.mu.Lock()
		i.buttons[ev.Button] = ev.Pressed
		i.mu.Unlock()
		var flags uint32
		switch {
		case ev.Button == ButtonLeft && ev.Pressed:
			flags = mouseEventfLeftDown
		case ev.Button == ButtonLeft:
			flags = mouseEventfLeftUp
		case ev.Button == ButtonRight && ev.Pressed:
			flags = mouseEventfRightDown
		case ev.Button == ButtonRight:
			flags = mouseEventfRightUp
		case ev.Pressed:
			flags = mouseEventfMiddleDown
		default:
			flags = mouseEventfMiddleUp
		}
		return sendMouse(mouseInput{Flags: flags})
	case KindScroll:
		// Pixel-precise deltas scaled onto the wheel unit.
		if ev.ScrollDY != 0 {
			if err := sendMouse(mouseInput{
				Flags:     mouseEventfWheel,
				MouseData: uint32(int32(ev.ScrollDY * wheelDelta)),
			}); err != nil {
				return err
			}
		}
		if ev.ScrollDX != 0 {
			return sendMouse(mouseInput{
				Flags:     mouseEventfHWheel,
				MouseData: uint32(int32(ev.ScrollDX * wheelDelta)),
			})
		}
		return nil
	case KindKey:
		return sendKey(ev.KeyCode, ev.Pressed)
	case KindFlagsChanged:
		// Modifier transitions arrive as key events on Windows; the
		// bitmask itself needs no synthetic event.
		return nil
	}
	return nil
}

// ButtonDown reports whether the injector considers b held.
func (i *WindowsInjector) ButtonDown(b Button) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.buttons[b]
}

func (i *WindowsInjector) WarpCursor(p geometry.Point) error {
	if ret, _, err := procSetCursorPos.Call(uintptr(int32(p.X)), uintptr(int32(p.Y))); ret == 0 {
		return fmt.Errorf("input: SetCursorPos: %w", err)
	}
	return nil
}
