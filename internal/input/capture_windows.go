//go:build windows

package input

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"inputshare/internal/geometry"
)

// Windows capture adapter: low-level mouse and keyboard hooks for
// observation and suppression, plus Raw Input registration for raw
// relative mouse deltas. Events injected with the provenance marker in
// dwExtraInfo are passed through untouched.

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW      = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx    = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx         = user32.NewProc("CallNextHookEx")
	procGetMessageW            = user32.NewProc("GetMessageW")
	procTranslateMessage       = user32.NewProc("TranslateMessage")
	procDispatchMessageW       = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW     = user32.NewProc("PostThreadMessageW")
	procRegisterClassExW       = user32.NewProc("RegisterClassExW")
	procCreateWindowExW        = user32.NewProc("CreateWindowExW")
	procDestroyWindow          = user32.NewProc("DestroyWindow")
	procDefWindowProcW         = user32.NewProc("DefWindowProcW")
	procRegisterRawInputDevs   = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData        = user32.NewProc("GetRawInputData")
	procSetCursorPos           = user32.NewProc("SetCursorPos")
	procGetCursorPos           = user32.NewProc("GetCursorPos")
	procClipCursor             = user32.NewProc("ClipCursor")
	procShowCursor             = user32.NewProc("ShowCursor")
	procGetModuleHandleW       = kernel32.NewProc("GetModuleHandleW")
	procRegisterHotKey         = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey       = user32.NewProc("UnregisterHotKey")
	procGetSystemMetrics       = user32.NewProc("GetSystemMetrics")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmInput       = 0x00FF
	wmQuit        = 0x0012
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmMouseHWheel = 0x020E
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105

	ridevInputSink = 0x00000100
	ridInput       = 0x10000003
	rimTypeMouse   = 0

	hwndMessage = ^uintptr(2) // HWND_MESSAGE

	wheelDelta = 120.0

	// warpDiscardCount moves are dropped right after suppression
	// begins; the pin warp shows up as one spurious delta.
	warpDiscardCount = 3
)

type point32 struct {
	X int32
	Y int32
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point32
}

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     windows.Handle
	HIcon         windows.Handle
	HCursor       windows.Handle
	HbrBackground windows.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       windows.Handle
}

type msLLHookStruct struct {
	Pt          point32
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type kbdLLHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type rawInputDevice struct {
	UsagePage  uint16
	Usage      uint16
	Flags      uint32
	HwndTarget windows.Handle
}

type rawInputHeader struct {
	Type   uint32
	Size   uint32
	Device windows.Handle
	WParam uintptr
}

type rawMouse struct {
	Flags            uint16
	_                uint16
	ButtonFlags      uint16
	ButtonData       uint16
	RawButtons       uint32
	LastX            int32
	LastY            int32
	ExtraInformation uint32
}

type rawInput struct {
	Header rawInputHeader
	Mouse  rawMouse
}

// WindowsCapture is the system-wide hook adapter for Windows.
type WindowsCapture struct {
	mu       sync.Mutex
	handler  Handler
	rawMove  RawMoveHandler
	log      *slog.Logger
	running  bool
	threadID uint32
	hwnd     windows.Handle
	mouseHook windows.Handle
	keyHook   windows.Handle

	suppressing bool
	hidden      bool
	virtual     geometry.Point
	discard     int
	modifiers   uint64
	pin         point32
	killSwitch  func()

	started chan error
}

// NewSystemCapture installs nothing yet; Start spins up the hook
// thread.
func NewSystemCapture(log *slog.Logger) (*WindowsCapture, error) {
	if log == nil {
		log = slog.Default()
	}
	return &WindowsCapture{log: log.With("component", "capture")}, nil
}

// CheckPermission probes whether hooks can be installed. Windows does
// not gate low-level hooks behind a capability grant.
func CheckPermission() error { return nil }

func (c *WindowsCapture) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *WindowsCapture) SetRawMoveHandler(h RawMoveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawMove = h
}

// Start launches the dedicated hook thread: a message-only window for
// WM_INPUT plus the two low-level hooks. Hooks need a thread that pumps
// messages, so everything lives on one locked OS thread.
func (c *WindowsCapture) Start() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.started = make(chan error, 1)
	c.mu.Unlock()

	go c.hookThread()
	if err := <-c.started; err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *WindowsCapture) hookThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.threadID = windows.GetCurrentThreadId()

	if err := c.createMessageWindow(); err != nil {
		c.started <- err
		return
	}
	if err := c.registerRawInput(); err != nil {
		c.started <- err
		return
	}
	if ret, _, err := procRegisterHotKey.Call(uintptr(c.hwnd), killSwitchID, modControl|modAlt, vkEscape); ret == 0 {
		c.log.Warn("emergency hotkey unavailable", "err", err)
	}

	mouseHook, _, err := procSetWindowsHookExW.Call(
		whMouseLL, windows.NewCallback(c.mouseProc), 0, 0)
	if mouseHook == 0 {
		c.started <- fmt.Errorf("%w: mouse hook: %v", ErrPermissionDenied, err)
		return
	}
	keyHook, _, err := procSetWindowsHookExW.Call(
		whKeyboardLL, windows.NewCallback(c.keyProc), 0, 0)
	if keyHook == 0 {
		procUnhookWindowsHookEx.Call(mouseHook)
		c.started <- fmt.Errorf("%w: keyboard hook: %v", ErrPermissionDenied, err)
		return
	}
	c.mouseHook = windows.Handle(mouseHook)
	c.keyHook = windows.Handle(keyHook)
	c.started <- nil

	var m msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}

	c.mu.Lock()
	stillRunning := c.running
	c.mu.Unlock()
	if stillRunning {
		// The OS tore the loop down underneath us.
		c.log.Warn("hook loop ended", "err", ErrAdapterDisabled)
	}

	procUnhookWindowsHookEx.Call(uintptr(c.mouseHook))
	procUnhookWindowsHookEx.Call(uintptr(c.keyHook))
	if c.hwnd != 0 {
		procUnregisterHotKey.Call(uintptr(c.hwnd), killSwitchID)
		procDestroyWindow.Call(uintptr(c.hwnd))
	}
}

func (c *WindowsCapture) createMessageWindow() error {
	className, _ := windows.UTF16PtrFromString("InputShareCapture")
	hInstance, _, _ := procGetModuleHandleW.Call(0)
	wc := wndClassEx{
		CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
		LpfnWndProc:   windows.NewCallback(c.windowProc),
		HInstance:     windows.Handle(hInstance),
		LpszClassName: className,
	}
	if ret, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); ret == 0 {
		return fmt.Errorf("input: RegisterClassEx: %w", err)
	}
	hwnd, _, err := procCreateWindowExW.Call(
		0, uintptr(unsafe.Pointer(className)), 0, 0,
		0, 0, 0, 0, hwndMessage, 0, hInstance, 0)
	if hwnd == 0 {
		return fmt.Errorf("input: CreateWindowEx: %w", err)
	}
	c.hwnd = windows.Handle(hwnd)
	return nil
}

func (c *WindowsCapture) registerRawInput() error {
	rid := rawInputDevice{
		UsagePage:  0x01, // generic desktop
		Usage:      0x02, // mouse
		Flags:      ridevInputSink,
		HwndTarget: c.hwnd,
	}
	ret, _, err := procRegisterRawInputDevs.Call(
		uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
	if ret == 0 {
		return fmt.Errorf("input: RegisterRawInputDevices: %w", err)
	}
	return nil
}

const (
	wmHotkey      = 0x0312
	modControl    = 0x0002
	modAlt        = 0x0001
	vkEscape      = 0x1B
	killSwitchID  = 1
)

// SetKillSwitch registers Ctrl+Alt+Esc as the emergency release.
func (c *WindowsCapture) SetKillSwitch(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = fn
}

func (c *WindowsCapture) windowProc(hwnd windows.Handle, m uint32, wparam, lparam uintptr) uintptr {
	switch m {
	case wmInput:
		c.handleRawMouse(lparam)
		return 0
	case wmHotkey:
		c.mu.Lock()
		fn := c.killSwitch
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return 0
	}
	ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(m), wparam, lparam)
	return ret
}

// handleRawMouse extracts raw relative deltas. These are the device's
// own counts, not cursor-derived, so they keep arriving while the
// cursor is pinned.
func (c *WindowsCapture) handleRawMouse(lparam uintptr) {
	var ri rawInput
	size := uint32(unsafe.Sizeof(ri))
	ret, _, _ := procGetRawInputData.Call(
		lparam, ridInput, uintptr(unsafe.Pointer(&ri)),
		uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(rawInputHeader{}))
	if ret == ^uintptr(0) || ri.Header.Type != rimTypeMouse {
		return
	}
	dx, dy := int(ri.Mouse.LastX), int(ri.Mouse.LastY)
	if dx == 0 && dy == 0 {
		return
	}
	// ExtraInformation is 32 bits wide and holds the low half of the
	// injected dwExtraInfo.
	if ri.Mouse.ExtraInformation == uint32(ProvenanceMarker) {
		return
	}

	c.mu.Lock()
	if c.suppressing && c.discard > 0 {
		c.discard--
		c.mu.Unlock()
		return
	}
	var pos geometry.Point
	if c.suppressing {
		c.virtual.X += float64(dx)
		c.virtual.Y += float64(dy)
		pos = c.virtual
	} else {
		var pt point32
		procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
		pos = geometry.Point{X: float64(pt.X), Y: float64(pt.Y)}
	}
	handler := c.handler
	rawMove := c.rawMove
	flags := c.modifiers
	c.mu.Unlock()

	if handler != nil {
		handler(Event{Kind: KindMouseMove, DX: dx, DY: dy, Flags: flags})
	}
	if rawMove != nil {
		rawMove(pos)
	}
}

func (c *WindowsCapture) mouseProc(code, wparam, lparam uintptr) uintptr {
	if int32(code) < 0 {
		ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
		return ret
	}
	info := (*msLLHookStruct)(unsafe.Pointer(lparam))
	if uint64(info.DwExtraInfo) == ProvenanceMarker {
		ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
		return ret
	}

	c.mu.Lock()
	suppressing := c.suppressing
	handler := c.handler
	flags := c.modifiers
	c.mu.Unlock()

	switch wparam {
	case wmMouseMove:
		// Deltas come from Raw Input; the hook's only job for moves is
		// keeping suppressed motion away from local applications.
	case wmLButtonDown, wmLButtonUp:
		c.emitButton(handler, ButtonLeft, wparam == wmLButtonDown, flags)
	case wmRButtonDown, wmRButtonUp:
		c.emitButton(handler, ButtonRight, wparam == wmRButtonDown, flags)
	case wmMButtonDown, wmMButtonUp:
		c.emitButton(handler, ButtonOther, wparam == wmMButtonDown, flags)
	case wmMouseWheel, wmMouseHWheel:
		delta := float64(int16(info.MouseData>>16)) / wheelDelta
		ev := Event{Kind: KindScroll, Flags: flags}
		if wparam == wmMouseWheel {
			ev.ScrollDY = delta
		} else {
			ev.ScrollDX = delta
		}
		if handler != nil {
			handler(ev)
		}
	}

	if suppressing {
		// Swallow: not delivered to local applications.
		return 1
	}
	ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
	return ret
}

func (c *WindowsCapture) emitButton(handler Handler, b Button, pressed bool, flags uint64) {
	if handler != nil {
		handler(Event{Kind: KindMouseButton, Button: b, Pressed: pressed, Flags: flags})
	}
}

// Virtual-key codes contributing to the modifier bitmask.
const (
	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
	vkRWin    = 0x5C
)

const (
	modMaskShift   = 1 << 17
	modMaskControl = 1 << 18
	modMaskAlt     = 1 << 19
	modMaskCommand = 1 << 20
)

func modifierBit(vk uint32) uint64 {
	switch vk {
	case vkShift, 0xA0, 0xA1:
		return modMaskShift
	case vkControl, 0xA2, 0xA3:
		return modMaskControl
	case vkMenu, 0xA4, 0xA5:
		return modMaskAlt
	case vkLWin, vkRWin:
		return modMaskCommand
	}
	return 0
}

func (c *WindowsCapture) keyProc(code, wparam, lparam uintptr) uintptr {
	if int32(code) < 0 {
		ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
		return ret
	}
	info := (*kbdLLHookStruct)(unsafe.Pointer(lparam))
	if uint64(info.DwExtraInfo) == ProvenanceMarker {
		ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
		return ret
	}

	pressed := wparam == wmKeyDown || wparam == wmSysKeyDown

	c.mu.Lock()
	if bit := modifierBit(info.VkCode); bit != 0 {
		if pressed {
			c.modifiers |= bit
		} else {
			c.modifiers &^= bit
		}
	}
	suppressing := c.suppressing
	handler := c.handler
	flags := c.modifiers
	c.mu.Unlock()

	if handler != nil {
		if bit := modifierBit(info.VkCode); bit != 0 {
			handler(Event{Kind: KindFlagsChanged, Flags: flags})
		} else {
			handler(Event{Kind: KindKey, KeyCode: uint16(info.VkCode), Pressed: pressed, Flags: flags})
		}
	}

	if suppressing {
		return 1
	}
	ret, _, _ := procCallNextHookEx.Call(0, code, wparam, lparam)
	return ret
}

const (
	smCxScreen = 0
	smCyScreen = 1
)

// StartSuppressing pins the real cursor at the center of the primary
// screen with a one-pixel ClipCursor rect, optionally hides it, and
// seeds the virtual cursor.
func (c *WindowsCapture) StartSuppressing(virtualStart geometry.Point, hideCursor bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suppressing {
		return nil
	}

	cx, _, _ := procGetSystemMetrics.Call(smCxScreen)
	cy, _, _ := procGetSystemMetrics.Call(smCyScreen)
	pt := point32{X: int32(cx) / 2, Y: int32(cy) / 2}
	c.pin = pt

	// The warp to the pin point generates one spurious raw delta.
	c.discard = warpDiscardCount
	c.virtual = virtualStart
	c.suppressing = true
	c.hidden = hideCursor

	procSetCursorPos.Call(uintptr(pt.X), uintptr(pt.Y))
	rect := struct{ Left, Top, Right, Bottom int32 }{pt.X, pt.Y, pt.X + 1, pt.Y + 1}
	if ret, _, err := procClipCursor.Call(uintptr(unsafe.Pointer(&rect))); ret == 0 {
		c.suppressing = false
		c.hidden = false
		return fmt.Errorf("input: ClipCursor: %w", err)
	}
	if hideCursor {
		procShowCursor.Call(0)
	}
	return nil
}

// StopSuppressing releases the clip and unhides the cursor.
func (c *WindowsCapture) StopSuppressing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.suppressing {
		return nil
	}
	c.suppressing = false
	procClipCursor.Call(0)
	if c.hidden {
		procShowCursor.Call(1)
		c.hidden = false
	}
	return nil
}

// WarpCursor moves the real cursor.
func (c *WindowsCapture) WarpCursor(p geometry.Point) error {
	if ret, _, err := procSetCursorPos.Call(uintptr(int32(p.X)), uintptr(int32(p.Y))); ret == 0 {
		return fmt.Errorf("input: SetCursorPos: %w", err)
	}
	return nil
}

func (c *WindowsCapture) Suppressing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressing
}

// Stop tears the hooks down and joins the hook thread.
func (c *WindowsCapture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	threadID := c.threadID
	c.mu.Unlock()

	c.StopSuppressing()
	if threadID != 0 {
		procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
	}
	return nil
}
