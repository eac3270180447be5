package input

import (
	"sync"

	"inputshare/internal/geometry"
)

// MockCapture emulates the OS boundary of a capture adapter. Tests feed
// it with SimulateOS, which applies the same
// provenance filtering, suppression bookkeeping, and warp-delta discard
// the real adapters do.
type MockCapture struct {
	mu          sync.Mutex
	running     bool
	suppressing bool
	hidden      bool
	handler     Handler
	rawMove     RawMoveHandler
	cursor      geometry.Point
	virtual     geometry.Point
	discard     int

	// DiscardOnSuppress is how many leading moves to drop after
	// StartSuppressing, mirroring the warp-delta discard of the real
	// adapters. Zero by default so tests see every event.
	DiscardOnSuppress int

	warps []geometry.Point
}

// NewMockCapture returns a capture whose cursor starts at start.
func NewMockCapture(start geometry.Point) *MockCapture {
	return &MockCapture{cursor: start}
}

func (c *MockCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *MockCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCapture) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *MockCapture) SetRawMoveHandler(h RawMoveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawMove = h
}

func (c *MockCapture) StartSuppressing(virtualStart geometry.Point, hideCursor bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressing = true
	c.hidden = hideCursor
	c.virtual = virtualStart
	c.discard = c.DiscardOnSuppress
	return nil
}

func (c *MockCapture) StopSuppressing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppressing = false
	c.hidden = false
	return nil
}

func (c *MockCapture) WarpCursor(p geometry.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = p
	c.warps = append(c.warps, p)
	return nil
}

// Warps returns a copy of every warp target so far.
func (c *MockCapture) Warps() []geometry.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]geometry.Point, len(c.warps))
	copy(out, c.warps)
	return out
}

func (c *MockCapture) Suppressing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suppressing
}

// CursorHidden reports the hide flag of the active suppression.
func (c *MockCapture) CursorHidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

// Cursor returns the current real cursor position.
func (c *MockCapture) Cursor() geometry.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// SimulateOS delivers an event as the OS would: events whose user-data
// matches the provenance marker are filtered, moves advance the real or
// virtual cursor, and the raw-move handler observes the result.
func (c *MockCapture) SimulateOS(ev Event, userData uint64) {
	c.mu.Lock()
	if !c.running || userData == ProvenanceMarker {
		c.mu.Unlock()
		return
	}
	handler := c.handler
	rawMove := c.rawMove

	var pos geometry.Point
	if ev.Kind == KindMouseMove {
		if c.suppressing {
			if c.discard > 0 {
				c.discard--
				c.mu.Unlock()
				return
			}
			c.virtual.X += float64(ev.DX)
			c.virtual.Y += float64(ev.DY)
			pos = c.virtual
		} else {
			c.cursor.X += float64(ev.DX)
			c.cursor.Y += float64(ev.DY)
			pos = c.cursor
		}
	}
	c.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
	if ev.Kind == KindMouseMove && rawMove != nil {
		rawMove(pos)
	}
}

// SimulateMoveTo positions the real cursor absolutely and reports the
// resulting raw move, without going through delta accumulation. Only
// meaningful while not suppressing.
func (c *MockCapture) SimulateMoveTo(p geometry.Point) {
	c.mu.Lock()
	if !c.running || c.suppressing {
		c.mu.Unlock()
		return
	}
	c.cursor = p
	rawMove := c.rawMove
	c.mu.Unlock()
	if rawMove != nil {
		rawMove(p)
	}
}

// MockInjector records injected events. When wired to a MockCapture via
// LoopTo, every injection is also played back through the capture with
// the provenance marker set, exercising loop suppression end to end.
type MockInjector struct {
	mu       sync.Mutex
	events   []Event
	warps    []geometry.Point
	buttons  map[Button]bool
	loopTo   *MockCapture
}

func NewMockInjector() *MockInjector {
	return &MockInjector{buttons: make(map[Button]bool)}
}

// LoopTo routes injected events back into cap, marker attached.
func (i *MockInjector) LoopTo(cap *MockCapture) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.loopTo = cap
}

func (i *MockInjector) Inject(ev Event) error {
	i.mu.Lock()
	if ev.Kind == KindMouseButton {
		i.buttons[ev.Button] = ev.Pressed
	}
	i.events = append(i.events, ev)
	loop := i.loopTo
	i.mu.Unlock()

	if loop != nil {
		loop.SimulateOS(ev, ProvenanceMarker)
	}
	return nil
}

func (i *MockInjector) WarpCursor(p geometry.Point) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.warps = append(i.warps, p)
	return nil
}

// Events returns a copy of everything injected so far.
func (i *MockInjector) Events() []Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Event, len(i.events))
	copy(out, i.events)
	return out
}

// Warps returns a copy of every warp target so far.
func (i *MockInjector) Warps() []geometry.Point {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]geometry.Point, len(i.warps))
	copy(out, i.warps)
	return out
}

// ButtonDown reports whether the injector considers b held.
func (i *MockInjector) ButtonDown(b Button) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.buttons[b]
}
