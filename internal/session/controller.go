// Package session binds capture, coalescing, transport, and injection
// into one symmetric peer.
package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"inputshare/internal/coalesce"
	"inputshare/internal/edge"
	"inputshare/internal/geometry"
	"inputshare/internal/input"
	"inputshare/internal/protocol"
	"inputshare/internal/sched"
	"inputshare/internal/state"
	"inputshare/internal/transport"
)

// Config tunes one controller.
type Config struct {
	DeviceID string
	Name     string

	// Zone is the outbound trigger zone (default right edge).
	// ReturnZone is armed while this peer is controlled (default left).
	Zone       edge.Config
	ReturnZone edge.Config

	ActivationTimeout time.Duration
	CoalesceInterval  time.Duration
}

// DefaultConfig returns the stock right-to-left pairing.
func DefaultConfig(deviceID, name string) Config {
	return Config{
		DeviceID:          deviceID,
		Name:              name,
		Zone:              edge.DefaultConfig(edge.ZoneRight),
		ReturnZone:        edge.DefaultConfig(edge.ZoneLeft),
		ActivationTimeout: state.DefaultActivationTimeout,
		CoalesceInterval:  coalesce.DefaultInterval,
	}
}

// Controller is one peer of a session. Each host runs both roles over
// the same connection: it becomes the sender when its local edge
// triggers and the receiver when the peer's does. All mutable state is
// confined to the session queue.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	queue  *sched.Queue
	layout geometry.Layout

	capture  input.Capture
	injector input.Injector

	machine   *state.Machine
	coalescer *coalesce.Coalescer
	detector  *edge.Detector
	returnDet *edge.Detector
	conn      *transport.FramedConn

	epoch time.Time
	seq   uint64

	// Sender-side handoff bookkeeping.
	crossingPos     geometry.Point
	crossingDisplay geometry.Rect
	returnWarp      *geometry.Point

	// Receiver-side bookkeeping while controlled.
	controlled      bool
	receiverCursor  geometry.Point
	receiverButtons map[input.Button]bool

	lastSeq   map[string]uint64
	doneCh    chan struct{}
	observers []Observer
	status    Status
	statusVal atomic.Value
	reason    string
	restored  bool
}

// New creates a controller. The queue is owned by the caller and shared
// with nothing else; every callback the controller registers posts onto
// it.
func New(cfg Config, layout geometry.Layout, capture input.Capture, injector input.Injector, queue *sched.Queue, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		cfg:             cfg,
		log:             log.With("component", "session"),
		queue:           queue,
		layout:          layout,
		capture:         capture,
		injector:        injector,
		epoch:           time.Now(),
		receiverButtons: make(map[input.Button]bool),
		lastSeq:         make(map[string]uint64),
		doneCh:          make(chan struct{}),
		status:          StatusDisconnected,
	}
	c.machine = state.New(queue, cfg.ActivationTimeout, state.Callbacks{
		OnShouldSendActivate:   c.sendActivate,
		OnShouldSendDeactivate: c.sendDeactivate,
		OnTransition:           c.onTransition,
	}, log)
	c.coalescer = coalesce.New(queue, cfg.CoalesceInterval, c.flushForwarded)
	c.detector = edge.New(cfg.Zone, layout, queue, edge.Handlers{
		OnTriggered: c.onEdgeTriggered,
	})
	c.returnDet = edge.New(cfg.ReturnZone, layout, queue, edge.Handlers{
		OnTriggered: c.onReturnEdgeTriggered,
	})
	return c
}

// AddObserver registers a status observer. Must be called before Start.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// Status returns the last status published to observers. Safe to call
// from any goroutine.
func (c *Controller) Status() Status {
	if v, ok := c.statusVal.Load().(Status); ok {
		return v
	}
	return StatusDisconnected
}

// Start wires the capture adapter and transport and begins the session.
// The connection must not have been started yet; the controller is its
// handler.
func (c *Controller) Start(conn *transport.FramedConn) error {
	c.conn = conn
	c.capture.SetHandler(func(ev input.Event) {
		c.queue.Post(func() { c.onCaptured(ev) })
	})
	c.capture.SetRawMoveHandler(func(p geometry.Point) {
		c.queue.Post(func() { c.onRawMove(p) })
	})
	if ks, ok := c.capture.(input.KillSwitch); ok {
		ks.SetKillSwitch(func() {
			c.queue.Post(c.emergencyRelease)
		})
	}
	if err := c.capture.Start(); err != nil {
		return err
	}
	c.queue.Post(func() { c.setStatus(StatusConnecting, "") })
	conn.Start()
	return nil
}

// Stop disconnects and restores local control. Synchronous with
// respect to the session queue and idempotent.
func (c *Controller) Stop() {
	c.queue.Post(func() { c.restoreLocalControl("disconnected by user") })
	c.queue.Sync()
}

// Wait blocks until the session has ended, whatever the cause.
func (c *Controller) Wait() {
	<-c.doneCh
}

// RequestReturn hands control back from the sender side: emergency
// hotkey or an explicit user action while forwarding.
func (c *Controller) RequestReturn() {
	c.queue.Post(c.machine.ReturnTriggered)
}

// emergencyRelease handles the kill-switch hotkey for whichever role
// currently holds the cursor.
func (c *Controller) emergencyRelease() {
	switch {
	case c.machine.Current() == state.Forwarding:
		c.machine.ReturnTriggered()
	case c.controlled:
		c.onReturnEdgeTriggered(c.receiverCursor)
	}
}

// --- transport.Handler ---

// OnState runs on a transport goroutine; hop to the queue.
func (c *Controller) OnState(s transport.ConnState) {
	c.queue.Post(func() {
		switch s {
		case transport.StateReady:
			c.sendEnvelope(protocol.TypeHello, protocol.HelloPayload{
				Name:     c.cfg.Name,
				DeviceID: c.cfg.DeviceID,
			}, false)
			c.setStatus(StatusConnected, "")
		case transport.StateFailed:
			c.restoreLocalControl("connection lost")
		case transport.StateCancelled:
			c.restoreLocalControl("connection cancelled")
		}
	})
}

// OnFrame runs on the transport read goroutine; hop to the queue.
func (c *Controller) OnFrame(frame []byte) {
	c.queue.Post(func() { c.onFrame(frame) })
}

func (c *Controller) onFrame(frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		// Contained at the frame boundary: log and drop, keep the
		// connection.
		c.log.Warn("dropping undecodable frame", "err", err)
		return
	}
	if last, ok := c.lastSeq[env.Source]; ok && env.Seq != last+1 {
		c.log.Warn("sequence gap", "source", env.Source, "have", last, "got", env.Seq)
	}
	c.lastSeq[env.Source] = env.Seq

	switch env.Type {
	case protocol.TypeHello:
		var p protocol.HelloPayload
		if err := env.DecodePayload(&p); err != nil {
			c.log.Warn("bad hello", "err", err)
			return
		}
		c.log.Info("peer identified", "name", p.Name, "device", p.DeviceID)
	case protocol.TypeInputEvent:
		c.onRemoteInput(env)
	case protocol.TypeActivate:
		c.onActivate(env)
	case protocol.TypeActivated:
		c.machine.ReceivedActivated()
	case protocol.TypeDeactivate:
		c.onDeactivate(env)
	case protocol.TypeDeactivated:
		c.machine.ReceivedDeactivated()
	case protocol.TypePairRequest:
		c.sendEnvelope(protocol.TypePairAccept, nil, false)
	case protocol.TypePairAccept:
		c.log.Info("pairing accepted by peer")
	case protocol.TypePhysics:
		// Reserved: shared overlay configuration, no state effect.
	}
}

// --- sender role ---

func (c *Controller) onRawMove(p geometry.Point) {
	if c.controlled {
		return
	}
	if c.machine.Current() == state.Idle {
		c.detector.Update(p)
	}
}

func (c *Controller) onCaptured(ev input.Event) {
	if c.machine.Current() != state.Forwarding {
		return
	}
	c.coalescer.Add(ev)
}

func (c *Controller) onEdgeTriggered(pos geometry.Point) {
	if c.controlled {
		return
	}
	c.crossingPos = pos
	c.crossingDisplay = c.layout.DisplayContaining(pos)
	c.log.Info("edge triggered", "x", pos.X, "y", pos.Y,
		"display_w", c.crossingDisplay.W, "display_h", c.crossingDisplay.H)
	c.machine.EdgeTriggered()
}

func (c *Controller) sendActivate() {
	c.sendEnvelope(protocol.TypeActivate, protocol.ActivatePayload{
		Y: c.layout.NormalizeY(c.crossingPos.Y),
	}, false)
}

// sendDeactivate serves the sender-initiated return (Returning state).
func (c *Controller) sendDeactivate() {
	y := c.layout.NormalizeY(c.crossingPos.Y)
	c.sendEnvelope(protocol.TypeDeactivate, protocol.DeactivatePayload{Y: y}, false)
}

func (c *Controller) flushForwarded(ev input.Event, droppable bool) {
	c.sendEnvelope(protocol.TypeInputEvent, ev, droppable)
}

func (c *Controller) onTransition(from, to state.State) {
	switch {
	case to == state.Forwarding:
		start := geometry.Point{X: c.layout.Virtual.MinX(), Y: c.crossingPos.Y}
		if err := c.capture.StartSuppressing(start, true); err != nil {
			c.log.Error("suppression failed", "err", err)
			c.restoreLocalControl("suppression failed")
			return
		}
		c.coalescer.Start()
		c.setStatus(StatusForwarding, "")
	case to == state.Idle && (from == state.Forwarding || from == state.Returning):
		c.endForwarding()
	case to == state.Idle && from == state.Activating:
		// Timeout or reset before suppression engaged.
		if c.status != StatusDisconnected {
			c.setStatus(StatusConnected, "")
		}
	}
}

// endForwarding tears down the sender side of a handoff: flush and stop
// the coalescer, release suppression, warp to the return point, and
// re-arm the edge so re-triggering needs a full exit.
func (c *Controller) endForwarding() {
	c.coalescer.Stop()
	if err := c.capture.StopSuppressing(); err != nil {
		c.log.Warn("stop suppressing", "err", err)
	}
	if c.returnWarp != nil {
		if err := c.capture.WarpCursor(*c.returnWarp); err != nil {
			c.log.Warn("return warp", "err", err)
		}
		c.detector.Update(*c.returnWarp)
		c.returnWarp = nil
	}
	c.detector.ArmAfterEntry()
	if c.status != StatusDisconnected {
		c.setStatus(StatusConnected, "")
	}
}

// onDeactivate handles the peer handing control back. Two cases: we
// are the forwarding sender (normal return), or we are the controlled
// receiver and the sender cut the session short.
func (c *Controller) onDeactivate(env *protocol.Envelope) {
	var p protocol.DeactivatePayload
	if err := env.DecodePayload(&p); err != nil {
		c.log.Warn("bad deactivate", "err", err)
		return
	}
	if c.machine.Current() == state.Forwarding {
		y := c.layout.DenormalizeY(p.Y)
		display, ok := c.layout.DisplayAtRightBoundary(y)
		if !ok {
			display, ok = c.layout.Rightmost()
			if !ok {
				display = c.layout.Virtual
			}
		}
		warp := geometry.Point{X: display.MaxX() - 2, Y: display.ClampY(y)}
		c.returnWarp = &warp
		c.machine.ReceivedDeactivate()
		c.sendEnvelope(protocol.TypeDeactivated, nil, false)
		return
	}
	if c.controlled {
		c.releaseControlled()
		c.sendEnvelope(protocol.TypeDeactivated, nil, false)
	}
}

// --- receiver role ---

func (c *Controller) onActivate(env *protocol.Envelope) {
	var p protocol.ActivatePayload
	if err := env.DecodePayload(&p); err != nil {
		c.log.Warn("bad activate", "err", err)
		return
	}
	y := c.layout.DenormalizeY(p.Y)
	display, ok := c.layout.DisplayAtLeftBoundary(y)
	if !ok {
		display, ok = c.layout.Leftmost()
		if !ok {
			display = c.layout.Virtual
		}
	}
	entry := geometry.Point{X: display.MinX() + 2, Y: display.ClampY(y)}
	if err := c.capture.WarpCursor(entry); err != nil {
		c.log.Warn("entry warp", "err", err)
	}
	c.receiverCursor = entry
	// Cursor stays visible: it is being driven remotely.
	if err := c.capture.StartSuppressing(entry, false); err != nil {
		c.log.Error("receiver suppression failed", "err", err)
		c.restoreLocalControl("suppression failed")
		return
	}
	c.controlled = true
	clear(c.receiverButtons)
	// The cursor enters inside the return zone; arm so it must leave
	// and come back before the return can fire.
	c.returnDet.Update(entry)
	c.returnDet.ArmAfterEntry()
	c.sendEnvelope(protocol.TypeActivated, nil, false)
	c.setStatus(StatusForwarding, "")
	c.log.Info("controlled by peer", "entry_x", entry.X, "entry_y", entry.Y)
}

func (c *Controller) onRemoteInput(env *protocol.Envelope) {
	if !c.controlled {
		// Input that raced ahead of activate is never injected.
		c.log.Debug("dropping input while not controlled")
		return
	}
	var ev input.Event
	if err := env.DecodePayload(&ev); err != nil {
		c.log.Warn("bad input event", "err", err)
		return
	}
	switch ev.Kind {
	case input.KindMouseMove:
		c.receiverCursor.X += float64(ev.DX)
		c.receiverCursor.Y += float64(ev.DY)
		c.receiverCursor = c.layout.ClampToVirtual(c.receiverCursor)
		// The injector reconstructs drag-vs-move from its held-button
		// set and applies the matching delta fields; the warp keeps the
		// real cursor on the reconstructed position.
		if err := c.injector.WarpCursor(c.receiverCursor); err != nil {
			c.log.Warn("cursor warp", "err", err)
		}
		if err := c.injector.Inject(ev); err != nil {
			c.log.Warn("inject move", "err", err)
		}
		c.returnDet.Update(c.receiverCursor)
	case input.KindMouseButton:
		c.receiverButtons[ev.Button] = ev.Pressed
		if err := c.injector.Inject(ev); err != nil {
			c.log.Warn("inject button", "err", err)
		}
	default:
		if err := c.injector.Inject(ev); err != nil {
			c.log.Warn("inject", "kind", ev.Kind, "err", err)
		}
	}
}

func (c *Controller) onReturnEdgeTriggered(pos geometry.Point) {
	if !c.controlled {
		return
	}
	// Stop injecting first, then tell the sender where we crossed.
	c.releaseControlled()
	c.sendEnvelope(protocol.TypeDeactivate, protocol.DeactivatePayload{
		Y: c.layout.NormalizeY(pos.Y),
	}, false)
}

// releaseControlled drops the active-sink role and gives the cursor
// back to the local user.
func (c *Controller) releaseControlled() {
	if !c.controlled {
		return
	}
	c.controlled = false
	clear(c.receiverButtons)
	if err := c.capture.StopSuppressing(); err != nil {
		c.log.Warn("stop suppressing", "err", err)
	}
	if c.status != StatusDisconnected {
		c.setStatus(StatusConnected, "")
	}
}

// --- failsafe ---

// restoreLocalControl is the one exit path for every failure: stop
// coalescing, release suppression, reset the machine, cancel the
// transport, and give the cursor back. Idempotent; any detected
// connection loss lands here regardless of role.
func (c *Controller) restoreLocalControl(reason string) {
	if c.restored {
		return
	}
	c.restored = true
	c.log.Info("restoring local control", "reason", reason)

	// Publish disconnected first so the teardown transitions below do
	// not surface transient states to observers.
	c.setStatus(StatusDisconnected, reason)
	c.coalescer.Stop()
	c.controlled = false
	clear(c.receiverButtons)
	c.returnWarp = nil
	if err := c.capture.StopSuppressing(); err != nil {
		c.log.Warn("stop suppressing", "err", err)
	}
	c.machine.Reset()
	if c.conn != nil {
		c.conn.Cancel()
	}
	close(c.doneCh)
}

// --- plumbing ---

func (c *Controller) sendEnvelope(t protocol.MessageType, payload any, droppable bool) {
	if c.conn == nil {
		return
	}
	c.seq++
	env, err := protocol.NewEnvelope(t, c.seq, uint64(time.Since(c.epoch).Nanoseconds()), c.cfg.DeviceID, payload)
	if err != nil {
		c.log.Error("encode envelope", "type", t, "err", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		c.log.Error("encode envelope", "type", t, "err", err)
		return
	}
	if err := c.conn.Send(data, droppable); err != nil {
		c.log.Debug("send failed", "type", t, "err", err)
	}
}

func (c *Controller) setStatus(st Status, reason string) {
	if c.status == st && c.reason == reason {
		return
	}
	c.status = st
	c.reason = reason
	c.statusVal.Store(st)
	for _, o := range c.observers {
		o.StatusChanged(st, reason)
	}
}
