// Package edge implements the dwell-based edge trigger.
package edge

import (
	"math"
	"time"

	"inputshare/internal/geometry"
	"inputshare/internal/sched"
)

// Zone names a configured edge zone.
type Zone string

const (
	ZoneLeft     Zone = "left"
	ZoneRight    Zone = "right"
	ZoneTopLeft  Zone = "topLeft"
	ZoneTopRight Zone = "topRight"
)

// Config tunes one detector. ExitThreshold must be strictly greater
// than EnterThreshold; the gap is the hysteresis band.
type Config struct {
	Zone           Zone
	EnterThreshold float64
	ExitThreshold  float64
	DwellTime      time.Duration
}

// DefaultConfig returns the stock tuning for zone.
func DefaultConfig(zone Zone) Config {
	return Config{
		Zone:           zone,
		EnterThreshold: 3,
		ExitThreshold:  40,
		DwellTime:      100 * time.Millisecond,
	}
}

// Handlers observe the detector. All callbacks run on the session
// queue.
type Handlers struct {
	OnEntered   func()
	OnTriggered func(pos geometry.Point)
	OnExited    func()
}

// Detector fires Triggered after the cursor dwells inside an edge zone.
// For left/right zones the cursor's display must have no adjacent
// display on that side: moving between side-by-side displays never
// fires. All methods must be called on the owning queue.
type Detector struct {
	cfg      Config
	layout   geometry.Layout
	queue    *sched.Queue
	handlers Handlers

	inZone       bool
	hasTriggered bool
	dwell        *sched.Timer
	lastPos      geometry.Point
}

// New creates a detector. The layout may be replaced later with
// SetLayout on display-topology changes.
func New(cfg Config, layout geometry.Layout, queue *sched.Queue, handlers Handlers) *Detector {
	return &Detector{cfg: cfg, layout: layout, queue: queue, handlers: handlers}
}

// SetLayout swaps the display layout.
func (d *Detector) SetLayout(layout geometry.Layout) {
	d.layout = layout
}

// distance returns how far p is from the configured zone's boundary.
func (d *Detector) distance(p geometry.Point) float64 {
	switch d.cfg.Zone {
	case ZoneLeft:
		return d.layout.DistanceToLeftBoundary(p)
	case ZoneRight:
		return d.layout.DistanceToRightBoundary(p)
	case ZoneTopLeft:
		return math.Max(p.Y-d.layout.Virtual.MinY(), d.layout.DistanceToLeftBoundary(p))
	case ZoneTopRight:
		return math.Max(p.Y-d.layout.Virtual.MinY(), d.layout.DistanceToRightBoundary(p))
	}
	return math.Inf(1)
}

// Update feeds a cursor position into the detector.
func (d *Detector) Update(p geometry.Point) {
	d.lastPos = p
	dist := d.distance(p)

	if !d.inZone {
		if dist <= d.cfg.EnterThreshold {
			d.enter()
		}
		return
	}
	if dist > d.cfg.ExitThreshold {
		d.exit()
	}
}

func (d *Detector) enter() {
	d.inZone = true
	d.hasTriggered = false
	if d.handlers.OnEntered != nil {
		d.handlers.OnEntered()
	}
	d.dwell.Cancel()
	d.dwell = d.queue.PostDelayed(d.cfg.DwellTime, d.dwellFired)
}

func (d *Detector) exit() {
	d.inZone = false
	d.dwell.Cancel()
	d.dwell = nil
	if d.hasTriggered && d.handlers.OnExited != nil {
		d.handlers.OnExited()
	}
	d.hasTriggered = false
}

func (d *Detector) dwellFired() {
	if !d.inZone || d.hasTriggered {
		return
	}
	d.hasTriggered = true
	if d.handlers.OnTriggered != nil {
		d.handlers.OnTriggered(d.lastPos)
	}
}

// ArmAfterEntry is called after a handoff completes with the cursor
// sitting inside the zone. It asserts in-zone without a trigger and
// cancels any pending dwell, so the cursor must leave past the exit
// threshold and re-enter before the next trigger can fire.
func (d *Detector) ArmAfterEntry() {
	d.inZone = true
	d.hasTriggered = false
	d.dwell.Cancel()
	d.dwell = nil
}

// InZone reports the current in-zone state.
func (d *Detector) InZone() bool {
	return d.inZone
}

// Proximity returns the distance to the zone boundary for the last
// observed position, for the UI's edge-glow observer. +Inf when the
// zone is unreachable from the current display.
func (d *Detector) Proximity() float64 {
	return d.distance(d.lastPos)
}
