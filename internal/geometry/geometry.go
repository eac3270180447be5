// Package geometry models the multi-display layout of one host.
package geometry

import "math"

// Point is a position in the host's single top-left-origin coordinate
// space.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned display rectangle.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

func (r Rect) MinX() float64 { return r.X }
func (r Rect) MaxX() float64 { return r.X + r.W }
func (r Rect) MinY() float64 { return r.Y }
func (r Rect) MaxY() float64 { return r.Y + r.H }

// Contains reports whether p lies inside r. The right and bottom edges
// are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX() && p.X < r.MaxX() && p.Y >= r.MinY() && p.Y < r.MaxY()
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Union returns the smallest rect covering both r and o.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.MinX(), o.MinX())
	minY := math.Min(r.MinY(), o.MinY())
	maxX := math.Max(r.MaxX(), o.MaxX())
	maxY := math.Max(r.MaxY(), o.MaxY())
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ClampY clamps y into the vertical extent of r, keeping a one-pixel
// margin from the bottom edge so the result stays inside the display.
func (r Rect) ClampY(y float64) float64 {
	return math.Max(r.MinY(), math.Min(y, r.MaxY()-1))
}

// edgeTolerance absorbs sub-pixel gaps between displays that the OS
// reports as adjacent.
const edgeTolerance = 1.0

// Layout is the virtual screen of one host: the union rectangle of all
// displays plus the individual display rects.
type Layout struct {
	Virtual  Rect
	Displays []Rect
}

// NewLayout builds a layout from the individual display rects.
func NewLayout(displays []Rect) Layout {
	if len(displays) == 0 {
		return Layout{}
	}
	virtual := displays[0]
	for _, d := range displays[1:] {
		virtual = virtual.Union(d)
	}
	return Layout{Virtual: virtual, Displays: displays}
}

// DisplayContaining returns the display rect containing p, or the
// nearest display by center distance when p is outside every display.
func (l Layout) DisplayContaining(p Point) Rect {
	var nearest Rect
	best := math.Inf(1)
	for _, d := range l.Displays {
		if d.Contains(p) {
			return d
		}
		c := d.Center()
		dist := math.Hypot(p.X-c.X, p.Y-c.Y)
		if dist < best {
			best = dist
			nearest = d
		}
	}
	return nearest
}

// hasNeighborRight reports whether another display abuts d's right edge
// with vertical coverage at y.
func (l Layout) hasNeighborRight(d Rect, y float64) bool {
	for _, o := range l.Displays {
		if o == d {
			continue
		}
		if math.Abs(o.MinX()-d.MaxX()) <= edgeTolerance && y >= o.MinY() && y < o.MaxY() {
			return true
		}
	}
	return false
}

// hasNeighborLeft reports whether another display abuts d's left edge
// with vertical coverage at y.
func (l Layout) hasNeighborLeft(d Rect, y float64) bool {
	for _, o := range l.Displays {
		if o == d {
			continue
		}
		if math.Abs(o.MaxX()-d.MinX()) <= edgeTolerance && y >= o.MinY() && y < o.MaxY() {
			return true
		}
	}
	return false
}

// DisplayAtRightBoundary returns a display whose right edge at y is a
// true screen boundary, i.e. no display sits beyond it at that height.
func (l Layout) DisplayAtRightBoundary(y float64) (Rect, bool) {
	for _, d := range l.Displays {
		if y < d.MinY() || y >= d.MaxY() {
			continue
		}
		if !l.hasNeighborRight(d, y) {
			return d, true
		}
	}
	return Rect{}, false
}

// DisplayAtLeftBoundary returns a display whose left edge at y is a
// true screen boundary.
func (l Layout) DisplayAtLeftBoundary(y float64) (Rect, bool) {
	for _, d := range l.Displays {
		if y < d.MinY() || y >= d.MaxY() {
			continue
		}
		if !l.hasNeighborLeft(d, y) {
			return d, true
		}
	}
	return Rect{}, false
}

// Leftmost returns the display with the smallest left edge.
func (l Layout) Leftmost() (Rect, bool) {
	if len(l.Displays) == 0 {
		return Rect{}, false
	}
	best := l.Displays[0]
	for _, d := range l.Displays[1:] {
		if d.MinX() < best.MinX() {
			best = d
		}
	}
	return best, true
}

// Rightmost returns the display with the largest right edge.
func (l Layout) Rightmost() (Rect, bool) {
	if len(l.Displays) == 0 {
		return Rect{}, false
	}
	best := l.Displays[0]
	for _, d := range l.Displays[1:] {
		if d.MaxX() > best.MaxX() {
			best = d
		}
	}
	return best, true
}

// DistanceToRightBoundary returns the distance from p to the right edge
// of its display, or +Inf when another display sits beyond that edge at
// p's height. Crossing between side-by-side displays must never look
// like reaching a screen boundary.
func (l Layout) DistanceToRightBoundary(p Point) float64 {
	d := l.DisplayContaining(p)
	if l.hasNeighborRight(d, p.Y) {
		return math.Inf(1)
	}
	return d.MaxX() - p.X
}

// DistanceToLeftBoundary returns the distance from p to the left edge
// of its display, or +Inf when another display sits beyond that edge.
func (l Layout) DistanceToLeftBoundary(p Point) float64 {
	d := l.DisplayContaining(p)
	if l.hasNeighborLeft(d, p.Y) {
		return math.Inf(1)
	}
	return p.X - d.MinX()
}

// NormalizeY maps y into [0,1] over the virtual screen height.
func (l Layout) NormalizeY(y float64) float64 {
	if l.Virtual.H <= 0 {
		return 0
	}
	n := (y - l.Virtual.MinY()) / l.Virtual.H
	return math.Max(0, math.Min(1, n))
}

// DenormalizeY maps a [0,1] fraction back to a virtual-screen Y.
func (l Layout) DenormalizeY(n float64) float64 {
	n = math.Max(0, math.Min(1, n))
	return l.Virtual.MinY() + n*l.Virtual.H
}

// ClampToVirtual clamps p into the virtual screen rectangle.
func (l Layout) ClampToVirtual(p Point) Point {
	x := math.Max(l.Virtual.MinX(), math.Min(p.X, l.Virtual.MaxX()-1))
	y := math.Max(l.Virtual.MinY(), math.Min(p.Y, l.Virtual.MaxY()-1))
	return Point{X: x, Y: y}
}
