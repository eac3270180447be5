// Package coalesce rate-limits mouse motion on the forwarding path.
package coalesce

import (
	"time"

	"inputshare/internal/input"
	"inputshare/internal/sched"
)

// DefaultInterval is the flush period while forwarding is active:
// 4 ms, about 250 envelopes per second of motion.
const DefaultInterval = 4 * time.Millisecond

// Flush receives each event surviving coalescing, in order, on the
// session queue. The droppable flag marks accumulated moves, which the
// transport may shed under backpressure; everything else must not be
// dropped.
type Flush func(ev input.Event, droppable bool)

// Coalescer accumulates mouse-move deltas and scroll ticks between
// periodic flushes. Deltas are summed, never discarded, so total motion
// is preserved exactly. All methods run on the owning queue.
type Coalescer struct {
	queue    *sched.Queue
	interval time.Duration
	flush    Flush

	pendingMove   *input.Event
	pendingScroll *input.Event

	running bool
	ticker  *time.Ticker
	done    chan struct{}
}

// New creates a stopped coalescer. A zero interval selects the default.
func New(queue *sched.Queue, interval time.Duration, flush Flush) *Coalescer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coalescer{queue: queue, interval: interval, flush: flush}
}

// Start begins the periodic flusher. No-op if already running.
func (c *Coalescer) Start() {
	if c.running {
		return
	}
	c.running = true
	c.ticker = time.NewTicker(c.interval)
	c.done = make(chan struct{})
	go func(tick <-chan time.Time, done chan struct{}) {
		for {
			select {
			case <-tick:
				c.queue.Post(c.flushPending)
			case <-done:
				return
			}
		}
	}(c.ticker.C, c.done)
}

// Stop halts the flusher and flushes anything pending. No-op if not
// running.
func (c *Coalescer) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.ticker.Stop()
	close(c.done)
	c.flushPending()
}

// Running reports whether the flusher is active.
func (c *Coalescer) Running() bool {
	return c.running
}

// Add routes one captured event through the coalescer. Moves and
// scrolls accumulate; any other kind flushes the pending motion first
// and then goes out immediately, preserving capture order.
func (c *Coalescer) Add(ev input.Event) {
	switch ev.Kind {
	case input.KindMouseMove:
		if c.pendingMove != nil {
			c.pendingMove.DX += ev.DX
			c.pendingMove.DY += ev.DY
			c.pendingMove.NX = ev.NX
			c.pendingMove.NY = ev.NY
			c.pendingMove.Flags = ev.Flags
		} else {
			pending := ev
			c.pendingMove = &pending
		}
	case input.KindScroll:
		if c.pendingScroll != nil {
			c.pendingScroll.ScrollDX += ev.ScrollDX
			c.pendingScroll.ScrollDY += ev.ScrollDY
			c.pendingScroll.Flags = ev.Flags
		} else {
			pending := ev
			c.pendingScroll = &pending
		}
	default:
		c.flushPending()
		c.flush(ev, false)
	}
}

func (c *Coalescer) flushPending() {
	if c.pendingMove != nil {
		move := *c.pendingMove
		c.pendingMove = nil
		c.flush(move, true)
	}
	if c.pendingScroll != nil {
		scroll := *c.pendingScroll
		c.pendingScroll = nil
		c.flush(scroll, false)
	}
}
