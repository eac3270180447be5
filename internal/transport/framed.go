package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"inputshare/internal/protocol"
)

// ConnState is the lifecycle state of a framed connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateReady
	StateFailed
	StateCancelled
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ErrHandshake reports a TLS or pin failure. The connection is dropped
// and not retried without an external trigger.
var ErrHandshake = errors.New("transport: handshake failed")

// ErrConnectionLost reports a transport failure mid-session.
var ErrConnectionLost = errors.New("transport: connection lost")

// Handler observes a framed connection. Callbacks run on the
// connection's internal goroutines; implementations hand off to their
// own queue and return promptly.
type Handler interface {
	OnState(ConnState)
	OnFrame([]byte)
}

// sendQueueDepth bounds the outbound queue. At the coalesced move rate
// this is roughly two seconds of backlog.
const sendQueueDepth = 512

type sendItem struct {
	data      []byte
	droppable bool
}

// FramedConn wraps a byte stream with length-prefixed framing, a
// bounded non-blocking send queue, and state reporting. Send never
// blocks the caller: under backpressure the oldest droppable frame is
// shed in favor of the newest.
type FramedConn struct {
	conn    net.Conn
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	queue  []sendItem
	wake   chan struct{}
	state  ConnState
	closed bool
	done   chan struct{}
}

// NewFramedConn wraps an established stream. Call Start to begin
// pumping.
func NewFramedConn(conn net.Conn, handler Handler, log *slog.Logger) *FramedConn {
	if log == nil {
		log = slog.Default()
	}
	return &FramedConn{
		conn:    conn,
		handler: handler,
		log:     log.With("component", "transport", "peer", conn.RemoteAddr().String()),
		wake:    make(chan struct{}, 1),
		state:   StateConnecting,
		done:    make(chan struct{}),
	}
}

// Start launches the read and write pumps and reports Ready.
func (c *FramedConn) Start() {
	c.setState(StateReady)
	go c.readLoop()
	go c.writeLoop()
}

func (c *FramedConn) setState(s ConnState) {
	c.mu.Lock()
	if c.closed && s != StateCancelled {
		c.mu.Unlock()
		return
	}
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.handler != nil {
		c.handler.OnState(s)
	}
}

// State returns the current connection state.
func (c *FramedConn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send queues one frame. It never blocks. When the queue is full and
// the new frame is droppable, the oldest droppable frame in the queue
// is discarded first; accumulated moves are idempotent under this
// policy because deltas re-sum at the next flush. Non-droppable frames
// are always queued.
func (c *FramedConn) Send(payload []byte, droppable bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionLost
	}
	if len(c.queue) >= sendQueueDepth {
		if idx := c.oldestDroppableLocked(); idx >= 0 {
			c.queue = append(c.queue[:idx], c.queue[idx+1:]...)
			c.log.Debug("send queue full, dropped oldest move")
		} else if droppable {
			c.mu.Unlock()
			c.log.Debug("send queue full, dropped newest move")
			return nil
		}
	}
	c.queue = append(c.queue, sendItem{data: payload, droppable: droppable})
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *FramedConn) oldestDroppableLocked() int {
	for i, item := range c.queue {
		if item.droppable {
			return i
		}
	}
	return -1
}

func (c *FramedConn) writeLoop() {
	for {
		c.mu.Lock()
		var item sendItem
		have := len(c.queue) > 0
		if have {
			item = c.queue[0]
			c.queue = c.queue[1:]
		}
		c.mu.Unlock()

		if !have {
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}

		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if _, err := c.conn.Write(protocol.Frame(item.data)); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *FramedConn) readLoop() {
	var deframer protocol.Deframer
	buf := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frames, ferr := deframer.Push(buf[:n])
			for _, frame := range frames {
				if c.handler != nil {
					c.handler.OnFrame(frame)
				}
			}
			if ferr != nil {
				c.fail(ferr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.fail(fmt.Errorf("%w: peer closed", ErrConnectionLost))
			} else {
				c.fail(err)
			}
			return
		}
	}
}

func (c *FramedConn) fail(err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.log.Warn("connection failed", "err", err)
	c.conn.Close()
	c.setState(StateFailed)
}

// Cancel tears the connection down and reports Cancelled. Idempotent.
func (c *FramedConn) Cancel() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateCancelled
	c.mu.Unlock()
	close(c.done)
	c.conn.Close()
	if c.handler != nil {
		c.handler.OnState(StateCancelled)
	}
}

// Dial establishes a pinned mutual-TLS connection to addr.
func Dial(addr string, cfg *tls.Config, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrHandshake, addr, err)
	}
	return conn, nil
}

// Listen binds a pinned mutual-TLS listener on port.
func Listen(port int, cfg *tls.Config) (net.Listener, error) {
	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", port), cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %d: %w", port, err)
	}
	return ln, nil
}
