package session

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"inputshare/internal/input"
	"inputshare/internal/protocol"
	"inputshare/internal/transport"
)

// MockSink is the development-only receive mode: it accepts any peer
// over plain TCP, prints every received input event as one text record,
// and answers the handshake messages so a real sender can complete a
// handoff against it.
type MockSink struct {
	out io.Writer
	log *slog.Logger

	mu   sync.Mutex
	ln   net.Listener
	conn *transport.FramedConn
	seq  uint64
	done chan struct{}
}

// NewMockSink writes event records to out.
func NewMockSink(out io.Writer, log *slog.Logger) *MockSink {
	if log == nil {
		log = slog.Default()
	}
	return &MockSink{
		out:  out,
		log:  log.With("component", "mocksink"),
		done: make(chan struct{}),
	}
}

// ListenAndServe accepts connections one at a time until Close.
func (m *MockSink) ListenAndServe(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("mocksink: listen on %d: %w", port, err)
	}
	m.mu.Lock()
	m.ln = ln
	m.mu.Unlock()
	m.log.Info("mock receiver listening", "port", port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-m.done:
				return nil
			default:
				return fmt.Errorf("mocksink: accept: %w", err)
			}
		}
		m.log.Info("peer connected", "addr", conn.RemoteAddr().String())
		m.serve(conn)
	}
}

// serve pumps one connection to completion.
func (m *MockSink) serve(conn net.Conn) {
	closed := make(chan struct{})
	fc := transport.NewFramedConn(conn, &sinkHandler{sink: m, closed: closed}, m.log)
	m.mu.Lock()
	m.conn = fc
	m.mu.Unlock()
	fc.Start()
	select {
	case <-closed:
	case <-m.done:
		fc.Cancel()
	}
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

// Addr returns the bound listener address, or nil before
// ListenAndServe binds.
func (m *MockSink) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Close stops the listener and any active connection.
func (m *MockSink) Close() {
	close(m.done)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Cancel()
	}
	if m.ln != nil {
		m.ln.Close()
	}
}

type sinkHandler struct {
	sink   *MockSink
	closed chan struct{}
}

func (h *sinkHandler) OnState(s transport.ConnState) {
	if s == transport.StateFailed || s == transport.StateCancelled {
		select {
		case <-h.closed:
		default:
			close(h.closed)
		}
	}
}

func (h *sinkHandler) OnFrame(frame []byte) {
	m := h.sink
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		m.log.Warn("dropping undecodable frame", "err", err)
		return
	}
	switch env.Type {
	case protocol.TypeHello:
		var p protocol.HelloPayload
		if env.DecodePayload(&p) == nil {
			fmt.Fprintf(m.out, "hello name=%q device=%s\n", p.Name, p.DeviceID)
		}
	case protocol.TypeInputEvent:
		var ev input.Event
		if err := env.DecodePayload(&ev); err != nil {
			m.log.Warn("bad input event", "err", err)
			return
		}
		m.printEvent(env.Seq, ev)
	case protocol.TypeActivate:
		var p protocol.ActivatePayload
		if env.DecodePayload(&p) == nil {
			fmt.Fprintf(m.out, "activate y=%.3f\n", p.Y)
		}
		m.reply(protocol.TypeActivated)
	case protocol.TypeDeactivate:
		var p protocol.DeactivatePayload
		if env.DecodePayload(&p) == nil {
			fmt.Fprintf(m.out, "deactivate y=%.3f\n", p.Y)
		}
		m.reply(protocol.TypeDeactivated)
	case protocol.TypePairRequest:
		m.reply(protocol.TypePairAccept)
	}
}

func (m *MockSink) printEvent(seq uint64, ev input.Event) {
	switch ev.Kind {
	case input.KindMouseMove:
		fmt.Fprintf(m.out, "#%d move dx=%d dy=%d flags=%#x\n", seq, ev.DX, ev.DY, ev.Flags)
	case input.KindMouseButton:
		fmt.Fprintf(m.out, "#%d button btn=%d pressed=%v flags=%#x\n", seq, ev.Button, ev.Pressed, ev.Flags)
	case input.KindScroll:
		fmt.Fprintf(m.out, "#%d scroll dx=%.2f dy=%.2f flags=%#x\n", seq, ev.ScrollDX, ev.ScrollDY, ev.Flags)
	case input.KindKey:
		fmt.Fprintf(m.out, "#%d key code=%#x pressed=%v flags=%#x\n", seq, ev.KeyCode, ev.Pressed, ev.Flags)
	case input.KindFlagsChanged:
		fmt.Fprintf(m.out, "#%d flags flags=%#x\n", seq, ev.Flags)
	}
}

func (m *MockSink) reply(t protocol.MessageType) {
	m.mu.Lock()
	conn := m.conn
	m.seq++
	seq := m.seq
	m.mu.Unlock()
	if conn == nil {
		return
	}
	env, err := protocol.NewEnvelope(t, seq, 0, "mock-receiver", nil)
	if err != nil {
		return
	}
	data, err := env.Encode()
	if err != nil {
		return
	}
	if err := conn.Send(data, false); err != nil {
		m.log.Debug("reply failed", "type", t, "err", err)
	}
}
