package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputshare/internal/protocol"
)

type collector struct {
	mu     sync.Mutex
	states []ConnState
	frames [][]byte
}

func (c *collector) OnState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, s)
}

func (c *collector) OnFrame(f []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

func (c *collector) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) lastState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return StateConnecting
	}
	return c.states[len(c.states)-1]
}

func pipePair(t *testing.T) (*FramedConn, *collector, *FramedConn, *collector) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := &collector{}, &collector{}
	fa := NewFramedConn(a, ca, nil)
	fb := NewFramedConn(b, cb, nil)
	fa.Start()
	fb.Start()
	t.Cleanup(fa.Cancel)
	t.Cleanup(fb.Cancel)
	return fa, ca, fb, cb
}

func TestFramesDeliveredInOrder(t *testing.T) {
	fa, _, _, cb := pipePair(t)

	for i := 0; i < 50; i++ {
		require.NoError(t, fa.Send([]byte{byte(i)}, false))
	}

	assert.Eventually(t, func() bool { return cb.frameCount() == 50 }, time.Second, 5*time.Millisecond)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for i, f := range cb.frames {
		assert.Equal(t, []byte{byte(i)}, f)
	}
}

func TestStateReadyOnStart(t *testing.T) {
	_, ca, _, _ := pipePair(t)
	assert.Equal(t, StateReady, ca.lastState())
}

func TestPeerCloseReportsFailed(t *testing.T) {
	fa, _, _, cb := pipePair(t)

	fa.Cancel()
	assert.Eventually(t, func() bool { return cb.lastState() == StateFailed }, time.Second, 5*time.Millisecond)
}

func TestCancelReportsCancelledOnce(t *testing.T) {
	fa, ca, _, _ := pipePair(t)

	fa.Cancel()
	fa.Cancel()

	ca.mu.Lock()
	defer ca.mu.Unlock()
	cancelled := 0
	for _, s := range ca.states {
		if s == StateCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestSendAfterCancel(t *testing.T) {
	fa, _, _, _ := pipePair(t)
	fa.Cancel()
	assert.ErrorIs(t, fa.Send([]byte("x"), false), ErrConnectionLost)
}

func TestBackpressureShedsOldestDroppable(t *testing.T) {
	// A pipe with no reader exerts immediate backpressure.
	a, b := net.Pipe()
	defer b.Close()
	fa := NewFramedConn(a, &collector{}, nil)
	fa.Start()
	defer fa.Cancel()

	// Fill past the queue bound with droppable frames, then add one
	// non-droppable frame.
	for i := 0; i < sendQueueDepth+100; i++ {
		require.NoError(t, fa.Send([]byte{1}, true))
	}
	require.NoError(t, fa.Send([]byte("keep"), false))

	fa.mu.Lock()
	depth := len(fa.queue)
	var keeps int
	for _, item := range fa.queue {
		if !item.droppable {
			keeps++
		}
	}
	fa.mu.Unlock()

	assert.LessOrEqual(t, depth, sendQueueDepth+1)
	assert.Equal(t, 1, keeps)
}

func TestEnvelopesSurviveFraming(t *testing.T) {
	fa, _, _, cb := pipePair(t)

	env, err := protocol.NewEnvelope(protocol.TypeHello, 1, 42, "desk-a", protocol.HelloPayload{Name: "Desk A", DeviceID: "d-a"})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, fa.Send(data, false))

	assert.Eventually(t, func() bool { return cb.frameCount() == 1 }, time.Second, 5*time.Millisecond)
	cb.mu.Lock()
	frame := cb.frames[0]
	cb.mu.Unlock()

	got, err := protocol.DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeHello, got.Type)
}
