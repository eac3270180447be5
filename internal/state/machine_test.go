package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"inputshare/internal/sched"
)

type spy struct {
	mu          sync.Mutex
	activates   int
	deactivates int
	transitions [][2]State
}

func (s *spy) callbacks() Callbacks {
	return Callbacks{
		OnShouldSendActivate: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.activates++
		},
		OnShouldSendDeactivate: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.deactivates++
		},
		OnTransition: func(from, to State) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.transitions = append(s.transitions, [2]State{from, to})
		},
	}
}

func (s *spy) snapshot() (int, int, [][2]State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]State, len(s.transitions))
	copy(out, s.transitions)
	return s.activates, s.deactivates, out
}

func newMachine(t *testing.T, timeout time.Duration) (*Machine, *spy, *sched.Queue) {
	t.Helper()
	q := sched.New()
	t.Cleanup(q.Close)
	s := &spy{}
	m := New(q, timeout, s.callbacks(), nil)
	return m, s, q
}

func TestHappyPathHandoffAndReturn(t *testing.T) {
	m, s, q := newMachine(t, time.Second)

	q.Post(m.EdgeTriggered)
	q.Post(m.ReceivedActivated)
	q.Post(m.ReturnTriggered)
	q.Post(m.ReceivedDeactivated)
	q.Sync()

	activates, deactivates, transitions := s.snapshot()
	assert.Equal(t, 1, activates)
	assert.Equal(t, 1, deactivates)
	assert.Equal(t, [][2]State{
		{Idle, Activating},
		{Activating, Forwarding},
		{Forwarding, Returning},
		{Returning, Idle},
	}, transitions)
	q.Post(func() { assert.Equal(t, Idle, m.Current()) })
	q.Sync()
}

func TestActivationTimeout(t *testing.T) {
	m, s, q := newMachine(t, 30*time.Millisecond)

	q.Post(m.EdgeTriggered)
	q.Sync()

	assert.Eventually(t, func() bool {
		var cur State
		done := make(chan struct{})
		q.Post(func() { cur = m.Current(); close(done) })
		<-done
		return cur == Idle
	}, time.Second, 5*time.Millisecond)

	// No deactivate was ever requested, and a late activated is ignored.
	q.Post(m.ReceivedActivated)
	q.Sync()
	activates, deactivates, _ := s.snapshot()
	assert.Equal(t, 1, activates)
	assert.Zero(t, deactivates)
	q.Post(func() { assert.Equal(t, Idle, m.Current()) })
	q.Sync()
}

func TestEdgeTriggerIgnoredOutsideIdle(t *testing.T) {
	m, s, q := newMachine(t, time.Second)

	q.Post(m.EdgeTriggered)
	q.Post(m.EdgeTriggered)
	q.Post(m.ReceivedActivated)
	q.Post(m.EdgeTriggered)
	q.Sync()

	activates, _, _ := s.snapshot()
	assert.Equal(t, 1, activates)
	q.Post(func() { assert.Equal(t, Forwarding, m.Current()) })
	q.Sync()
}

func TestReturnTriggerIgnoredOutsideForwarding(t *testing.T) {
	m, s, q := newMachine(t, time.Second)

	q.Post(m.ReturnTriggered)
	q.Post(m.EdgeTriggered)
	q.Post(m.ReturnTriggered)
	q.Sync()

	_, deactivates, _ := s.snapshot()
	assert.Zero(t, deactivates)
}

func TestPeerInitiatedDeactivate(t *testing.T) {
	m, s, q := newMachine(t, time.Second)

	q.Post(m.EdgeTriggered)
	q.Post(m.ReceivedActivated)
	q.Post(m.ReceivedDeactivate)
	q.Sync()

	// Terminal: no local deactivate emitted.
	_, deactivates, _ := s.snapshot()
	assert.Zero(t, deactivates)
	q.Post(func() { assert.Equal(t, Idle, m.Current()) })
	q.Sync()
}

func TestResetFromAnyState(t *testing.T) {
	m, _, q := newMachine(t, time.Second)

	q.Post(m.EdgeTriggered)
	q.Post(m.Reset)
	q.Post(func() { assert.Equal(t, Idle, m.Current()) })

	q.Post(m.EdgeTriggered)
	q.Post(m.ReceivedActivated)
	q.Post(m.Reset)
	q.Post(func() { assert.Equal(t, Idle, m.Current()) })

	// Idempotent.
	q.Post(m.Reset)
	q.Post(m.Reset)
	q.Sync()
}

func TestResetCancelsActivationTimeout(t *testing.T) {
	m, s, q := newMachine(t, 30*time.Millisecond)

	q.Post(m.EdgeTriggered)
	q.Post(m.Reset)
	q.Sync()
	time.Sleep(60 * time.Millisecond)
	q.Sync()

	// Only the two real transitions; the timeout produced nothing.
	_, _, transitions := s.snapshot()
	assert.Equal(t, [][2]State{
		{Idle, Activating},
		{Activating, Idle},
	}, transitions)
}
