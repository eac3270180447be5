package coalesce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputshare/internal/input"
	"inputshare/internal/sched"
)

type sink struct {
	mu     sync.Mutex
	events []input.Event
	flags  []bool
}

func (s *sink) flush(ev input.Event, droppable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.flags = append(s.flags, droppable)
}

func (s *sink) snapshot() []input.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]input.Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestMovesAccumulateExactly(t *testing.T) {
	// 100 moves over ~20ms: fewer envelopes than input moves, and the
	// delta sum is preserved exactly.
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, 4*time.Millisecond, s.flush)

	q.Post(c.Start)
	wantDX, wantDY := 0, 0
	for i := 0; i < 100; i++ {
		dx, dy := (i%7)-3, (i%5)-2
		wantDX += dx
		wantDY += dy
		ev := input.Event{Kind: input.KindMouseMove, DX: dx, DY: dy}
		q.Post(func() { c.Add(ev) })
		time.Sleep(200 * time.Microsecond)
	}
	q.Post(c.Stop)
	q.Sync()

	events := s.snapshot()
	require.NotEmpty(t, events)
	gotDX, gotDY := 0, 0
	for _, ev := range events {
		require.Equal(t, input.KindMouseMove, ev.Kind)
		gotDX += ev.DX
		gotDY += ev.DY
	}
	assert.Equal(t, wantDX, gotDX)
	assert.Equal(t, wantDY, gotDY)
	assert.Less(t, len(events), 100)
}

func TestScrollAccumulates(t *testing.T) {
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, time.Hour, s.flush) // no tick during the test

	q.Post(c.Start)
	q.Post(func() {
		c.Add(input.Event{Kind: input.KindScroll, ScrollDX: 1.5, ScrollDY: -2})
		c.Add(input.Event{Kind: input.KindScroll, ScrollDX: 0.5, ScrollDY: -1, Flags: 4})
	})
	q.Post(c.Stop)
	q.Sync()

	events := s.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 2.0, events[0].ScrollDX)
	assert.Equal(t, -3.0, events[0].ScrollDY)
	assert.Equal(t, uint64(4), events[0].Flags)
}

func TestOtherKindsFlushPendingFirst(t *testing.T) {
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, time.Hour, s.flush)

	q.Post(c.Start)
	q.Post(func() {
		c.Add(input.Event{Kind: input.KindMouseMove, DX: 5, DY: 5})
		c.Add(input.Event{Kind: input.KindScroll, ScrollDY: 1})
		c.Add(input.Event{Kind: input.KindMouseButton, Button: input.ButtonLeft, Pressed: true})
	})
	q.Sync()

	events := s.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, input.KindMouseMove, events[0].Kind)
	assert.Equal(t, input.KindScroll, events[1].Kind)
	assert.Equal(t, input.KindMouseButton, events[2].Kind)

	s.mu.Lock()
	flags := append([]bool(nil), s.flags...)
	s.mu.Unlock()
	assert.Equal(t, []bool{true, false, false}, flags)
}

func TestMoveAdoptsLatestPositionAndFlags(t *testing.T) {
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, time.Hour, s.flush)

	q.Post(c.Start)
	q.Post(func() {
		c.Add(input.Event{Kind: input.KindMouseMove, DX: 1, DY: 1, NX: 0.1, NY: 0.1, Flags: 1})
		c.Add(input.Event{Kind: input.KindMouseMove, DX: 2, DY: 2, NX: 0.9, NY: 0.8, Flags: 2})
	})
	q.Post(c.Stop)
	q.Sync()

	events := s.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].DX)
	assert.Equal(t, 0.9, events[0].NX)
	assert.Equal(t, 0.8, events[0].NY)
	assert.Equal(t, uint64(2), events[0].Flags)
}

func TestStopFlushesPending(t *testing.T) {
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, time.Hour, s.flush)

	q.Post(c.Start)
	q.Post(func() { c.Add(input.Event{Kind: input.KindMouseMove, DX: 9, DY: -9}) })
	q.Post(c.Stop)
	q.Sync()

	events := s.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 9, events[0].DX)
	assert.False(t, c.Running())
}

func TestStartStopIdempotent(t *testing.T) {
	q := sched.New()
	defer q.Close()
	s := &sink{}
	c := New(q, time.Hour, s.flush)

	q.Post(c.Stop)
	q.Post(c.Start)
	q.Post(c.Start)
	q.Post(c.Stop)
	q.Post(c.Stop)
	q.Sync()
	assert.Empty(t, s.snapshot())
}
