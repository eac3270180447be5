package edge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"inputshare/internal/geometry"
	"inputshare/internal/sched"
)

type recorder struct {
	mu        sync.Mutex
	entered   int
	triggered []geometry.Point
	exited    int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnEntered: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.entered++
		},
		OnTriggered: func(p geometry.Point) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.triggered = append(r.triggered, p)
		},
		OnExited: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.exited++
		},
	}
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entered, len(r.triggered), r.exited
}

func singleDisplay() geometry.Layout {
	return geometry.NewLayout([]geometry.Rect{{X: 0, Y: 0, W: 2000, H: 1200}})
}

func testConfig() Config {
	return Config{
		Zone:           ZoneRight,
		EnterThreshold: 3,
		ExitThreshold:  40,
		DwellTime:      30 * time.Millisecond,
	}
}

func TestTriggerAfterDwell(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	q.Sync()
	entered, triggered, _ := rec.counts()
	assert.Equal(t, 1, entered)
	assert.Zero(t, triggered)

	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	pos := rec.triggered[0]
	rec.mu.Unlock()
	assert.Equal(t, geometry.Point{X: 1998, Y: 600}, pos)
}

func TestTriggerReportsLatestPosition(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	q.Post(func() { d.Update(geometry.Point{X: 1999, Y: 610}) })

	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	pos := rec.triggered[0]
	rec.mu.Unlock()
	assert.Equal(t, geometry.Point{X: 1999, Y: 610}, pos)
}

func TestExitBeforeDwellCancels(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	q.Post(func() { d.Update(geometry.Point{X: 1000, Y: 600}) })
	q.Sync()

	time.Sleep(60 * time.Millisecond)
	q.Sync()
	entered, triggered, exited := rec.counts()
	assert.Equal(t, 1, entered)
	assert.Zero(t, triggered)
	// Exited only follows a trigger.
	assert.Zero(t, exited)
}

func TestHysteresisKeepsZone(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	// Enter at 2px, wander out to 20px: still inside the 40px exit
	// threshold, so the dwell timer keeps running.
	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	q.Post(func() { d.Update(geometry.Point{X: 1980, Y: 600}) })

	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
	entered, _, _ := rec.counts()
	assert.Equal(t, 1, entered)
}

func TestExitedEmittedAfterTrigger(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	q.Post(func() { d.Update(geometry.Point{X: 500, Y: 600}) })
	q.Sync()
	_, _, exited := rec.counts()
	assert.Equal(t, 1, exited)
}

func TestNoRetriggerWithoutExit(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 600}) })
	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	// Keep feeding in-zone positions; no second trigger.
	for i := 0; i < 5; i++ {
		q.Post(func() { d.Update(geometry.Point{X: 1999, Y: 600}) })
		time.Sleep(10 * time.Millisecond)
	}
	q.Sync()
	_, triggered, _ := rec.counts()
	assert.Equal(t, 1, triggered)
}

func TestArmAfterEntry(t *testing.T) {
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), singleDisplay(), q, rec.handlers())

	// Simulate the post-handoff state: cursor warped into the zone.
	q.Post(func() {
		d.Update(geometry.Point{X: 1998, Y: 480})
		d.ArmAfterEntry()
	})
	q.Sync()

	// Staying in the zone past the dwell time must not fire.
	time.Sleep(60 * time.Millisecond)
	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 481}) })
	time.Sleep(60 * time.Millisecond)
	q.Sync()
	_, triggered, _ := rec.counts()
	assert.Zero(t, triggered)

	// Leave past the exit threshold and come back: trigger fires.
	q.Post(func() { d.Update(geometry.Point{X: 1000, Y: 480}) })
	q.Post(func() { d.Update(geometry.Point{X: 1998, Y: 480}) })
	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAdjacentDisplayDoesNotTrigger(t *testing.T) {
	layout := geometry.NewLayout([]geometry.Rect{
		{X: 0, Y: 0, W: 1920, H: 1080},
		{X: 1920, Y: 0, W: 1600, H: 1080},
	})
	q := sched.New()
	defer q.Close()
	rec := &recorder{}
	d := New(testConfig(), layout, q, rec.handlers())

	// Sweep across the interior seam between the two displays.
	for x := 1900.0; x <= 1940; x += 2 {
		x := x
		q.Post(func() { d.Update(geometry.Point{X: x, Y: 500}) })
	}
	q.Sync()
	time.Sleep(60 * time.Millisecond)
	q.Sync()

	entered, triggered, _ := rec.counts()
	assert.Zero(t, entered)
	assert.Zero(t, triggered)

	// The panel's own right edge is a true boundary and still works.
	q.Post(func() { d.Update(geometry.Point{X: 3518, Y: 500}) })
	assert.Eventually(t, func() bool {
		_, n, _ := rec.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
}
