// Package sched provides the serial work queue a session runs on.
package sched

import (
	"sync"
	"time"
)

// Queue is a FIFO work queue serviced by a single worker goroutine.
// Everything that touches session state is posted here, which gives a
// total order over state transitions without locks.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
	stopped sync.WaitGroup
}

// New creates a queue and starts its worker.
func New() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	q.stopped.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.stopped.Done()
	for {
		q.mu.Lock()
		for len(q.tasks) > 0 {
			fn := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			fn()
			q.mu.Lock()
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case <-q.wake:
		case <-q.done:
			// Drain whatever was posted before Close.
			q.mu.Lock()
			remaining := q.tasks
			q.tasks = nil
			q.mu.Unlock()
			for _, fn := range remaining {
				fn()
			}
			return
		}
	}
}

// Post enqueues fn for execution on the worker. Safe to call from any
// goroutine, including OS callback threads; it never blocks. Posting to
// a closed queue is a no-op.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Sync posts a barrier task and waits for it to run. Mainly for tests
// and shutdown paths that need to observe all previously posted work.
func (q *Queue) Sync() {
	ch := make(chan struct{})
	q.Post(func() { close(ch) })
	select {
	case <-ch:
	case <-q.done:
	}
}

// Close stops the worker after the current backlog drains. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
	q.stopped.Wait()
}

// Timer is a cancellable delayed task bound to a queue.
type Timer struct {
	mu        sync.Mutex
	t         *time.Timer
	cancelled bool
}

// PostDelayed schedules fn to run on the queue after d. The returned
// Timer can be cancelled; cancellation after the task has started has
// no effect.
func (q *Queue) PostDelayed(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		q.Post(func() {
			tm.mu.Lock()
			cancelled := tm.cancelled
			tm.mu.Unlock()
			if !cancelled {
				fn()
			}
		})
	})
	return tm
}

// Cancel stops the timer. Safe to call multiple times and on nil.
func (tm *Timer) Cancel() {
	if tm == nil {
		return
	}
	tm.mu.Lock()
	tm.cancelled = true
	tm.mu.Unlock()
	tm.t.Stop()
}
