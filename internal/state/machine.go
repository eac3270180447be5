// Package state holds the authoritative forwarding state machine.
package state

import (
	"log/slog"
	"time"

	"inputshare/internal/sched"
)

// State is the forwarding ownership state of the local peer.
type State int

const (
	Idle State = iota
	// Candidate is the transient step between an edge trigger and the
	// activate send. Transitions through it are atomic; observers only
	// ever see Activating next.
	Candidate
	Activating
	Forwarding
	Returning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Candidate:
		return "candidate"
	case Activating:
		return "activating"
	case Forwarding:
		return "forwarding"
	case Returning:
		return "returning"
	}
	return "unknown"
}

// DefaultActivationTimeout bounds how long an activate may go
// unanswered.
const DefaultActivationTimeout = 2 * time.Second

// Callbacks observe the machine. OnShouldSendActivate and
// OnShouldSendDeactivate fire exactly once on their respective outbound
// transitions; OnTransition fires for every externally visible change.
// All callbacks run on the machine's queue.
type Callbacks struct {
	OnShouldSendActivate   func()
	OnShouldSendDeactivate func()
	OnTransition           func(from, to State)
}

// Machine serializes all transitions through a single queue. Every
// method must be called on that queue.
type Machine struct {
	queue             *sched.Queue
	log               *slog.Logger
	cb                Callbacks
	activationTimeout time.Duration

	state   State
	timeout *sched.Timer
}

// New creates a machine in Idle. A zero activationTimeout selects the
// default.
func New(queue *sched.Queue, activationTimeout time.Duration, cb Callbacks, log *slog.Logger) *Machine {
	if activationTimeout <= 0 {
		activationTimeout = DefaultActivationTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		queue:             queue,
		log:               log.With("component", "state"),
		cb:                cb,
		activationTimeout: activationTimeout,
	}
}

// Current returns the state as last observed on the queue.
func (m *Machine) Current() State {
	return m.state
}

func (m *Machine) transition(to State) {
	from := m.state
	m.state = to
	m.log.Debug("transition", "from", from.String(), "to", to.String())
	if m.cb.OnTransition != nil {
		m.cb.OnTransition(from, to)
	}
}

// EdgeTriggered starts a handoff. Ignored outside Idle.
func (m *Machine) EdgeTriggered() {
	if m.state != Idle {
		m.log.Debug("edge trigger ignored", "state", m.state.String())
		return
	}
	// Candidate is internal; the visible transition is Idle->Activating.
	m.transition(Activating)
	if m.cb.OnShouldSendActivate != nil {
		m.cb.OnShouldSendActivate()
	}
	m.timeout = m.queue.PostDelayed(m.activationTimeout, m.activationTimedOut)
}

func (m *Machine) activationTimedOut() {
	if m.state != Activating {
		return
	}
	m.log.Warn("activation timed out", "timeout", m.activationTimeout)
	m.timeout = nil
	m.transition(Idle)
}

// ReceivedActivated completes the handshake. A late arrival after the
// timeout is ignored.
func (m *Machine) ReceivedActivated() {
	if m.state != Activating {
		m.log.Debug("activated ignored", "state", m.state.String())
		return
	}
	m.timeout.Cancel()
	m.timeout = nil
	m.transition(Forwarding)
}

// ReturnTriggered starts the hand-back. Ignored outside Forwarding.
func (m *Machine) ReturnTriggered() {
	if m.state != Forwarding {
		m.log.Debug("return trigger ignored", "state", m.state.String())
		return
	}
	m.transition(Returning)
	if m.cb.OnShouldSendDeactivate != nil {
		m.cb.OnShouldSendDeactivate()
	}
}

// ReceivedDeactivated acknowledges the hand-back.
func (m *Machine) ReceivedDeactivated() {
	if m.state != Returning {
		m.log.Debug("deactivated ignored", "state", m.state.String())
		return
	}
	m.transition(Idle)
}

// ReceivedDeactivate handles the receiver initiating the return while
// we are forwarding. Terminal; no deactivate is emitted locally.
func (m *Machine) ReceivedDeactivate() {
	if m.state != Forwarding {
		m.log.Debug("deactivate ignored", "state", m.state.String())
		return
	}
	m.transition(Idle)
}

// Reset forces Idle from any state: connection lost or user disconnect.
// Idempotent.
func (m *Machine) Reset() {
	m.timeout.Cancel()
	m.timeout = nil
	if m.state == Idle {
		return
	}
	m.transition(Idle)
}
