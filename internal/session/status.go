package session

// Status is the user-visible connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusForwarding   Status = "forwarding"
)

// Observer receives status updates from the session. Callbacks run on
// the session queue; UI implementations must hand off to their own
// scheduler and return promptly. No UI types cross this boundary.
type Observer interface {
	StatusChanged(st Status, reason string)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(st Status, reason string)

func (f ObserverFunc) StatusChanged(st Status, reason string) { f(st, reason) }
