package session

import "time"

// State is the connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSocketOpen   State = "socket_open"
	StateReady        State = "ready"
	StateError        State = "error"
)

// StatusEvent describes one lifecycle transition. Attempt and Wait are
// populated for connecting/error events, CloseCode and CloseReason for
// disconnects, Err for failures.
type StatusEvent struct {
	State       State
	Attempt     int
	Wait        time.Duration
	CloseCode   int
	CloseReason string
	Err         error
}
