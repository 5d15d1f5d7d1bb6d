package libchat

// ConnectionState represents the lifecycle state of the real-time connection.
type ConnectionState int

const (
	// StateDisconnected means no transport is active.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a connection attempt is in flight. The state
	// covers both the socket dial and the authenticated handshake.
	StateConnecting

	// StateConnected means the transport is open and the server has
	// acknowledged the authenticated handshake.
	StateConnected
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateEvent describes a state transition, with the error that caused it
// when the transition was involuntary.
type StateEvent struct {
	Old ConnectionState
	New ConnectionState
	Err error
}

// sessionEvent keys the session-level emitter.
type sessionEvent string

const (
	eventStateChange  sessionEvent = "state_change"
	eventReconnecting sessionEvent = "reconnecting"
	eventShutdown     sessionEvent = "shutdown"
	eventNotice       sessionEvent = "notice"
)
