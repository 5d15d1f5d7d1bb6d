package libchat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotAuthenticated is returned when a connection is requested without
	// a logged-in user session.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrNotConnected is returned by operations that require an established,
	// handshaken connection.
	ErrNotConnected = errors.New("session is not connected")
	// ErrShutdown is returned while the session is in the terminal shutdown
	// state. Only an explicit Reconnect clears it.
	ErrShutdown = errors.New("session is shut down, manual reconnect required")
	// ErrAlreadyConnecting is returned when a connection attempt is already
	// in flight.
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")
	// ErrTooManyAttempts is returned when the cap on outstanding connection
	// attempts has been reached.
	ErrTooManyAttempts = errors.New("too many outstanding connection attempts")

	ErrConnectionClosed = errors.New("connection has been closed")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrTerminated       = errors.New("session teardown")
	ErrHandshakeTimeout = errors.New("authenticated handshake timed out")

	// ErrEmptyMessage is returned when the trimmed message content is empty.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrSendTimeout marks a message whose confirmation never arrived.
	ErrSendTimeout = errors.New("message was not acknowledged in time")
)

// ErrCredential wraps a failure to obtain a session token. It aborts the
// connection attempt and counts as a failed attempt for the reconnection
// policy.
type ErrCredential struct {
	err error
}

func (e ErrCredential) Error() string {
	return fmt.Sprintf("cannot obtain session credential: %s", e.err)
}

func (e ErrCredential) Unwrap() error { return e.err }

func WrapErrCredential(err error) error {
	if err == nil {
		return nil
	}
	return ErrCredential{err: err}
}

// ErrReconnectExhausted wraps the last connection error once the reconnect
// ceiling has been reached and the session enters shutdown.
type ErrReconnectExhausted struct {
	err      error
	attempts int
}

func (e ErrReconnectExhausted) Error() string {
	return fmt.Sprintf("giving up after %d reconnect attempts: %s", e.attempts, e.err)
}

func (e ErrReconnectExhausted) Unwrap() error { return e.err }
