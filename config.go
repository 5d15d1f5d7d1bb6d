package libchat

import (
	"time"
)

const (
	DefaultHandshakeTimeout      = 10 * time.Second
	DefaultSendTimeout           = 30 * time.Second
	DefaultHeartbeatInterval     = 25 * time.Second
	DefaultBackoffBase           = time.Second
	DefaultBackoffMax            = 30 * time.Second
	DefaultBackoffJitter         = time.Second
	DefaultMaxReconnectAttempts  = 5
	DefaultMaxConcurrentAttempts = 3
)

// Config tunes the session. The zero value of every field but URL falls back
// to the documented default.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://chat.example.com/ws.
	URL string

	// HandshakeTimeout bounds both the socket dial and the wait for the
	// authenticated handshake acknowledgement.
	HandshakeTimeout time.Duration

	// SendTimeout is how long an optimistic message waits for confirmation
	// before being marked failed.
	SendTimeout time.Duration

	// HeartbeatInterval is the keep-alive ping period on idle connections.
	HeartbeatInterval time.Duration

	// BackoffBase, BackoffMax and BackoffJitter shape the reconnect delay:
	// min(base*2^n, max) plus a uniform jitter in [0, jitter).
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter time.Duration

	// MaxReconnectAttempts is the number of consecutive involuntary
	// disconnects after which the session shuts down.
	MaxReconnectAttempts int

	// MaxConcurrentAttempts caps outstanding connection attempts so stray
	// timers cannot stack dials.
	MaxConcurrentAttempts int

	// Authenticated reports whether the application still holds a user
	// session. It is re-read every time a scheduled reconnect fires. nil
	// means always authenticated.
	Authenticated func() bool
}

func (c *Config) defaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffJitter == 0 {
		c.BackoffJitter = DefaultBackoffJitter
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.MaxConcurrentAttempts == 0 {
		c.MaxConcurrentAttempts = DefaultMaxConcurrentAttempts
	}
	if c.Authenticated == nil {
		c.Authenticated = func() bool { return true }
	}
}
