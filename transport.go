package libchat

import (
	"context"
)

type (
	CloseChan chan struct{}

	// Transport is one real-time connection to the chat server. Inbound
	// envelopes are delivered on the recv channel handed to the factory;
	// outbound commands go through Send.
	Transport interface {
		// Open dials and prepares the connection. It returns once the
		// socket is established; the authenticated handshake arrives later
		// as an EventConnected envelope on the recv channel.
		Open(ctx context.Context) error

		// Send writes a command to the server.
		Send(cmd Command) error

		// CloseChan returns a channel that will be closed when the
		// connection is closed.
		CloseChan() CloseChan

		// CloseErr returns an error that explains why the connection was
		// closed. If the connection closed normally, CloseErr returns nil.
		CloseErr() error

		// Close closes the connection and cleans up its resources.
		Close()
	}

	// TransportFactory builds a Transport for one connection attempt.
	TransportFactory func(ctx context.Context, params ConnParams, recv chan<- Envelope) Transport
)

type noopTransport struct{}

func (noopTransport) Open(context.Context) error { return nil }

func (noopTransport) Send(Command) error { return nil }

func (noopTransport) Close() {}

func (noopTransport) CloseChan() CloseChan { return nil }

func (noopTransport) CloseErr() error { return nil }
