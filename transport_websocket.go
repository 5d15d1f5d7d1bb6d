package libchat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fasthttp/websocket"
)

// wsTransport is the websocket implementation of Transport. It owns one
// socket: a read pump decoding server envelopes onto the recv channel and a
// write pump serializing commands, interleaved with keep-alive pings.
type wsTransport struct {
	logger    Logger
	dialer    *websocket.Dialer
	params    ConnParams
	heartbeat time.Duration

	conn            *websocket.Conn
	closeChan       CloseChan
	closeOnce       sync.Once
	closeReason     error
	closeReasonOnce sync.Once

	recv chan<- Envelope // envelopes decoded from the wire
	send chan Command    // commands to be sent over the wire
}

func newWsTransport(
	logger Logger,
	dialer *websocket.Dialer,
	params ConnParams,
	heartbeat time.Duration,
	recv chan<- Envelope,
) *wsTransport {
	return &wsTransport{
		logger:    logger.WithField("net", "ws_transport"),
		dialer:    dialer,
		params:    params,
		heartbeat: heartbeat,
		recv:      recv,
		send:      make(chan Command),
		closeChan: make(CloseChan),
	}
}

// NewWebsocketTransportFactory builds the default Transport used by the
// session. handshakeTimeout bounds the dial; heartbeat is the ping interval
// that keeps idle connections open.
func NewWebsocketTransportFactory(
	logger Logger,
	handshakeTimeout time.Duration,
	heartbeat time.Duration,
) TransportFactory {
	return func(ctx context.Context, params ConnParams, recv chan<- Envelope) Transport {
		return newWsTransport(
			logger,
			&websocket.Dialer{HandshakeTimeout: handshakeTimeout},
			params,
			heartbeat,
			recv,
		)
	}
}

// Send queues a command for the write pump. It fails fast once the
// connection has been closed so callers can resolve pending messages.
func (w *wsTransport) Send(cmd Command) error {
	select {
	case w.send <- cmd:
		return nil
	case <-w.closeChan:
		return ErrConnectionClosed
	}
}

// Close terminates the connection and releases both pumps.
func (w *wsTransport) Close() {
	w.safeClose()
}

// Open dials the server. It returns once the socket is established; the
// authenticated handshake is delivered later as an EventConnected envelope.
func (w *wsTransport) Open(ctx context.Context) error {
	conn, resp, err := w.dialer.Dial(w.params.URL.String(), w.params.Header)

	if err = w.handleDialError(resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", w.params.URL.Host, err)
		return err
	}

	w.logger.Debugf("success opening connection to %s", w.params.URL.Host)

	w.conn = conn

	// Answer server pings ourselves so keep-alive works without involving
	// the session at all.
	conn.SetPingHandler(func(appData string) error {
		w.logger.Debugln("<= [PING]")
		deadline := time.Now().Add(time.Second)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})

	conn.SetPongHandler(func(string) error {
		w.logger.Debugln("<= [PONG]")
		return nil
	})

	go w.read(ctx)
	go w.write(ctx)

	return nil
}

func (w *wsTransport) CloseChan() CloseChan {
	return w.closeChan
}

func (w *wsTransport) CloseErr() error {
	return w.closeReason
}

func (w *wsTransport) read(ctx context.Context) {
	defer w.safeClose()

	for {
		select {
		case <-w.closeChan:
			w.setCloseReason(ErrTerminated)
			return
		case <-ctx.Done():
			w.setCloseReason(ErrTerminated)
			return
		default:
			_, bts, err := w.conn.ReadMessage()
			if err != nil {
				w.logger.Errorf("error occurred on websocket read: %s", err)

				w.setCloseReason(errors.Wrap(
					ErrConnectionClosed,
					"error occurred on websocket read: "+err.Error(),
				))
				return
			}

			var env Envelope
			if err := json.Unmarshal(bts, &env); err != nil {
				w.logger.Warnf("discarding undecodable frame: %s", err)
				continue
			}

			w.logger.Debugf("<= [%s]", env.Type)

			select {
			case w.recv <- env:
			case <-w.closeChan:
				w.setCloseReason(ErrTerminated)
				return
			}
		}
	}
}

func (w *wsTransport) write(ctx context.Context) {
	defer w.safeClose()

	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeChan:
			w.setCloseReason(ErrTerminated)
			_ = w.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ctx.Done():
			w.setCloseReason(ErrTerminated)
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			w.logger.Debugln("=> [PING]")
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
				return
			}
		case cmd := <-w.send:
			bts, err := json.Marshal(cmd)
			if err != nil {
				w.logger.Errorf("cannot marshal %s command: %s", cmd.Type, err)
				continue
			}

			w.logger.Debugf("=> [%s]", cmd.Type)

			_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))

			if err := w.conn.WriteMessage(websocket.TextMessage, bts); err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					w.setCloseReason(ErrConnectionClosed)
				} else {
					w.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
				}
				return
			}
		}
	}
}

func (w *wsTransport) safeClose() {
	w.closeOnce.Do(w.close)
}

func (w *wsTransport) close() {
	if w.conn != nil {
		_ = w.conn.Close()
	}
	close(w.closeChan)
}

func (w *wsTransport) setCloseReason(err error) {
	w.closeReasonOnce.Do(func() {
		w.closeReason = err
	})
}

func (w *wsTransport) handleDialError(resp *http.Response, err error) error {
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, readErr := io.ReadAll(resp.Body)
			if readErr == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.Wrap(ErrNotAuthenticated, msg)
		}
	}

	if err != nil {
		return errors.Wrap(ErrCannotConnect, err.Error())
	}

	return nil
}
