package libchat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

// mockTransport is a testify-backed Transport double for expectation-style
// tests.
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockTransport) Send(cmd Command) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *mockTransport) Close() {
	m.Called()
}

func (m *mockTransport) CloseChan() CloseChan {
	args := m.Called()
	return args.Get(0).(CloseChan)
}

func (m *mockTransport) CloseErr() error {
	return m.Called().Error(0)
}

// fakeTransport is a scripted Transport: tests inspect sent commands, push
// envelopes as if the server had produced them, and close the connection
// with a chosen reason.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []Command
	sendErr  error
	openErr  error
	closeErr error

	recv      chan<- Envelope
	recvReady chan struct{}
	closeC    CloseChan
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recvReady: make(chan struct{}),
		closeC:    make(CloseChan),
	}
}

func (f *fakeTransport) Open(context.Context) error {
	return f.openErr
}

func (f *fakeTransport) Send(cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeTransport) Close() {
	f.closeOnce.Do(func() {
		close(f.closeC)
	})
}

func (f *fakeTransport) CloseChan() CloseChan { return f.closeC }

func (f *fakeTransport) CloseErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

// closeWith simulates the server dropping the connection.
func (f *fakeTransport) closeWith(err error) {
	f.mu.Lock()
	f.closeErr = err
	f.mu.Unlock()
	f.Close()
}

// emit delivers an envelope, blocking until the transport has been wired to
// a session.
func (f *fakeTransport) emit(env Envelope) {
	<-f.recvReady
	f.recv <- env
}

func (f *fakeTransport) sentCommands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.sent))
	copy(out, f.sent)
	return out
}

// factory wires the fake into a session and records how often it was asked
// for a connection.
func (f *fakeTransport) factory(dials *atomic.Int32) TransportFactory {
	return func(ctx context.Context, params ConnParams, recv chan<- Envelope) Transport {
		if dials != nil {
			dials.Add(1)
		}
		f.mu.Lock()
		f.recv = recv
		f.mu.Unlock()
		close(f.recvReady)
		return f
	}
}

// failingFactory produces transports whose dial always fails, for driving
// the reconnection policy.
func failingFactory(dials *atomic.Int32, err error) TransportFactory {
	return func(ctx context.Context, params ConnParams, recv chan<- Envelope) Transport {
		if dials != nil {
			dials.Add(1)
		}
		f := newFakeTransport()
		f.openErr = err
		return f
	}
}

// scheduledCall records one timer registration on the fake scheduler.
type scheduledCall struct {
	d  time.Duration
	fn func()
}

// fakeScheduler replaces Session.afterFunc. Scheduled callbacks never fire
// on their own; tests invoke them explicitly. The returned timers are inert,
// so Stop calls by the code under test are harmless; firing a callback that
// the session already stopped must be a no-op anyway, which is exactly what
// the episode and terminal-status guards are for.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
}

func (f *fakeScheduler) afterFunc(d time.Duration, fn func()) *time.Timer {
	f.mu.Lock()
	f.calls = append(f.calls, scheduledCall{d: d, fn: fn})
	f.mu.Unlock()

	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeScheduler) at(i int) scheduledCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeScheduler) last() scheduledCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// lastWhere returns the most recent registration matching pred.
func (f *fakeScheduler) lastWhere(pred func(scheduledCall) bool) (scheduledCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if pred(f.calls[i]) {
			return f.calls[i], true
		}
	}
	return scheduledCall{}, false
}
