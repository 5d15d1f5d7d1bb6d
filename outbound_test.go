package libchat

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wiredFixture wires a connected session around a standalone fake transport,
// without running the dial flow, so every dispatch is synchronous.
type wiredFixture struct {
	s     *Session
	tr    *fakeTransport
	sched *fakeScheduler
}

func newWiredSession(t *testing.T) *wiredFixture {
	t.Helper()

	s, err := NewSession(Config{URL: "ws://chat.test/ws"}, NopLogger(),
		func(ctx context.Context) (string, error) { return "token", nil })
	require.NoError(t, err)

	fx := &wiredFixture{
		s:     s,
		tr:    newFakeTransport(),
		sched: &fakeScheduler{},
	}
	s.afterFunc = fx.sched.afterFunc

	s.mu.Lock()
	s.state = StateConnected
	s.transport = fx.tr
	s.self = ConnectedPayload{UserID: "u1", Username: "alice"}
	s.mu.Unlock()

	return fx
}

func (f *wiredFixture) dispatch(t *testing.T, typ EventType, payload any) {
	t.Helper()
	f.s.dispatch(episodeOf(f.s), envelope(t, typ, payload))
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	s, err := NewSession(Config{URL: "ws://chat.test/ws"}, NopLogger(),
		func(ctx context.Context) (string, error) { return "token", nil })
	require.NoError(t, err)

	_, err = s.SendMessage("r1", "hello", "")

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, s.Messages(), "no optimistic append on rejection")
}

func TestSendMessageEmptyContent(t *testing.T) {
	fx := newWiredSession(t)

	_, err := fx.s.SendMessage("r1", "   \t ", "")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, fx.s.Messages())
	assert.Empty(t, fx.tr.sentCommands())
}

func TestSendMessageOptimisticAppend(t *testing.T) {
	fx := newWiredSession(t)

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.TempID)
	assert.Equal(t, StatusSending, msg.Status)
	assert.Equal(t, "alice", msg.AuthorUsername)
	assert.Equal(t, "text", msg.MessageType)

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusSending, timeline[0].Status)

	cmds := fx.tr.sentCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, CmdSendMessage, cmds[0].Type)

	payload, ok := cmds[0].Payload.(sendMessagePayload)
	require.True(t, ok)
	assert.Equal(t, msg.TempID, payload.TempID)
	assert.Equal(t, "hello", payload.Content)

	require.Equal(t, 1, fx.sched.count())
	assert.Equal(t, DefaultSendTimeout, fx.sched.at(0).d)
}

func TestMessageConfirmedIsIdempotent(t *testing.T) {
	fx := newWiredSession(t)

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	confirm := MessageConfirmedPayload{TempID: msg.TempID, ID: "m-1", Status: "confirmed"}
	fx.dispatch(t, EventMessageConfirmed, confirm)

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusConfirmed, timeline[0].Status)
	assert.Equal(t, "m-1", timeline[0].ID)
	assert.Empty(t, timeline[0].TempID, "server identity replaces the tempId linkage")

	// A duplicate confirmation must be a no-op.
	fx.dispatch(t, EventMessageConfirmed, confirm)

	timeline = fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusConfirmed, timeline[0].Status)

	fx.s.mu.Lock()
	pending := len(fx.s.pending)
	fx.s.mu.Unlock()
	assert.Zero(t, pending, "failure timer must be cancelled on confirmation")
}

func TestSendTimeoutMarksFailed(t *testing.T) {
	fx := newWiredSession(t)

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	// The 30s failure timer fires before any server event.
	fx.sched.at(0).fn()

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusFailed, timeline[0].Status)
	assert.Equal(t, ErrSendTimeout.Error(), timeline[0].Err)

	// A confirmation straggling in afterwards must not resurrect it.
	fx.dispatch(t, EventMessageConfirmed, MessageConfirmedPayload{
		TempID: msg.TempID, ID: "m-1", Status: "confirmed",
	})

	assert.Equal(t, StatusFailed, fx.s.Messages()[0].Status)
}

func TestMessageErrorSurfacesNotice(t *testing.T) {
	fx := newWiredSession(t)

	var notices []string
	fx.s.OnNotice(func(msg string) { notices = append(notices, msg) })

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	fx.dispatch(t, EventMessageError, MessageErrorPayload{TempID: msg.TempID, Error: "room full"})

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusFailed, timeline[0].Status)
	assert.Equal(t, "room full", timeline[0].Err)

	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "room full")

	// A duplicate error event changes nothing and emits no second notice.
	fx.dispatch(t, EventMessageError, MessageErrorPayload{TempID: msg.TempID, Error: "room full"})
	assert.Len(t, notices, 1)
}

func TestSendWriteErrorMarksFailed(t *testing.T) {
	fx := newWiredSession(t)
	fx.tr.sendErr = errors.New("broken pipe")

	var notices []string
	fx.s.OnNotice(func(msg string) { notices = append(notices, msg) })

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.Error(t, err)
	assert.Equal(t, StatusSending, msg.Status, "returned snapshot predates the failure")

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusFailed, timeline[0].Status)

	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "broken pipe")

	// Send errors stay scoped to the message: still connected.
	assert.Equal(t, StateConnected, fx.s.State())
}

func TestInboundNewMessageAppend(t *testing.T) {
	fx := newWiredSession(t)

	fx.dispatch(t, EventNewMessage, Message{
		ID:             "m-7",
		Content:        "hi there",
		AuthorID:       "u2",
		AuthorUsername: "bob",
		RoomID:         "r1",
		MessageType:    "text",
		Status:         StatusSent,
		CreatedAt:      time.Now().UTC(),
	})

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, "bob", timeline[0].AuthorUsername)
	assert.Equal(t, StatusSent, timeline[0].Status)
}

func TestInboundNewMessageDoesNotDuplicatePending(t *testing.T) {
	fx := newWiredSession(t)

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	// The server may echo the message carrying our tempId before the
	// confirmation event. Only the confirmation path may touch the entry.
	fx.dispatch(t, EventNewMessage, Message{
		TempID:  msg.TempID,
		Content: "hello",
		RoomID:  "r1",
	})

	require.Len(t, fx.s.Messages(), 1)
	assert.Equal(t, StatusSending, fx.s.Messages()[0].Status)
}

func TestAddHistoryPinsStatusSent(t *testing.T) {
	fx := newWiredSession(t)

	_, err := fx.s.SendMessage("r1", "recent", "")
	require.NoError(t, err)

	fx.s.AddHistory([]Message{
		{ID: "m-1", Content: "old one", Status: StatusConfirmed},
		{ID: "m-2", Content: "old two", TempID: "stale"},
	})

	timeline := fx.s.Messages()
	require.Len(t, timeline, 3)
	assert.Equal(t, "m-1", timeline[0].ID)
	assert.Equal(t, StatusSent, timeline[0].Status)
	assert.Equal(t, StatusSent, timeline[1].Status)
	assert.Empty(t, timeline[1].TempID)
	assert.Equal(t, "recent", timeline[2].Content)
}

func TestVoluntaryTeardownCancelsPendingTimers(t *testing.T) {
	fx := newWiredSession(t)

	_, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	fx.s.Disconnect()

	fx.s.mu.Lock()
	pending := len(fx.s.pending)
	fx.s.mu.Unlock()
	assert.Zero(t, pending)

	timeline := fx.s.Messages()
	require.Len(t, timeline, 1)
	assert.Equal(t, StatusFailed, timeline[0].Status, "an unresolvable send fails instead of hanging")

	// The stopped timer firing later must be a zombie no-op.
	fx.sched.at(0).fn()
	assert.Equal(t, StatusFailed, fx.s.Messages()[0].Status)
}

func TestTimelineSnapshotsAreStable(t *testing.T) {
	fx := newWiredSession(t)

	msg, err := fx.s.SendMessage("r1", "hello", "")
	require.NoError(t, err)

	before := fx.s.Messages()
	require.Len(t, before, 1)

	fx.dispatch(t, EventMessageConfirmed, MessageConfirmedPayload{TempID: msg.TempID, ID: "m-1"})

	assert.Equal(t, StatusSending, before[0].Status, "published snapshots never mutate in place")
	assert.Equal(t, StatusConfirmed, fx.s.Messages()[0].Status)
}
