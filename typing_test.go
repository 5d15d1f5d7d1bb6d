package libchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingTracksRemoteUsers(t *testing.T) {
	fx := newWiredSession(t)

	fx.dispatch(t, EventUserTyping, UserTypingPayload{
		UserID: "u2", Username: "bob", RoomID: "r1", IsTyping: true,
	})
	fx.dispatch(t, EventUserTyping, UserTypingPayload{
		UserID: "u3", Username: "carol", RoomID: "r1", IsTyping: true,
	})

	assert.Equal(t, []string{"bob", "carol"}, fx.s.TypingUsers())

	fx.dispatch(t, EventUserTyping, UserTypingPayload{
		UserID: "u2", Username: "bob", RoomID: "r1", IsTyping: false,
	})

	assert.Equal(t, []string{"carol"}, fx.s.TypingUsers())
}

func TestTypingIgnoresSelf(t *testing.T) {
	fx := newWiredSession(t)

	fx.dispatch(t, EventUserTyping, UserTypingPayload{
		UserID: "u1", Username: "alice", RoomID: "r1", IsTyping: true,
	})

	assert.Empty(t, fx.s.TypingUsers(), "own typing events carry no local state")
}

func TestTypingDuplicateEventsAreNoOps(t *testing.T) {
	fx := newWiredSession(t)

	ev := UserTypingPayload{UserID: "u2", Username: "bob", RoomID: "r1", IsTyping: true}
	fx.dispatch(t, EventUserTyping, ev)
	fx.dispatch(t, EventUserTyping, ev)

	assert.Equal(t, []string{"bob"}, fx.s.TypingUsers())

	stop := ev
	stop.IsTyping = false
	fx.dispatch(t, EventUserTyping, stop)
	fx.dispatch(t, EventUserTyping, stop)

	assert.Empty(t, fx.s.TypingUsers())
}

func TestTypingNotificationsAreFireAndForget(t *testing.T) {
	fx := newWiredSession(t)

	fx.s.StartTyping("r1")
	fx.s.StopTyping("r1")

	cmds := fx.tr.sentCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, CmdTypingStart, cmds[0].Type)
	assert.Equal(t, CmdTypingStop, cmds[1].Type)

	assert.Empty(t, fx.s.TypingUsers())
}

func TestTypingDroppedWhileDisconnected(t *testing.T) {
	fx := newWiredSession(t)
	fx.s.Disconnect()

	fx.s.StartTyping("r1")

	assert.Empty(t, fx.tr.sentCommands())
}

func TestTypingClearedOnDisconnect(t *testing.T) {
	fx := newWiredSession(t)

	fx.dispatch(t, EventUserTyping, UserTypingPayload{
		UserID: "u2", Username: "bob", RoomID: "r1", IsTyping: true,
	})
	require.NotEmpty(t, fx.s.TypingUsers())

	fx.s.Disconnect()

	assert.Empty(t, fx.s.TypingUsers())
}
