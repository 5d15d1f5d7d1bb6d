package libchat

import (
	"encoding/json"
)

// EventType identifies a server-pushed event on the wire.
type EventType string

const (
	// EventConnected is the authenticated handshake acknowledgement. Only
	// after receiving it is the session logically connected.
	EventConnected EventType = "connected"
	// EventDisconnect announces that the server is dropping the connection.
	EventDisconnect EventType = "disconnect"
	// EventError carries a mid-session server error.
	EventError EventType = "error"
	// EventConnectError carries a handshake failure.
	EventConnectError EventType = "connect_error"
	// EventNewMessage carries a message pushed to one of the joined rooms.
	EventNewMessage EventType = "new_message"
	// EventUserTyping reports a remote user's typing indicator.
	EventUserTyping EventType = "user_typing"
	// EventMessageConfirmed resolves an optimistic send with the final
	// server-assigned message id.
	EventMessageConfirmed EventType = "message_confirmed"
	// EventMessageError fails an optimistic send with a server error.
	EventMessageError EventType = "message_error"
	// EventJoinedRoom acknowledges a join request.
	EventJoinedRoom EventType = "joined_room"
	// EventLeftRoom acknowledges a leave request.
	EventLeftRoom EventType = "left_room"
)

// CommandType identifies a client-to-server request on the wire.
type CommandType string

const (
	CmdJoinRoom    CommandType = "join_room"
	CmdLeaveRoom   CommandType = "leave_room"
	CmdTypingStart CommandType = "typing_start"
	CmdTypingStop  CommandType = "typing_stop"
	CmdSendMessage CommandType = "send_message"
)

// Envelope is the wire format for every server-pushed event: a type tag plus
// a raw payload decoded per event type.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is the wire format for every client request.
type Command struct {
	Type    CommandType `json:"type"`
	Payload any         `json:"payload"`
}

// ConnectedPayload identifies the local user once the handshake succeeds.
type ConnectedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// DisconnectPayload carries the server's disconnect reason. A reason
// containing "client" marks a disconnect the client itself requested.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload carries a server-side error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// UserTypingPayload reports one user's typing indicator in a room.
type UserTypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageConfirmedPayload maps a pending tempId to its server identity.
type MessageConfirmedPayload struct {
	TempID string `json:"tempId"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// MessageErrorPayload fails a pending tempId with a server-supplied reason.
type MessageErrorPayload struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

// RoomPayload acknowledges room membership changes.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type typingPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID      string `json:"roomId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	TempID      string `json:"tempId"`
}
