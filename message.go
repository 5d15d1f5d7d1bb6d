package libchat

import (
	"time"
)

// MessageStatus is the per-message delivery state machine.
type MessageStatus string

const (
	// StatusSending marks an optimistic local append awaiting confirmation.
	StatusSending MessageStatus = "sending"
	// StatusConfirmed is terminal: the server acknowledged the message and
	// assigned its final id.
	StatusConfirmed MessageStatus = "confirmed"
	// StatusFailed is terminal: the send errored or timed out.
	StatusFailed MessageStatus = "failed"
	// StatusSent marks messages loaded from history. It never transitions.
	StatusSent MessageStatus = "sent"
)

// terminal reports whether no further transition out of the status is
// permitted.
func (s MessageStatus) terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusSent
}

// Message is one entry of the local timeline.
type Message struct {
	ID             string        `json:"id"`
	TempID         string        `json:"tempId,omitempty"`
	Content        string        `json:"content"`
	CreatedAt      time.Time     `json:"createdAt"`
	AuthorID       string        `json:"authorId"`
	AuthorUsername string        `json:"authorUsername"`
	RoomID         string        `json:"roomId"`
	MessageType    string        `json:"messageType"`
	Status         MessageStatus `json:"status"`
	// Err carries the failure reason when Status is StatusFailed.
	Err string `json:"error,omitempty"`
}

// resolve applies a guarded transition. Only sending messages may move; a
// duplicate or late event against a terminal status is a no-op.
func (m *Message) resolve(status MessageStatus) bool {
	if m.Status.terminal() {
		return false
	}
	m.Status = status
	return true
}
