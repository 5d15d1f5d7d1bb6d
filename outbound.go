package libchat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SendMessage appends an optimistic timeline entry with status sending,
// emits the send request carrying a fresh tempId and arms the failure timer.
// The entry resolves to confirmed via a message_confirmed event, or to
// failed via a message_error event, a write error, or the timer firing —
// whichever comes first. Terminal statuses never change again.
//
// messageType defaults to "text" when empty.
func (s *Session) SendMessage(roomID, content, messageType string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}
	if messageType == "" {
		messageType = "text"
	}

	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return Message{}, ErrNotConnected
	}

	tempID := "tmp-" + uuid.NewString()

	msg := Message{
		TempID:         tempID,
		Content:        content,
		CreatedAt:      time.Now(),
		AuthorID:       s.self.UserID,
		AuthorUsername: s.self.Username,
		RoomID:         roomID,
		MessageType:    messageType,
		Status:         StatusSending,
	}
	s.appendMessageLocked(msg)

	s.pending[tempID] = s.afterFunc(s.cfg.SendTimeout, func() {
		s.failPending(tempID, ErrSendTimeout, false)
	})

	tr := s.transport
	s.mu.Unlock()

	if err := tr.Send(Command{Type: CmdSendMessage, Payload: sendMessagePayload{
		RoomID:      roomID,
		Content:     content,
		MessageType: messageType,
		TempID:      tempID,
	}}); err != nil {
		// Acknowledgement failure is scoped to this message; it never
		// escalates to a reconnect.
		s.failPending(tempID, err, true)
		return msg, err
	}

	return msg, nil
}

// Messages returns the current timeline snapshot. The returned slice is
// never mutated afterwards; new events publish a fresh one.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// AddHistory prepends messages loaded from paginated history. Their status
// is pinned to sent, which never transitions.
func (s *Session) AddHistory(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Message, 0, len(messages)+len(s.timeline))
	for _, m := range messages {
		m.TempID = ""
		m.Status = StatusSent
		next = append(next, m)
	}
	s.timeline = append(next, s.timeline...)
}

// handleNewMessageLocked is the inbound sink: pushed messages are appended
// unless they match a pending local tempId, which only the confirmation path
// may resolve.
func (s *Session) handleNewMessageLocked(msg Message) {
	if msg.TempID != "" && s.hasTempIDLocked(msg.TempID) {
		return
	}
	if msg.Status == "" {
		msg.Status = StatusSending
	}
	s.appendMessageLocked(msg)
}

func (s *Session) handleConfirmedLocked(p MessageConfirmedPayload) {
	if t, ok := s.pending[p.TempID]; ok {
		t.Stop()
		delete(s.pending, p.TempID)
	}

	s.resolveMessageLocked(p.TempID, func(m *Message) bool {
		if !m.resolve(StatusConfirmed) {
			return false
		}
		m.ID = p.ID
		m.TempID = ""
		return true
	})
}

func (s *Session) handleMessageErrorLocked(p MessageErrorPayload) []func() {
	if t, ok := s.pending[p.TempID]; ok {
		t.Stop()
		delete(s.pending, p.TempID)
	}

	changed := s.resolveMessageLocked(p.TempID, func(m *Message) bool {
		if !m.resolve(StatusFailed) {
			return false
		}
		m.Err = p.Error
		return true
	})
	if !changed {
		return nil
	}

	notice := "message failed: " + p.Error
	return []func(){func() {
		s.emitter.Emit(eventNotice, notice)
	}}
}

// failPending resolves one pending message to failed, from either the
// failure timer or a write error.
func (s *Session) failPending(tempID string, cause error, notify bool) {
	s.mu.Lock()
	if t, ok := s.pending[tempID]; ok {
		t.Stop()
		delete(s.pending, tempID)
	}

	changed := s.resolveMessageLocked(tempID, func(m *Message) bool {
		if !m.resolve(StatusFailed) {
			return false
		}
		m.Err = cause.Error()
		return true
	})
	s.mu.Unlock()

	if changed && notify {
		s.emitter.Emit(eventNotice, "message failed: "+cause.Error())
	}
}

// cancelPendingLocked stops every failure timer and fails the messages they
// guarded. Part of voluntary teardown, so no zombie timer outlives the
// session state it would mutate.
func (s *Session) cancelPendingLocked() {
	for tempID, t := range s.pending {
		t.Stop()
		delete(s.pending, tempID)
		s.resolveMessageLocked(tempID, func(m *Message) bool {
			if !m.resolve(StatusFailed) {
				return false
			}
			m.Err = ErrTerminated.Error()
			return true
		})
	}
}

func (s *Session) hasTempIDLocked(tempID string) bool {
	for i := range s.timeline {
		if s.timeline[i].TempID == tempID {
			return true
		}
	}
	return false
}

// appendMessageLocked publishes a new timeline slice with the message
// appended.
func (s *Session) appendMessageLocked(msg Message) {
	next := make([]Message, len(s.timeline), len(s.timeline)+1)
	copy(next, s.timeline)
	s.timeline = append(next, msg)
}

// resolveMessageLocked applies fn to the message matching tempID on a fresh
// copy of the timeline. The copy is published only when fn reports a change.
func (s *Session) resolveMessageLocked(tempID string, fn func(*Message) bool) bool {
	if tempID == "" {
		return false
	}
	for i := range s.timeline {
		if s.timeline[i].TempID != tempID {
			continue
		}
		next := make([]Message, len(s.timeline))
		copy(next, s.timeline)
		if !fn(&next[i]) {
			return false
		}
		s.timeline = next
		return true
	}
	return false
}
