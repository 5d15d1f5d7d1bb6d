package libchat

import (
	"sort"
)

// StartTyping notifies the room that the local user is typing. Fire and
// forget: nothing is tracked locally for self, and the call is silently
// dropped while not connected.
func (s *Session) StartTyping(roomID string) {
	s.sendTyping(CmdTypingStart, roomID)
}

// StopTyping notifies the room that the local user stopped typing.
func (s *Session) StopTyping(roomID string) {
	s.sendTyping(CmdTypingStop, roomID)
}

func (s *Session) sendTyping(cmd CommandType, roomID string) {
	s.mu.Lock()
	tr := s.transport
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || tr == nil {
		return
	}

	if err := tr.Send(Command{Type: cmd, Payload: typingPayload{RoomID: roomID}}); err != nil {
		s.logger.Debugf("typing notification dropped: %s", err)
	}
}

// TypingUsers returns the display names of remote users currently typing,
// sorted.
func (s *Session) TypingUsers() []string {
	s.mu.Lock()
	users := make([]string, 0, len(s.typing))
	for username := range s.typing {
		users = append(users, username)
	}
	s.mu.Unlock()

	sort.Strings(users)
	return users
}

func (s *Session) handleUserTypingLocked(p UserTypingPayload) {
	if p.UserID == s.self.UserID {
		return
	}

	if _, present := s.typing[p.Username]; present == p.IsTyping {
		return
	}

	next := make(map[string]struct{}, len(s.typing)+1)
	for username := range s.typing {
		next[username] = struct{}{}
	}
	if p.IsTyping {
		next[p.Username] = struct{}{}
	} else {
		delete(next, p.Username)
	}
	s.typing = next
}
