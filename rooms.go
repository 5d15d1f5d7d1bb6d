package libchat

import (
	"sort"
)

// JoinRoom emits a join request for the room. The join is optimistic:
// membership is recorded only once the server acknowledges with a
// joined_room event, and the transport forgets all memberships across
// reconnects, so callers must re-join after every connected transition.
func (s *Session) JoinRoom(roomID string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if _, joined := s.rooms[roomID]; joined {
		s.mu.Unlock()
		return nil
	}
	tr := s.transport
	s.mu.Unlock()

	return tr.Send(Command{Type: CmdJoinRoom, Payload: joinRoomPayload{RoomID: roomID}})
}

// LeaveRoom emits a leave request for the room. Membership is removed once
// the server acknowledges with a left_room event.
func (s *Session) LeaveRoom(roomID string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	tr := s.transport
	s.mu.Unlock()

	return tr.Send(Command{Type: CmdLeaveRoom, Payload: joinRoomPayload{RoomID: roomID}})
}

// InRoom reports whether the current connection has an acknowledged
// membership for the room.
func (s *Session) InRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, joined := s.rooms[roomID]
	return joined
}

// Rooms returns the acknowledged memberships, sorted.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		rooms = append(rooms, roomID)
	}
	s.mu.Unlock()

	sort.Strings(rooms)
	return rooms
}

func (s *Session) handleJoinedRoomLocked(roomID string) {
	next := make(map[string]struct{}, len(s.rooms)+1)
	for r := range s.rooms {
		next[r] = struct{}{}
	}
	next[roomID] = struct{}{}
	s.rooms = next
	s.logger.Debugf("joined room %s", roomID)
}

func (s *Session) handleLeftRoomLocked(roomID string) {
	next := make(map[string]struct{}, len(s.rooms))
	for r := range s.rooms {
		if r != roomID {
			next[r] = struct{}{}
		}
	}
	s.rooms = next
	s.logger.Debugf("left room %s", roomID)
}
