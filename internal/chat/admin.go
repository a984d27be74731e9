package chat

import (
	"fmt"
	"strings"

	"agora/internal/content"
	"agora/internal/models"
)

// CreateRoom adds a room. Moderators and above only.
func (s *Store) CreateRoom(caller models.Identity, id, name string, readOnly bool) (models.Room, error) {
	id, name, err := content.NormalizeRoom(id, name)
	if err != nil {
		return models.Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return models.Room{}, err
	}
	if !u.Role.IsModerator() {
		return models.Room{}, fmt.Errorf("%w: moderator role required to create rooms", models.ErrUnauthorized)
	}
	if _, ok := s.rooms[id]; ok {
		return models.Room{}, fmt.Errorf("%w: room %s", models.ErrAlreadyExists, id)
	}

	r := models.Room{ID: id, Name: name, ReadOnly: readOnly, CreatedBy: caller, Created: now}
	s.addRoom(r)
	u.LastSeen = now
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditCreateRoom, Detail: id})
	return r, nil
}

// ListRooms returns rooms in creation order.
func (s *Store) ListRooms() []models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]models.Room, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		rooms = append(rooms, *s.rooms[id])
	}
	return rooms
}

// ClearMessages removes every message. Ids keep counting from where they were.
func (s *Store) ClearMessages(caller models.Identity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return 0, err
	}
	if !u.Role.IsAdmin() {
		return 0, fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}

	u.LastSeen = now
	n := len(s.messages)
	s.messages = make(map[int64]*models.Message)
	s.order = nil
	s.roomIndex = make(map[string][]int64)
	s.replies = make(map[int64][]int64)
	s.pins = make(map[string][]int64)
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditClearMessages, Detail: fmt.Sprint(n)})
	return n, nil
}

// ClearUsers removes every user except the caller. If the Owner is removed the caller
// becomes Owner so the registry always has one.
func (s *Store) ClearUsers(caller models.Identity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return 0, err
	}
	if !u.Role.IsAdmin() {
		return 0, fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}

	u.LastSeen = now
	n := len(s.users) - 1
	s.users = map[models.Identity]*models.User{caller: u}
	s.joinOrder = []models.Identity{caller}
	s.usernames = make(map[string]models.Identity)
	if u.UserName != "" {
		s.usernames[strings.ToLower(u.UserName)] = caller
	}
	s.limits = make(map[models.Identity]*RateLimitState)
	u.Role = models.RoleOwner
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditClearUsers, Detail: fmt.Sprint(n)})
	return n, nil
}

// GetAuditLog returns up to limit most recent moderation records, oldest first.
func (s *Store) GetAuditLog(caller models.Identity, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.lookupUser(caller)
	if err != nil {
		return nil, err
	}
	if !u.Role.IsModerator() {
		return nil, fmt.Errorf("%w: moderator role required", models.ErrUnauthorized)
	}
	return s.audit.last(limit), nil
}
