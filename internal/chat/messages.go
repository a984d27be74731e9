package chat

import (
	"fmt"

	"agora/internal/content"
	"agora/internal/models"
)

// Draft is the input of SendMessage.
type Draft struct {
	RoomID      string
	Content     string
	ReplyTo     *int64
	Attachments []models.Attachment
}

// SendMessage validates and stores a new message. The rate limiter is consulted last so
// a rejected message never consumes quota.
func (s *Store) SendMessage(caller models.Identity, d Draft) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return models.Message{}, err
	}
	text, err := content.NormalizeMessage(d.Content)
	if err != nil {
		return models.Message{}, err
	}
	attachments, err := content.NormalizeAttachments(d.Attachments)
	if err != nil {
		return models.Message{}, err
	}
	if d.ReplyTo != nil && *d.ReplyTo < 0 {
		return models.Message{}, fmt.Errorf("%w: invalid reply target", models.ErrInvalidInput)
	}
	roomID := d.RoomID
	if roomID == "" {
		roomID = DefaultRoom
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
	}
	if room.ReadOnly && !u.Role.IsModerator() {
		return models.Message{}, fmt.Errorf("%w: room %s is read-only", models.ErrNoPermission, roomID)
	}
	if err := s.allowSend(caller, now); err != nil {
		return models.Message{}, err
	}

	// Message timestamps never go backwards so time cursors stay ordered with ids.
	stamp := now
	if stamp < s.lastStamp {
		stamp = s.lastStamp
	}
	s.lastStamp = stamp

	m := &models.Message{
		ID:          s.nextID,
		Sender:      caller,
		RoomID:      roomID,
		Content:     text,
		Timestamp:   stamp,
		Attachments: attachments,
	}
	if d.ReplyTo != nil {
		m.ReplyTo = msgID(*d.ReplyTo)
	}
	s.nextID++
	s.insert(m)

	u.MessageCount++
	u.LastSeen = now

	s.sinceSweep++
	if s.SweepEvery > 0 && s.sinceSweep >= s.SweepEvery {
		s.sweepLocked(now)
	}
	return cloneMessage(m), nil
}

func (s *Store) insert(m *models.Message) {
	s.messages[m.ID] = m
	s.order = append(s.order, m.ID)
	s.roomIndex[m.RoomID] = append(s.roomIndex[m.RoomID], m.ID)
	if m.ReplyTo != nil {
		s.replies[*m.ReplyTo] = append(s.replies[*m.ReplyTo], m.ID)
	}
}

// EditMessage replaces the content of a live message. The sender may edit within the edit
// window; moderators and above may edit any message at any time.
func (s *Store) EditMessage(caller models.Identity, id int64, newContent string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return models.Message{}, err
	}
	m, err := s.liveMessage(id)
	if err != nil {
		return models.Message{}, err
	}

	own := m.Sender == caller && now-m.Timestamp <= s.EditWindow.Milliseconds()
	if !own && !u.Role.IsModerator() {
		return models.Message{}, fmt.Errorf("%w: cannot edit message %d", models.ErrUnauthorized, id)
	}

	text, err := content.NormalizeMessage(newContent)
	if err != nil {
		return models.Message{}, err
	}

	m.Content = text
	m.Edited = true
	m.EditedAt = now
	u.LastSeen = now
	if m.Sender != caller {
		s.record(models.AuditEntry{
			Timestamp: now,
			Actor:     caller,
			Action:    models.AuditEditMessage,
			Target:    m.Sender,
			MessageID: msgID(id),
		})
	}
	return cloneMessage(m), nil
}

// DeleteMessage soft-deletes a message. The sender or any moderator may delete it.
// The record stays addressable for threads and audit.
func (s *Store) DeleteMessage(caller models.Identity, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	m, err := s.liveMessage(id)
	if err != nil {
		return err
	}
	if m.Sender != caller && !u.Role.IsModerator() {
		return fmt.Errorf("%w: cannot delete message %d", models.ErrUnauthorized, id)
	}

	m.Deleted = true
	u.LastSeen = now
	if m.Sender != caller {
		s.record(models.AuditEntry{
			Timestamp: now,
			Actor:     caller,
			Action:    models.AuditDeleteMessage,
			Target:    m.Sender,
			MessageID: msgID(id),
		})
	}
	return nil
}

// SoftDeleteMessage is DeleteMessage; deletion is always soft.
func (s *Store) SoftDeleteMessage(caller models.Identity, id int64) error {
	return s.DeleteMessage(caller, id)
}

// PinMessage pins a live message in its room. When the room already holds MaxPinned pins
// the oldest pin is released.
func (s *Store) PinMessage(caller models.Identity, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if !u.Role.IsModerator() {
		return fmt.Errorf("%w: moderator role required to pin", models.ErrUnauthorized)
	}
	m, err := s.liveMessage(id)
	if err != nil {
		return err
	}
	u.LastSeen = now
	if m.Pinned {
		return nil
	}

	m.Pinned = true
	pins := append(s.pins[m.RoomID], id)
	for len(pins) > s.MaxPinned {
		i := s.evictablePin(pins)
		if old, ok := s.messages[pins[i]]; ok {
			old.Pinned = false
		}
		pins = append(pins[:i:i], pins[i+1:]...)
	}
	s.pins[m.RoomID] = pins
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditPin, MessageID: msgID(id)})
	return nil
}

// UnpinMessage releases a pin. Deleted messages can be unpinned too.
func (s *Store) UnpinMessage(caller models.Identity, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if !u.Role.IsModerator() {
		return fmt.Errorf("%w: moderator role required to unpin", models.ErrUnauthorized)
	}
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", models.ErrNotFound, id)
	}
	u.LastSeen = now
	if !m.Pinned {
		return nil
	}
	m.Pinned = false
	s.pins[m.RoomID] = removeID(s.pins[m.RoomID], id)
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditUnpin, MessageID: msgID(id)})
	return nil
}

// evictablePin picks the pin released when a room overflows MaxPinned: the oldest pin on a
// deleted or purged message, otherwise the oldest pin.
func (s *Store) evictablePin(pins []int64) int {
	for i, id := range pins {
		if m, ok := s.messages[id]; !ok || m.Deleted {
			return i
		}
	}
	return 0
}

// GetPinnedMessages returns the live pinned messages of a room, oldest pin first.
func (s *Store) GetPinnedMessages(roomID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
	}
	result := []models.Message{}
	for _, id := range s.pins[roomID] {
		if m, ok := s.messages[id]; ok && !m.Deleted {
			result = append(result, cloneMessage(m))
		}
	}
	return result, nil
}

// GetMessageByID returns a single message. Soft-deleted messages are visible to moderators only.
func (s *Store) GetMessageByID(caller models.Identity, id int64) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return models.Message{}, fmt.Errorf("%w: message %d", models.ErrNotFound, id)
	}
	if m.Deleted {
		u, ok := s.users[caller]
		if !ok || !u.Role.IsModerator() {
			return models.Message{}, fmt.Errorf("%w: message %d", models.ErrNotFound, id)
		}
	}
	return cloneMessage(m), nil
}

// GetThread returns the root message, if it is still live, followed by its live replies in
// send order. A purged or deleted root still yields its replies.
func (s *Store) GetThread(rootID int64) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.Message{}
	if m, ok := s.messages[rootID]; ok && !m.Deleted {
		result = append(result, cloneMessage(m))
	}
	for _, id := range s.replies[rootID] {
		if m, ok := s.messages[id]; ok && !m.Deleted {
			result = append(result, cloneMessage(m))
		}
	}
	return result
}

func removeID(ids []int64, id int64) []int64 {
	for i, other := range ids {
		if other == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
