package chat

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"agora/internal/models"
)

type UserEntry struct {
	Identity models.Identity
	User     models.User
}

type MessageEntry struct {
	ID      int64
	Message models.Message
}

// RoomIndex lists message ids of one room in ascending order.
type RoomIndex struct {
	RoomID     string
	MessageIDs []int64
}

type RateLimitEntry struct {
	Identity models.Identity
	State    RateLimitState
}

// Snapshot is the flat, restart-safe layout of the whole store.
type Snapshot struct {
	NextMessageID int64
	Users         []UserEntry // join order
	Messages      []MessageEntry
	Rooms         []models.Room // creation order
	RoomIndex     []RoomIndex
	Pins          []RoomIndex // pin order per room
	RateLimits    []RateLimitEntry
	Audit         []models.AuditEntry
}

// Snapshot copies the whole state. Writers are blocked while it runs.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		NextMessageID: s.nextID,
		Users:         make([]UserEntry, 0, len(s.joinOrder)),
		Messages:      make([]MessageEntry, 0, len(s.order)),
		Rooms:         make([]models.Room, 0, len(s.roomOrder)),
		RateLimits:    make([]RateLimitEntry, 0, len(s.limits)),
		Audit:         s.audit.last(0),
	}
	for _, id := range s.joinOrder {
		snap.Users = append(snap.Users, UserEntry{Identity: id, User: cloneUser(s.users[id])})
	}
	for _, id := range s.order {
		snap.Messages = append(snap.Messages, MessageEntry{ID: id, Message: cloneMessage(s.messages[id])})
	}
	for _, id := range s.roomOrder {
		snap.Rooms = append(snap.Rooms, *s.rooms[id])
		snap.RoomIndex = append(snap.RoomIndex, RoomIndex{RoomID: id, MessageIDs: slices.Clone(s.roomIndex[id])})
		if pins := s.pins[id]; len(pins) > 0 {
			snap.Pins = append(snap.Pins, RoomIndex{RoomID: id, MessageIDs: slices.Clone(pins)})
		}
	}
	for id, st := range s.limits {
		snap.RateLimits = append(snap.RateLimits, RateLimitEntry{Identity: id, State: *st})
	}
	sort.Slice(snap.RateLimits, func(i, j int) bool {
		return snap.RateLimits[i].Identity < snap.RateLimits[j].Identity
	})
	return snap
}

// Restore builds a store from a snapshot. Any inconsistency between the flat lists is
// reported as an error; a store is never returned half-built.
func Restore(config Config, snap Snapshot) (*Store, error) {
	s, err := New(config)
	if err != nil {
		return nil, err
	}

	for _, e := range snap.Users {
		if e.Identity == "" || e.Identity != e.User.Identity {
			return nil, fmt.Errorf("corrupt snapshot: user entry %q does not match record %q", e.Identity, e.User.Identity)
		}
		if _, dup := s.users[e.Identity]; dup {
			return nil, fmt.Errorf("corrupt snapshot: duplicate user %s", e.Identity)
		}
		u := e.User
		if u.UserName != "" {
			key := strings.ToLower(u.UserName)
			if _, dup := s.usernames[key]; dup {
				return nil, fmt.Errorf("corrupt snapshot: duplicate username %s", u.UserName)
			}
			s.usernames[key] = e.Identity
		}
		s.users[e.Identity] = &u
		s.joinOrder = append(s.joinOrder, e.Identity)
	}

	for _, r := range snap.Rooms {
		if r.ID == DefaultRoom {
			*s.rooms[DefaultRoom] = r
			continue
		}
		if _, dup := s.rooms[r.ID]; dup {
			return nil, fmt.Errorf("corrupt snapshot: duplicate room %s", r.ID)
		}
		s.addRoom(r)
	}

	s.nextID = snap.NextMessageID
	last := int64(-1)
	for _, e := range snap.Messages {
		m := cloneMessage(&e.Message)
		if e.ID != m.ID || e.ID <= last {
			return nil, fmt.Errorf("corrupt snapshot: message %d out of order", e.ID)
		}
		if _, ok := s.rooms[m.RoomID]; !ok {
			return nil, fmt.Errorf("corrupt snapshot: message %d in unknown room %s", m.ID, m.RoomID)
		}
		last = e.ID
		s.insert(&m)
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
		if m.Timestamp > s.lastStamp {
			s.lastStamp = m.Timestamp
		}
	}

	for _, idx := range snap.RoomIndex {
		if !slices.Equal(idx.MessageIDs, s.roomIndex[idx.RoomID]) {
			return nil, fmt.Errorf("corrupt snapshot: index of room %s does not match its messages", idx.RoomID)
		}
	}

	for _, p := range snap.Pins {
		for _, id := range p.MessageIDs {
			m, ok := s.messages[id]
			if !ok || !m.Pinned || m.RoomID != p.RoomID {
				return nil, fmt.Errorf("corrupt snapshot: pin %d in room %s", id, p.RoomID)
			}
			s.pins[p.RoomID] = append(s.pins[p.RoomID], id)
		}
	}
	for _, id := range s.order {
		if m := s.messages[id]; m.Pinned && !slices.Contains(s.pins[m.RoomID], id) {
			s.pins[m.RoomID] = append(s.pins[m.RoomID], id)
		}
	}

	for _, e := range snap.RateLimits {
		st := e.State
		s.limits[e.Identity] = &st
	}
	for _, e := range snap.Audit {
		s.audit.add(e)
	}
	return s, nil
}
