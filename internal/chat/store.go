package chat

import (
	"fmt"
	"sync"
	"time"

	"agora/internal/models"
)

// DefaultRoom is the implicit room every message lands in unless another room is named.
const DefaultRoom = "general"

type Config struct {
	// EditWindow is how long after creation a sender may edit their own message.
	EditWindow time.Duration
	// MinSendInterval is the minimum gap between two accepted messages of one user.
	MinSendInterval time.Duration
	// DailyMessageCap limits accepted messages per user per day bucket. 0 disables the cap.
	DailyMessageCap int
	DayLength       time.Duration
	// RetentionPeriod is the age after which non-pinned messages are purged. 0 keeps messages forever.
	RetentionPeriod        time.Duration
	RateLimitCleanupWindow time.Duration
	// SweepEvery runs cleanup after this many accepted messages. 0 disables opportunistic sweeps.
	SweepEvery      int
	MaxPinned       int
	MaxReactions    int
	MaxAuditRecords int
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultConfig() Config {
	return Config{
		EditWindow:             15 * time.Minute,
		MinSendInterval:        time.Second,
		DailyMessageCap:        1000,
		DayLength:              24 * time.Hour,
		RetentionPeriod:        0,
		RateLimitCleanupWindow: 48 * time.Hour,
		SweepEvery:             100,
		MaxPinned:              5,
		MaxReactions:           50,
		MaxAuditRecords:        500,
		DefaultPageSize:        50,
		MaxPageSize:            100,
	}
}

func (c *Config) Validate() error {
	if c.EditWindow < 0 || c.MinSendInterval < 0 || c.RetentionPeriod < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.DailyMessageCap < 0 || c.SweepEvery < 0 {
		return fmt.Errorf("counters must not be negative")
	}
	if c.DayLength <= 0 {
		c.DayLength = 24 * time.Hour
	}
	if c.RateLimitCleanupWindow <= 0 {
		c.RateLimitCleanupWindow = 2 * c.DayLength
	}
	if c.MaxPinned <= 0 {
		c.MaxPinned = 5
	}
	if c.MaxReactions <= 0 {
		c.MaxReactions = 50
	}
	if c.MaxAuditRecords <= 0 {
		c.MaxAuditRecords = 500
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 100
	}
	if c.DefaultPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	return nil
}

// Store owns every user, message, room, pin, rate-limit counter and audit record.
// A single lock guards the whole state because several indexes must change together.
type Store struct {
	Config

	users     map[models.Identity]*models.User
	joinOrder []models.Identity
	usernames map[string]models.Identity // lower-cased username -> identity

	messages  map[int64]*models.Message
	order     []int64 // ascending message ids across all rooms
	rooms     map[string]*models.Room
	roomOrder []string
	roomIndex map[string][]int64 // ascending message ids per room
	replies   map[int64][]int64  // parent id -> reply ids in send order
	pins      map[string][]int64 // room -> pinned ids, oldest pin first
	nextID    int64
	lastStamp int64

	limits     map[models.Identity]*RateLimitState
	sinceSweep int

	audit *auditLog

	now func() time.Time
	mu  sync.RWMutex
}

func New(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		Config:    config,
		users:     make(map[models.Identity]*models.User),
		usernames: make(map[string]models.Identity),
		messages:  make(map[int64]*models.Message),
		rooms:     make(map[string]*models.Room),
		roomIndex: make(map[string][]int64),
		replies:   make(map[int64][]int64),
		pins:      make(map[string][]int64),
		limits:    make(map[models.Identity]*RateLimitState),
		audit:     newAuditLog(config.MaxAuditRecords),
		now:       time.Now,
	}
	s.addRoom(models.Room{ID: DefaultRoom, Name: "General"})
	return s, nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) addRoom(r models.Room) {
	s.rooms[r.ID] = &r
	s.roomOrder = append(s.roomOrder, r.ID)
}

func isBanned(u *models.User, now int64) bool {
	return u.Banned && (u.BannedUntil == 0 || now < u.BannedUntil)
}

// lookupUser returns the registered user for the identity.
func (s *Store) lookupUser(id models.Identity) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return u, nil
}

// activeUser returns the caller if registered and not banned. Expired temporary bans are lifted.
// Callers bump LastSeen themselves once the operation succeeds.
// Must be called with the write lock held.
func (s *Store) activeUser(id models.Identity, now int64) (*models.User, error) {
	u, err := s.lookupUser(id)
	if err != nil {
		return nil, err
	}
	if u.Banned && !isBanned(u, now) {
		u.Banned = false
		u.BannedUntil = 0
	}
	if u.Banned {
		return nil, models.ErrBanned
	}
	return u, nil
}

// liveMessage returns a message that exists and is not soft-deleted.
func (s *Store) liveMessage(id int64) (*models.Message, error) {
	m, ok := s.messages[id]
	if !ok || m.Deleted {
		return nil, fmt.Errorf("%w: message %d", models.ErrNotFound, id)
	}
	return m, nil
}

func (s *Store) record(e models.AuditEntry) {
	s.audit.add(e)
}

func cloneUser(u *models.User) models.User {
	return *u
}

func cloneMessage(m *models.Message) models.Message {
	c := *m
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		c.ReplyTo = &r
	}
	if m.Reactions != nil {
		c.Reactions = append([]models.Reaction(nil), m.Reactions...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]models.Attachment(nil), m.Attachments...)
	}
	return c
}

func msgID(id int64) *int64 {
	return &id
}
