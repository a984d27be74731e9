package chat

import (
	"testing"
	"time"

	"agora/internal/models"

	"github.com/stretchr/testify/require"
)

const t0Unix = 1700000000

const (
	alice models.Identity = "alice-key"
	bob   models.Identity = "bob-key"
	carol models.Identity = "carol-key"
	dave  models.Identity = "dave-key"
)

// newTestStore returns a store driven by a fake clock the test can move.
func newTestStore(t *testing.T, configure ...func(*Config)) (*Store, *time.Time) {
	t.Helper()

	cfg := DefaultConfig()
	for _, fn := range configure {
		fn(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)

	currentTime := time.Unix(t0Unix, 0)
	s.now = func() time.Time {
		return currentTime
	}
	return s, &currentTime
}

func register(t *testing.T, s *Store, id models.Identity, name string) models.User {
	t.Helper()
	u, err := s.RegisterUser(id, Registration{DisplayName: name})
	require.NoError(t, err)
	return u
}

// send moves the clock past the minimum send interval and posts into the default room.
func send(t *testing.T, s *Store, now *time.Time, id models.Identity, text string) models.Message {
	t.Helper()
	*now = now.Add(2 * time.Second)
	m, err := s.SendMessage(id, Draft{Content: text})
	require.NoError(t, err)
	return m
}

func ids(msgs []models.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestNew(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, s.DayLength)
	require.Equal(t, s.MaxPageSize, s.DefaultPageSize)

	rooms := s.ListRooms()
	require.Len(t, rooms, 1)
	require.Equal(t, DefaultRoom, rooms[0].ID)

	_, err = New(Config{MinSendInterval: -time.Second})
	require.Error(t, err)
}

func TestScenario(t *testing.T) {
	s, now := newTestStore(t)

	a := register(t, s, alice, "Alice")
	b := register(t, s, bob, "Bob")
	require.Equal(t, models.RoleOwner, a.Role)
	require.Equal(t, models.RoleUser, b.Role)

	hello := send(t, s, now, alice, "hello")
	require.Equal(t, int64(0), hello.ID)

	*now = now.Add(2 * time.Second)
	reply, err := s.SendMessage(bob, Draft{Content: "hi there", ReplyTo: msgID(hello.ID)})
	require.NoError(t, err)
	require.Equal(t, int64(1), reply.ID)

	require.Equal(t, []int64{0, 1}, ids(s.GetThread(0)))

	require.NoError(t, s.PinMessage(alice, 0))
	require.ErrorIs(t, s.PinMessage(bob, 1), models.ErrUnauthorized)

	pinned, err := s.GetPinnedMessages(DefaultRoom)
	require.NoError(t, err)
	require.Equal(t, []int64{0}, ids(pinned))
}
