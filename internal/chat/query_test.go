package chat

import (
	"testing"
	"time"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessages(t *testing.T, s *Store, now *time.Time, n int) []models.Message {
	t.Helper()
	msgs := make([]models.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, send(t, s, now, alice, "message"))
	}
	return msgs
}

func TestGetMessages(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	seedMessages(t, s, now, 8)
	require.NoError(t, s.DeleteMessage(alice, 5))

	tests := []struct {
		name   string
		limit  int
		before *int64
		want   []int64
	}{
		{"Newest first", 3, nil, []int64{7, 6, 4}},
		{"Before cursor skips deleted", 3, msgID(6), []int64{4, 3, 2}},
		{"Before first", 3, msgID(0), []int64{}},
		{"Cursor past the end", 2, msgID(100), []int64{7, 6}},
		{"Default limit", 0, nil, []int64{7, 6, 4, 3, 2, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.GetMessages(DefaultRoom, tt.limit, tt.before)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(msgs))
		})
	}

	_, err := s.GetMessages("nowhere", 10, nil)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetMessagesPage(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	seedMessages(t, s, now, 8)
	require.NoError(t, s.DeleteMessage(alice, 5))

	pages := [][]int64{{7, 6, 4}, {3, 2, 1}, {0}, {}}
	for i, want := range pages {
		msgs, err := s.GetMessagesPage(DefaultRoom, i, 3)
		require.NoError(t, err)
		assert.Equal(t, want, ids(msgs), "page %d", i)
	}

	_, err := s.GetMessagesPage(DefaultRoom, -1, 3)
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestPolling(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	msgs := seedMessages(t, s, now, 8)
	require.NoError(t, s.DeleteMessage(alice, 5))

	after, err := s.GetMessagesAfter(DefaultRoom, -1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, ids(after))

	after, err = s.GetMessagesAfter(DefaultRoom, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 6, 7}, ids(after))

	after, err = s.GetMessagesAfter(DefaultRoom, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, after)

	since, err := s.GetMessagesSince(DefaultRoom, msgs[5].Timestamp, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7}, ids(since))

	since, err = s.GetMessagesSince(DefaultRoom, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, ids(since))
}

func TestRooms(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")
	register(t, s, carol, "Carol")
	require.NoError(t, s.AddModerator(alice, carol))

	_, err := s.CreateRoom(bob, "random", "", false)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = s.CreateRoom(alice, "Bad Room", "", false)
	require.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = s.CreateRoom(alice, DefaultRoom, "", false)
	require.ErrorIs(t, err, models.ErrAlreadyExists)

	random, err := s.CreateRoom(carol, "random", "", false)
	require.NoError(t, err)
	assert.Equal(t, "random", random.Name)
	assert.Equal(t, carol, random.CreatedBy)
	_, err = s.CreateRoom(alice, "news", "Announcements", true)
	require.NoError(t, err)

	rooms := s.ListRooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{DefaultRoom, "random", "news"}, []string{rooms[0].ID, rooms[1].ID, rooms[2].ID})

	*now = now.Add(2 * time.Second)
	_, err = s.SendMessage(bob, Draft{RoomID: "news", Content: "me too"})
	require.ErrorIs(t, err, models.ErrNoPermission)
	_, err = s.SendMessage(carol, Draft{RoomID: "news", Content: "announcement"})
	require.NoError(t, err)
	_, err = s.SendMessage(bob, Draft{RoomID: "random", Content: "elsewhere"})
	require.NoError(t, err)

	general, err := s.GetMessages(DefaultRoom, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, general)
	news, err := s.GetMessages("news", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, ids(news))
}

func TestSearchMessages(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	for _, text := range []string{"Go is fun", "lunch?", "GOPHERS unite", "nothing here", "go go go"} {
		send(t, s, now, alice, text)
	}

	assert.Equal(t, []int64{4, 2, 0}, ids(s.SearchMessages("go", 10, 0)))
	assert.Equal(t, []int64{2}, ids(s.SearchMessages("go", 1, 1)))
	assert.Empty(t, s.SearchMessages("go", 10, 3))
	assert.Empty(t, s.SearchMessages("", 10, 0))
	assert.Empty(t, s.SearchMessages("absent", 10, 0))
}

func TestRoomStatistics(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")
	register(t, s, carol, "Carol")

	send(t, s, now, bob, "one")
	send(t, s, now, alice, "two")
	send(t, s, now, bob, "three")
	send(t, s, now, alice, "four")
	doomed := send(t, s, now, carol, "five")
	require.NoError(t, s.DeleteMessage(carol, doomed.ID))

	// Move into the next day bucket.
	day := s.DayLength
	*now = now.Truncate(day).Add(day + time.Minute)
	send(t, s, now, carol, "six")

	stats, err := s.GetRoomStatistics(DefaultRoom, 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultRoom, stats.RoomID)
	assert.Equal(t, 5, stats.TotalMessages)
	assert.Equal(t, 1, stats.TodayMessages)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, []models.PosterCount{{Identity: alice, Count: 2}, {Identity: bob, Count: 2}}, stats.TopPosters)

	stats, err = s.GetRoomStatistics(DefaultRoom, 0)
	require.NoError(t, err)
	assert.Len(t, stats.TopPosters, 3)

	_, err = s.GetRoomStatistics("nowhere", 0)
	require.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, 2, s.UserMessageCount(alice))
	assert.Equal(t, 5, s.MessageCount())
}
