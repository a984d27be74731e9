package chat

import (
	"fmt"
	"sort"
	"strings"

	"agora/internal/models"
)

const defaultTopPosters = 5

func (s *Store) pageLimit(limit int) int {
	if limit <= 0 {
		return s.DefaultPageSize
	}
	if limit > s.MaxPageSize {
		return s.MaxPageSize
	}
	return limit
}

func (s *Store) roomIDs(roomID string) ([]int64, error) {
	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("%w: room %s", models.ErrNotFound, roomID)
	}
	return s.roomIndex[roomID], nil
}

// GetMessages returns live messages of a room newest-first. With a before cursor only
// messages with a smaller id are returned.
func (s *Store) GetMessages(roomID string, limit int, before *int64) ([]models.Message, error) {
	limit = s.pageLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.roomIDs(roomID)
	if err != nil {
		return nil, err
	}
	end := len(ids)
	if before != nil {
		end = sort.Search(len(ids), func(i int) bool { return ids[i] >= *before })
	}

	result := []models.Message{}
	for i := end - 1; i >= 0 && len(result) < limit; i-- {
		if m := s.messages[ids[i]]; !m.Deleted {
			result = append(result, cloneMessage(m))
		}
	}
	return result, nil
}

// GetMessagesPage returns page number page (0 is the newest) of live messages, newest-first.
func (s *Store) GetMessagesPage(roomID string, page, pageSize int) ([]models.Message, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: negative page", models.ErrInvalidInput)
	}
	pageSize = s.pageLimit(pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.roomIDs(roomID)
	if err != nil {
		return nil, err
	}
	skip := page * pageSize
	result := []models.Message{}
	for i := len(ids) - 1; i >= 0 && len(result) < pageSize; i-- {
		m := s.messages[ids[i]]
		if m.Deleted {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		result = append(result, cloneMessage(m))
	}
	return result, nil
}

// GetMessagesAfter returns live messages with an id greater than afterID, oldest first.
// Pollers pass the last id they have seen; -1 starts from the beginning.
func (s *Store) GetMessagesAfter(roomID string, afterID int64, limit int) ([]models.Message, error) {
	limit = s.pageLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.roomIDs(roomID)
	if err != nil {
		return nil, err
	}
	start := sort.Search(len(ids), func(i int) bool { return ids[i] > afterID })
	return s.collectForward(ids[start:], limit), nil
}

// GetMessagesSince returns live messages created after the given Unix millisecond timestamp,
// oldest first.
func (s *Store) GetMessagesSince(roomID string, since int64, limit int) ([]models.Message, error) {
	limit = s.pageLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.roomIDs(roomID)
	if err != nil {
		return nil, err
	}
	start := sort.Search(len(ids), func(i int) bool { return s.messages[ids[i]].Timestamp > since })
	return s.collectForward(ids[start:], limit), nil
}

func (s *Store) collectForward(ids []int64, limit int) []models.Message {
	result := []models.Message{}
	for _, id := range ids {
		if len(result) == limit {
			break
		}
		if m := s.messages[id]; !m.Deleted {
			result = append(result, cloneMessage(m))
		}
	}
	return result
}

// SearchMessages finds live messages whose content contains the keyword, ignoring case.
// Results are newest-first. A blank keyword matches nothing.
func (s *Store) SearchMessages(keyword string, limit, offset int) []models.Message {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	result := []models.Message{}
	if keyword == "" {
		return result
	}
	limit = s.pageLimit(limit)
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		m := s.messages[s.order[i]]
		if m.Deleted || !strings.Contains(strings.ToLower(m.Content), keyword) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		result = append(result, cloneMessage(m))
	}
	return result
}

// MessageCount counts live messages across all rooms.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages {
		if !m.Deleted {
			n++
		}
	}
	return n
}

// UserCount reports the number of registered users.
func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// UserMessageCount counts live messages sent by an identity, registered or not.
func (s *Store) UserMessageCount(id models.Identity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages {
		if !m.Deleted && m.Sender == id {
			n++
		}
	}
	return n
}

// GetRoomStatistics summarizes the live messages of a room. Top posters are ordered by
// count, ties broken by identity.
func (s *Store) GetRoomStatistics(roomID string, topN int) (models.RoomStats, error) {
	if topN <= 0 {
		topN = defaultTopPosters
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.roomIDs(roomID)
	if err != nil {
		return models.RoomStats{}, err
	}

	now := s.nowMillis()
	dayStart := now - now%s.DayLength.Milliseconds()
	stats := models.RoomStats{RoomID: roomID}
	counts := make(map[models.Identity]int)
	today := make(map[models.Identity]bool)
	for _, id := range ids {
		m := s.messages[id]
		if m.Deleted {
			continue
		}
		stats.TotalMessages++
		counts[m.Sender]++
		if m.Timestamp >= dayStart {
			stats.TodayMessages++
			today[m.Sender] = true
		}
	}
	stats.ActiveUsers = len(today)

	posters := make([]models.PosterCount, 0, len(counts))
	for id, n := range counts {
		posters = append(posters, models.PosterCount{Identity: id, Count: n})
	}
	sort.Slice(posters, func(i, j int) bool {
		if posters[i].Count != posters[j].Count {
			return posters[i].Count > posters[j].Count
		}
		return posters[i].Identity < posters[j].Identity
	})
	if len(posters) > topN {
		posters = posters[:topN]
	}
	stats.TopPosters = posters
	return stats, nil
}
