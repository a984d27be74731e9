package chat

import (
	"fmt"

	"agora/internal/models"
)

// RateLimitState is the per-identity send history. It is an abuse-control cache only and
// may be dropped at any time.
type RateLimitState struct {
	LastSend  int64 `json:"lastSend"`  // Unix ms
	DayBucket int64 `json:"dayBucket"` // Unix ms of the bucket start
	DayCount  int   `json:"dayCount"`
}

// SweepResult reports what a cleanup pass removed.
type SweepResult struct {
	RateLimitsPurged int
	MessagesPurged   int
}

// allowSend checks both limits and, only when the send is allowed, records it.
// Must be called with the write lock held and only once the message is certain to be stored.
func (s *Store) allowSend(id models.Identity, now int64) error {
	st, ok := s.limits[id]
	if ok && now-st.LastSend < s.MinSendInterval.Milliseconds() {
		return fmt.Errorf("%w: wait %s between messages", models.ErrRateLimited, s.MinSendInterval)
	}

	day := s.DayLength.Milliseconds()
	bucket := now - now%day
	if ok && s.DailyMessageCap > 0 && st.DayBucket == bucket && st.DayCount >= s.DailyMessageCap {
		return fmt.Errorf("%w: daily limit of %d messages reached", models.ErrRateLimited, s.DailyMessageCap)
	}

	if !ok {
		st = &RateLimitState{}
		s.limits[id] = st
	}
	if st.DayBucket != bucket {
		st.DayBucket = bucket
		st.DayCount = 0
	}
	st.DayCount++
	st.LastSend = now
	return nil
}

// RateLimit returns the limiter state of an identity.
func (s *Store) RateLimit(id models.Identity) (RateLimitState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.limits[id]
	if !ok {
		return RateLimitState{}, false
	}
	return *st, true
}

// Sweep purges idle rate-limit entries and, when retention is enabled, non-pinned messages
// older than the retention period.
func (s *Store) Sweep() SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(s.nowMillis())
}

func (s *Store) sweepLocked(now int64) SweepResult {
	var res SweepResult
	s.sinceSweep = 0

	idleCutoff := now - s.RateLimitCleanupWindow.Milliseconds()
	for id, st := range s.limits {
		if st.LastSend < idleCutoff {
			delete(s.limits, id)
			res.RateLimitsPurged++
		}
	}

	if s.RetentionPeriod <= 0 {
		return res
	}
	cutoff := now - s.RetentionPeriod.Milliseconds()
	purged := make(map[int64]bool)
	for _, id := range s.order {
		m := s.messages[id]
		if m.Timestamp >= cutoff {
			// Timestamps never decrease along the id order.
			break
		}
		if m.Pinned {
			continue
		}
		purged[id] = true
	}
	if len(purged) == 0 {
		return res
	}
	s.purge(purged)
	res.MessagesPurged = len(purged)
	return res
}

// purge hard-removes messages and keeps every index consistent. Reply lists of purged
// parents are kept so their threads still resolve.
func (s *Store) purge(ids map[int64]bool) {
	keep := func(list []int64) []int64 {
		out := list[:0:0]
		for _, id := range list {
			if !ids[id] {
				out = append(out, id)
			}
		}
		return out
	}

	for id := range ids {
		m := s.messages[id]
		if m.ReplyTo != nil {
			parent := *m.ReplyTo
			if rest := keep(s.replies[parent]); len(rest) > 0 {
				s.replies[parent] = rest
			} else {
				delete(s.replies, parent)
			}
		}
		delete(s.messages, id)
	}
	s.order = keep(s.order)
	for room, list := range s.roomIndex {
		s.roomIndex[room] = keep(list)
	}
}
