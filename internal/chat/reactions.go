package chat

import (
	"fmt"

	"agora/internal/content"
	"agora/internal/models"
)

// ToggleReaction adds the caller's emoji reaction, or removes it if it is already there.
// It reports whether the reaction is present afterwards.
func (s *Store) ToggleReaction(caller models.Identity, id int64, emoji string) (bool, error) {
	if err := content.ValidateEmoji(emoji); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return false, err
	}
	m, err := s.liveMessage(id)
	if err != nil {
		return false, err
	}

	for i, r := range m.Reactions {
		if r.Reactor == caller && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i:i], m.Reactions[i+1:]...)
			if len(m.Reactions) == 0 {
				m.Reactions = nil
			}
			u.LastSeen = now
			return false, nil
		}
	}
	if len(m.Reactions) >= s.MaxReactions {
		return false, fmt.Errorf("%w: message already has %d reactions", models.ErrInvalidInput, s.MaxReactions)
	}
	m.Reactions = append(m.Reactions, models.Reaction{Reactor: caller, Emoji: emoji, Timestamp: now})
	u.LastSeen = now
	return true, nil
}
