package chat

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"agora/internal/content"
	"agora/internal/models"
)

const maxAvatarURL = 512

// Registration is the input of RegisterUser.
type Registration struct {
	DisplayName string
	UserName    string
	Bio         string
}

// ProfileUpdate carries optional profile fields. Nil fields keep their current value;
// an empty UserName clears the username.
type ProfileUpdate struct {
	DisplayName *string
	UserName    *string
	Bio         *string
	AvatarURL   *string
}

// UserFilter narrows GetUsers. The zero value returns everyone.
type UserFilter struct {
	OnlineOnly bool
	Role       models.Role
}

// RegisterUser creates the caller's user record. The first registered user becomes Owner.
func (s *Store) RegisterUser(caller models.Identity, reg Registration) (models.User, error) {
	if caller == "" {
		return models.User{}, fmt.Errorf("%w: anonymous caller", models.ErrUnauthorized)
	}

	displayName, err := content.NormalizeDisplayName(reg.DisplayName)
	if err != nil {
		return models.User{}, err
	}
	username := strings.TrimSpace(reg.UserName)
	if username != "" {
		if err := content.ValidateUsername(username); err != nil {
			return models.User{}, err
		}
	}
	bio := strings.TrimSpace(content.StripTags(reg.Bio))
	if err := content.ValidateBio(bio); err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[caller]; ok {
		return models.User{}, fmt.Errorf("%w: identity already registered", models.ErrAlreadyExists)
	}
	if username != "" {
		if _, taken := s.usernames[strings.ToLower(username)]; taken {
			return models.User{}, fmt.Errorf("%w: username %s is taken", models.ErrAlreadyExists, username)
		}
	}

	role := models.RoleUser
	if len(s.users) == 0 {
		role = models.RoleOwner
	}

	now := s.nowMillis()
	u := &models.User{
		Identity:    caller,
		DisplayName: displayName,
		UserName:    username,
		Bio:         bio,
		Role:        role,
		LastSeen:    now,
		Joined:      now,
		Status:      models.StatusOnline,
	}
	s.users[caller] = u
	s.joinOrder = append(s.joinOrder, caller)
	if username != "" {
		s.usernames[strings.ToLower(username)] = caller
	}
	return cloneUser(u), nil
}

// UpdateProfile applies a partial update to the caller's own record.
func (s *Store) UpdateProfile(caller models.Identity, upd ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return models.User{}, err
	}

	next := *u
	next.LastSeen = now
	if upd.DisplayName != nil {
		if next.DisplayName, err = content.NormalizeDisplayName(*upd.DisplayName); err != nil {
			return models.User{}, err
		}
	}
	if upd.Bio != nil {
		next.Bio = strings.TrimSpace(content.StripTags(*upd.Bio))
		if err := content.ValidateBio(next.Bio); err != nil {
			return models.User{}, err
		}
	}
	if upd.AvatarURL != nil {
		next.AvatarURL = strings.TrimSpace(*upd.AvatarURL)
		if err := validateAvatarURL(next.AvatarURL); err != nil {
			return models.User{}, err
		}
	}

	oldKey := strings.ToLower(u.UserName)
	newKey := oldKey
	if upd.UserName != nil {
		next.UserName = strings.TrimSpace(*upd.UserName)
		newKey = strings.ToLower(next.UserName)
		if next.UserName != "" {
			if err := content.ValidateUsername(next.UserName); err != nil {
				return models.User{}, err
			}
			if owner, taken := s.usernames[newKey]; taken && owner != caller {
				return models.User{}, fmt.Errorf("%w: username %s is taken", models.ErrAlreadyExists, next.UserName)
			}
		}
	}

	// Everything is validated; apply the record and the index together.
	if oldKey != newKey {
		if oldKey != "" {
			delete(s.usernames, oldKey)
		}
		if newKey != "" {
			s.usernames[newKey] = caller
		}
	}
	*u = next
	return cloneUser(u), nil
}

func validateAvatarURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxAvatarURL {
		return fmt.Errorf("%w: avatar url too long", models.ErrInvalidInput)
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return fmt.Errorf("%w: avatar url must be an absolute http(s) url", models.ErrInvalidInput)
	}
	return nil
}

// SetStatus changes the caller's presence status. Banned users may still change it.
func (s *Store) SetStatus(caller models.Identity, status models.UserStatus) (models.User, error) {
	if !status.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.lookupUser(caller)
	if err != nil {
		return models.User{}, err
	}
	u.Status = status
	u.LastSeen = s.nowMillis()
	return cloneUser(u), nil
}

// DeleteAccount removes the caller's own record. Their messages stay attributed to the identity.
// The Owner has to hand over ownership first.
func (s *Store) DeleteAccount(caller models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if u.Role == models.RoleOwner {
		return fmt.Errorf("%w: transfer ownership before deleting the owner account", models.ErrUnauthorized)
	}
	s.removeUser(caller)
	s.record(models.AuditEntry{
		Timestamp: now,
		Actor:     caller,
		Action:    models.AuditDeleteAccount,
		Target:    caller,
	})
	return nil
}

func (s *Store) removeUser(id models.Identity) {
	u, ok := s.users[id]
	if !ok {
		return
	}
	if u.UserName != "" {
		delete(s.usernames, strings.ToLower(u.UserName))
	}
	delete(s.users, id)
	for i, other := range s.joinOrder {
		if other == id {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}
}

// WhoAmI resolves the caller to their user record.
func (s *Store) WhoAmI(caller models.Identity) (models.User, error) {
	return s.GetUser(caller)
}

func (s *Store) GetUser(id models.Identity) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.lookupUser(id)
	if err != nil {
		return models.User{}, err
	}
	return s.view(u), nil
}

func (s *Store) GetUserRole(id models.Identity) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.lookupUser(id)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// GetUsers lists users in join order.
func (s *Store) GetUsers(filter UserFilter) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		u := s.users[id]
		if filter.OnlineOnly && u.Status == models.StatusOffline {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		users = append(users, s.view(u))
	}
	return users
}

// SearchUsers matches the query case-insensitively against display names and usernames.
// Results keep join order. A blank query matches nothing.
func (s *Store) SearchUsers(query string, limit, offset int) []models.User {
	query = strings.ToLower(strings.TrimSpace(query))
	result := []models.User{}
	if query == "" {
		return result
	}
	limit = s.pageLimit(limit)
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.joinOrder {
		u := s.users[id]
		if !strings.Contains(strings.ToLower(u.DisplayName), query) &&
			!strings.Contains(strings.ToLower(u.UserName), query) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		result = append(result, s.view(u))
		if len(result) == limit {
			break
		}
	}
	return result
}

// view returns a copy of the user with an expired ban reported as lifted.
func (s *Store) view(u *models.User) models.User {
	c := cloneUser(u)
	if c.Banned && !isBanned(u, s.nowMillis()) {
		c.Banned = false
		c.BannedUntil = 0
	}
	return c
}

// AddModerator promotes a User to Moderator. Admin or Owner only.
func (s *Store) AddModerator(caller, target models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	admin, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if !admin.Role.IsAdmin() {
		return fmt.Errorf("%w: only admins can add moderators", models.ErrUnauthorized)
	}
	u, err := s.lookupUser(target)
	if err != nil {
		return err
	}
	switch u.Role {
	case models.RoleModerator:
		admin.LastSeen = now
		return nil
	case models.RoleUser:
	default:
		return fmt.Errorf("%w: %s already outranks moderator", models.ErrInvalidInput, target)
	}
	u.Role = models.RoleModerator
	admin.LastSeen = now
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditAddModerator, Target: target})
	return nil
}

// AddAdmin promotes a User or Moderator to Admin. Owner only.
func (s *Store) AddAdmin(caller, target models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	owner, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if owner.Role != models.RoleOwner {
		return fmt.Errorf("%w: only the owner can add admins", models.ErrUnauthorized)
	}
	u, err := s.lookupUser(target)
	if err != nil {
		return err
	}
	if u.Role.IsAdmin() {
		owner.LastSeen = now
		return nil
	}
	if isBanned(u, now) {
		return fmt.Errorf("%w: target is banned", models.ErrBanned)
	}
	u.Role = models.RoleAdmin
	owner.LastSeen = now
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditAddAdmin, Target: target})
	return nil
}

// RemoveModerator demotes a Moderator back to User. Admin or Owner only.
func (s *Store) RemoveModerator(caller, target models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	admin, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if !admin.Role.IsAdmin() {
		return fmt.Errorf("%w: only admins can remove moderators", models.ErrUnauthorized)
	}
	u, err := s.lookupUser(target)
	if err != nil {
		return err
	}
	switch u.Role {
	case models.RoleUser:
		admin.LastSeen = now
		return nil
	case models.RoleModerator:
	default:
		return fmt.Errorf("%w: %s is not a moderator", models.ErrInvalidInput, target)
	}
	u.Role = models.RoleUser
	admin.LastSeen = now
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditRemoveModerator, Target: target})
	return nil
}

// TransferAdmin hands the caller's role to the target and demotes the caller to Moderator.
// Nothing changes unless every check passes.
func (s *Store) TransferAdmin(caller, target models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	admin, err := s.activeUser(caller, now)
	if err != nil {
		return err
	}
	if !admin.Role.IsAdmin() {
		return fmt.Errorf("%w: only admins can transfer admin rights", models.ErrUnauthorized)
	}
	if caller == target {
		return fmt.Errorf("%w: cannot transfer to yourself", models.ErrInvalidInput)
	}
	u, err := s.lookupUser(target)
	if err != nil {
		return err
	}
	if u.Role.Rank() >= admin.Role.Rank() {
		return fmt.Errorf("%w: %s does not outrank %s", models.ErrUnauthorized, admin.Role, u.Role)
	}
	if isBanned(u, now) {
		return fmt.Errorf("%w: target is banned", models.ErrBanned)
	}

	role := admin.Role
	u.Role = role
	admin.Role = models.RoleModerator
	admin.LastSeen = now
	s.record(models.AuditEntry{
		Timestamp: now,
		Actor:     caller,
		Action:    models.AuditTransferAdmin,
		Target:    target,
		Detail:    string(role),
	})
	return nil
}

// BanUser bans the target. A zero duration bans permanently.
// The caller must be a moderator and strictly outrank the target.
func (s *Store) BanUser(caller, target models.Identity, duration time.Duration, reason string) error {
	if duration < 0 {
		return fmt.Errorf("%w: negative ban duration", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.moderationTarget(caller, target, now)
	if err != nil {
		return err
	}
	u.Banned = true
	u.BannedUntil = 0
	if duration > 0 {
		u.BannedUntil = now + duration.Milliseconds()
	}
	s.record(models.AuditEntry{
		Timestamp: now,
		Actor:     caller,
		Action:    models.AuditBan,
		Target:    target,
		Detail:    strings.TrimSpace(reason),
	})
	return nil
}

func (s *Store) UnbanUser(caller, target models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	u, err := s.moderationTarget(caller, target, now)
	if err != nil {
		return err
	}
	if !u.Banned {
		return nil
	}
	u.Banned = false
	u.BannedUntil = 0
	s.record(models.AuditEntry{Timestamp: now, Actor: caller, Action: models.AuditUnban, Target: target})
	return nil
}

// moderationTarget enforces the ban policy: moderators act on Users, admins on Users and
// Moderators, the Owner on everyone else. Nobody acts on themselves.
func (s *Store) moderationTarget(caller, target models.Identity, now int64) (*models.User, error) {
	mod, err := s.activeUser(caller, now)
	if err != nil {
		return nil, err
	}
	if !mod.Role.IsModerator() {
		return nil, fmt.Errorf("%w: moderator role required", models.ErrUnauthorized)
	}
	if caller == target {
		return nil, fmt.Errorf("%w: cannot moderate yourself", models.ErrInvalidInput)
	}
	u, err := s.lookupUser(target)
	if err != nil {
		return nil, err
	}
	if mod.Role.Rank() <= u.Role.Rank() {
		return nil, fmt.Errorf("%w: %s does not outrank %s", models.ErrUnauthorized, mod.Role, u.Role)
	}
	mod.LastSeen = now
	return u, nil
}
