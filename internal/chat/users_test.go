package chat

import (
	"testing"
	"time"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestRegisterUser(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.RegisterUser(alice, Registration{DisplayName: "Alice", UserName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, first.Role)
	assert.Equal(t, models.StatusOnline, first.Status)
	assert.Equal(t, int64(t0Unix*1000), first.Joined)

	second, err := s.RegisterUser(bob, Registration{DisplayName: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, second.Role)

	tests := []struct {
		name    string
		caller  models.Identity
		reg     Registration
		wantErr error
	}{
		{"Same identity", alice, Registration{DisplayName: "Again"}, models.ErrAlreadyExists},
		{"Username taken ignoring case", carol, Registration{DisplayName: "Carol", UserName: "ALICE"}, models.ErrAlreadyExists},
		{"Empty display name", carol, Registration{DisplayName: "  "}, models.ErrInvalidInput},
		{"Display name with at", carol, Registration{DisplayName: "@carol"}, models.ErrInvalidInput},
		{"Bad username", carol, Registration{DisplayName: "Carol", UserName: "c!"}, models.ErrInvalidInput},
		{"Anonymous", "", Registration{DisplayName: "Ghost"}, models.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RegisterUser(tt.caller, tt.reg)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.Len(t, s.GetUsers(UserFilter{}), 2)
}

func TestUpdateProfile(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.RegisterUser(alice, Registration{DisplayName: "Alice", UserName: "alice", Bio: "hi"})
	require.NoError(t, err)
	register(t, s, bob, "Bob")

	t.Run("Partial update keeps other fields", func(t *testing.T) {
		u, err := s.UpdateProfile(alice, ProfileUpdate{Bio: strPtr("new bio")})
		require.NoError(t, err)
		assert.Equal(t, "Alice", u.DisplayName)
		assert.Equal(t, "alice", u.UserName)
		assert.Equal(t, "new bio", u.Bio)
	})

	t.Run("Username index follows renames", func(t *testing.T) {
		_, err := s.UpdateProfile(bob, ProfileUpdate{UserName: strPtr("Alice")})
		require.ErrorIs(t, err, models.ErrAlreadyExists)

		_, err = s.UpdateProfile(alice, ProfileUpdate{UserName: strPtr("alice2")})
		require.NoError(t, err)
		assert.NotContains(t, s.usernames, "alice")
		assert.Equal(t, alice, s.usernames["alice2"])

		_, err = s.UpdateProfile(bob, ProfileUpdate{UserName: strPtr("Alice")})
		require.NoError(t, err)
		assert.Equal(t, bob, s.usernames["alice"])

		_, err = s.UpdateProfile(alice, ProfileUpdate{UserName: strPtr("ALICE")})
		require.ErrorIs(t, err, models.ErrAlreadyExists)
	})

	t.Run("Case-only rename keeps own key", func(t *testing.T) {
		u, err := s.UpdateProfile(alice, ProfileUpdate{UserName: strPtr("Alice2")})
		require.NoError(t, err)
		assert.Equal(t, "Alice2", u.UserName)
		assert.Equal(t, alice, s.usernames["alice2"])
	})

	t.Run("Clearing username frees it", func(t *testing.T) {
		_, err := s.UpdateProfile(alice, ProfileUpdate{UserName: strPtr("")})
		require.NoError(t, err)
		assert.NotContains(t, s.usernames, "alice2")
		assert.Len(t, s.usernames, 1)
	})

	t.Run("Failed update changes nothing", func(t *testing.T) {
		_, err := s.UpdateProfile(bob, ProfileUpdate{DisplayName: strPtr("Bobby"), UserName: strPtr("x")})
		require.ErrorIs(t, err, models.ErrInvalidInput)
		u, err := s.GetUser(bob)
		require.NoError(t, err)
		assert.Equal(t, "Bob", u.DisplayName)
	})

	t.Run("Avatar url", func(t *testing.T) {
		_, err := s.UpdateProfile(bob, ProfileUpdate{AvatarURL: strPtr("javascript:alert(1)")})
		require.ErrorIs(t, err, models.ErrInvalidInput)
		u, err := s.UpdateProfile(bob, ProfileUpdate{AvatarURL: strPtr("https://example.com/a.png")})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a.png", u.AvatarURL)
	})

	t.Run("Unregistered", func(t *testing.T) {
		_, err := s.UpdateProfile(carol, ProfileUpdate{Bio: strPtr("x")})
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Banned", func(t *testing.T) {
		require.NoError(t, s.BanUser(alice, bob, 0, "spam"))
		_, err := s.UpdateProfile(bob, ProfileUpdate{Bio: strPtr("x")})
		require.ErrorIs(t, err, models.ErrBanned)
	})
}

func TestUsersQueries(t *testing.T) {
	s, _ := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bobby Tables")
	_, err := s.RegisterUser(carol, Registration{DisplayName: "Carol", UserName: "bob_fan"})
	require.NoError(t, err)

	_, err = s.SetStatus(carol, models.StatusOffline)
	require.NoError(t, err)
	_, err = s.SetStatus(carol, "sleeping")
	require.ErrorIs(t, err, models.ErrInvalidInput)

	online := s.GetUsers(UserFilter{OnlineOnly: true})
	assert.Len(t, online, 2)

	owners := s.GetUsers(UserFilter{Role: models.RoleOwner})
	require.Len(t, owners, 1)
	assert.Equal(t, alice, owners[0].Identity)

	found := s.SearchUsers("BOB", 10, 0)
	require.Len(t, found, 2)
	assert.Equal(t, bob, found[0].Identity)
	assert.Equal(t, carol, found[1].Identity)

	page := s.SearchUsers("bob", 1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, carol, page[0].Identity)

	assert.Empty(t, s.SearchUsers("  ", 10, 0))

	role, err := s.GetUserRole(bob)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, role)
	_, err = s.GetUserRole(dave)
	require.ErrorIs(t, err, models.ErrNotFound)

	me, err := s.WhoAmI(alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.DisplayName)
	_, err = s.WhoAmI(dave)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestRoles(t *testing.T) {
	s, _ := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")
	register(t, s, carol, "Carol")

	require.ErrorIs(t, s.AddModerator(bob, carol), models.ErrUnauthorized)
	require.ErrorIs(t, s.AddModerator(alice, dave), models.ErrNotFound)

	require.NoError(t, s.AddModerator(alice, bob))
	role, _ := s.GetUserRole(bob)
	require.Equal(t, models.RoleModerator, role)
	require.NoError(t, s.AddModerator(alice, bob))
	require.ErrorIs(t, s.AddModerator(alice, alice), models.ErrInvalidInput)

	require.ErrorIs(t, s.AddAdmin(bob, carol), models.ErrUnauthorized)
	require.NoError(t, s.AddAdmin(alice, carol))
	role, _ = s.GetUserRole(carol)
	require.Equal(t, models.RoleAdmin, role)
	require.NoError(t, s.AddAdmin(alice, carol))

	// Admins manage moderators but cannot mint other admins.
	require.ErrorIs(t, s.AddAdmin(carol, bob), models.ErrUnauthorized)
	require.NoError(t, s.RemoveModerator(carol, bob))
	role, _ = s.GetUserRole(bob)
	require.Equal(t, models.RoleUser, role)
	require.NoError(t, s.RemoveModerator(carol, bob))
	require.ErrorIs(t, s.RemoveModerator(carol, alice), models.ErrInvalidInput)
	require.ErrorIs(t, s.RemoveModerator(bob, carol), models.ErrUnauthorized)

	actions := auditActions(t, s, alice)
	require.Equal(t, []models.AuditAction{
		models.AuditAddModerator,
		models.AuditAddAdmin,
		models.AuditRemoveModerator,
	}, actions)
}

func auditActions(t *testing.T, s *Store, caller models.Identity) []models.AuditAction {
	t.Helper()
	entries, err := s.GetAuditLog(caller, 0)
	require.NoError(t, err)
	actions := make([]models.AuditAction, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func TestTransferAdmin(t *testing.T) {
	s, _ := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")
	register(t, s, carol, "Carol")
	require.NoError(t, s.BanUser(alice, carol, 0, ""))

	tests := []struct {
		name    string
		caller  models.Identity
		target  models.Identity
		wantErr error
	}{
		{"Not an admin", bob, alice, models.ErrUnauthorized},
		{"To self", alice, alice, models.ErrInvalidInput},
		{"Unknown target", alice, dave, models.ErrNotFound},
		{"Banned target", alice, carol, models.ErrBanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, s.TransferAdmin(tt.caller, tt.target), tt.wantErr)

			role, err := s.GetUserRole(alice)
			require.NoError(t, err)
			require.Equal(t, models.RoleOwner, role)
		})
	}

	register(t, s, dave, "Dave")
	require.NoError(t, s.AddAdmin(alice, dave))
	t.Run("Admin cannot transfer to Owner", func(t *testing.T) {
		require.ErrorIs(t, s.TransferAdmin(dave, alice), models.ErrUnauthorized)
		role, _ := s.GetUserRole(alice)
		require.Equal(t, models.RoleOwner, role)
		role, _ = s.GetUserRole(dave)
		require.Equal(t, models.RoleAdmin, role)
	})

	require.NoError(t, s.TransferAdmin(alice, bob))
	role, _ := s.GetUserRole(bob)
	require.Equal(t, models.RoleOwner, role)
	role, _ = s.GetUserRole(alice)
	require.Equal(t, models.RoleModerator, role)

	require.Len(t, s.GetUsers(UserFilter{Role: models.RoleOwner}), 1)
}

func TestBanPolicy(t *testing.T) {
	tests := []struct {
		name       string
		callerRole models.Role
		targetRole models.Role
		wantErr    error
	}{
		{"User cannot ban", models.RoleUser, models.RoleUser, models.ErrUnauthorized},
		{"Moderator bans user", models.RoleModerator, models.RoleUser, nil},
		{"Moderator cannot ban moderator", models.RoleModerator, models.RoleModerator, models.ErrUnauthorized},
		{"Moderator cannot ban admin", models.RoleModerator, models.RoleAdmin, models.ErrUnauthorized},
		{"Admin bans moderator", models.RoleAdmin, models.RoleModerator, nil},
		{"Admin cannot ban admin", models.RoleAdmin, models.RoleAdmin, models.ErrUnauthorized},
		{"Admin cannot ban owner", models.RoleAdmin, models.RoleOwner, models.ErrUnauthorized},
		{"Owner bans admin", models.RoleOwner, models.RoleAdmin, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			register(t, s, alice, "Owner")
			register(t, s, bob, "Caller")
			register(t, s, carol, "Target")
			s.users[bob].Role = tt.callerRole
			s.users[carol].Role = tt.targetRole
			if tt.callerRole == models.RoleOwner {
				s.users[alice].Role = models.RoleAdmin
			}

			err := s.BanUser(bob, carol, 0, "reason")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				u, _ := s.GetUser(carol)
				require.False(t, u.Banned)
				return
			}
			require.NoError(t, err)
			u, _ := s.GetUser(carol)
			require.True(t, u.Banned)
			require.Zero(t, u.BannedUntil)

			require.NoError(t, s.UnbanUser(bob, carol))
			u, _ = s.GetUser(carol)
			require.False(t, u.Banned)
		})
	}
}

func TestBanEffects(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")

	require.ErrorIs(t, s.BanUser(alice, alice, 0, ""), models.ErrInvalidInput)
	require.ErrorIs(t, s.BanUser(alice, bob, -time.Second, ""), models.ErrInvalidInput)
	require.ErrorIs(t, s.BanUser(alice, dave, 0, ""), models.ErrNotFound)

	require.NoError(t, s.BanUser(alice, bob, time.Hour, "flood"))
	u, err := s.GetUser(bob)
	require.NoError(t, err)
	require.True(t, u.Banned)
	require.Equal(t, int64(t0Unix*1000)+time.Hour.Milliseconds(), u.BannedUntil)

	*now = now.Add(2 * time.Second)
	_, err = s.SendMessage(bob, Draft{Content: "let me in"})
	require.ErrorIs(t, err, models.ErrBanned)
	require.ErrorIs(t, s.BanUser(bob, alice, 0, ""), models.ErrBanned)

	// Banned users can still change their status.
	_, err = s.SetStatus(bob, models.StatusAway)
	require.NoError(t, err)

	*now = now.Add(time.Hour)
	u, err = s.GetUser(bob)
	require.NoError(t, err)
	require.False(t, u.Banned)
	_, err = s.SendMessage(bob, Draft{Content: "back again"})
	require.NoError(t, err)

	entries, err := s.GetAuditLog(alice, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, models.AuditBan, entries[0].Action)
	require.Equal(t, "flood", entries[0].Detail)
}

func TestDeleteAccount(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	_, err := s.RegisterUser(bob, Registration{DisplayName: "Bob", UserName: "bobby"})
	require.NoError(t, err)
	m := send(t, s, now, bob, "remember me")

	require.ErrorIs(t, s.DeleteAccount(alice), models.ErrUnauthorized)
	require.ErrorIs(t, s.DeleteAccount(dave), models.ErrNotFound)

	require.NoError(t, s.DeleteAccount(bob))
	_, err = s.GetUser(bob)
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.NotContains(t, s.usernames, "bobby")
	assert.Len(t, s.GetUsers(UserFilter{}), 1)

	orphan, err := s.GetMessageByID(alice, m.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, orphan.Sender)

	// The identity can register again and picks up a fresh record.
	again := register(t, s, bob, "Bob Again")
	assert.Equal(t, models.RoleUser, again.Role)
	assert.Zero(t, again.MessageCount)
}

func TestDeleteAccountKeepsAbuseControls(t *testing.T) {
	s, now := newTestStore(t, func(c *Config) { c.DailyMessageCap = 1 })
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")

	send(t, s, now, bob, "one")
	*now = now.Add(2 * time.Second)
	_, err := s.SendMessage(bob, Draft{Content: "two"})
	require.ErrorIs(t, err, models.ErrRateLimited)

	require.NoError(t, s.BanUser(alice, bob, 0, "spam"))
	require.ErrorIs(t, s.DeleteAccount(bob), models.ErrBanned)
	_, err = s.GetUser(bob)
	require.NoError(t, err)

	// Once unbanned the account can go, but the send history stays with the identity.
	require.NoError(t, s.UnbanUser(alice, bob))
	require.NoError(t, s.DeleteAccount(bob))
	st, ok := s.RateLimit(bob)
	require.True(t, ok)
	assert.Equal(t, 1, st.DayCount)

	register(t, s, bob, "Bob")
	_, err = s.SendMessage(bob, Draft{Content: "three"})
	require.ErrorIs(t, err, models.ErrRateLimited)
}

func TestLastSeenOnlyOnSuccess(t *testing.T) {
	s, now := newTestStore(t)
	register(t, s, alice, "Alice")
	register(t, s, bob, "Bob")
	m := send(t, s, now, alice, "hello")
	joined := s.users[bob].LastSeen

	*now = now.Add(time.Minute)
	require.ErrorIs(t, s.PinMessage(bob, m.ID), models.ErrUnauthorized)
	_, err := s.UpdateProfile(bob, ProfileUpdate{DisplayName: strPtr("@bob")})
	require.ErrorIs(t, err, models.ErrInvalidInput)
	require.ErrorIs(t, s.BanUser(bob, alice, 0, ""), models.ErrUnauthorized)
	assert.Equal(t, joined, s.users[bob].LastSeen)

	_, err = s.ToggleReaction(bob, m.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), s.users[bob].LastSeen)
}
