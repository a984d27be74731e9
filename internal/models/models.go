package models

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("rate limited")
	ErrBanned         = errors.New("banned")
	ErrNoPermission   = errors.New("no permission")
	ErrAlreadyExists  = errors.New("already exists")
	ErrMessageTooLong = errors.New("message too long")
)

// Identity is an opaque caller reference supplied by the transport layer.
type Identity string

type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
)

// Rank orders roles from least to most privileged. Unknown roles rank below User.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	case RoleOwner:
		return 4
	}
	return 0
}

// IsModerator reports whether the role carries moderation rights.
func (r Role) IsModerator() bool {
	return r.Rank() >= RoleModerator.Rank()
}

// IsAdmin reports whether the role carries administrative rights.
func (r Role) IsAdmin() bool {
	return r.Rank() >= RoleAdmin.Rank()
}

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Rank() > 0
}

type UserStatus string

const (
	StatusOnline       UserStatus = "online"
	StatusAway         UserStatus = "away"
	StatusOffline      UserStatus = "offline"
	StatusDoNotDisturb UserStatus = "dnd"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline, StatusDoNotDisturb:
		return true
	}
	return false
}

// User represents a registered chat participant.
type User struct {
	Identity     Identity   `json:"identity"`
	DisplayName  string     `json:"displayName"`
	UserName     string     `json:"userName,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	Role         Role       `json:"role"`
	Banned       bool       `json:"banned"`
	BannedUntil  int64      `json:"bannedUntil,omitempty"` // Unix ms, 0 means permanent
	LastSeen     int64      `json:"lastSeen"`              // Unix ms
	Joined       int64      `json:"joined"`                // Unix ms
	MessageCount int64      `json:"messageCount"`
	Status       UserStatus `json:"status"`
}

// Reaction is a single emoji reaction left by one user.
type Reaction struct {
	Reactor   Identity `json:"reactor"`
	Emoji     string   `json:"emoji"`
	Timestamp int64    `json:"timestamp"`
}

// Attachment is metadata about a file referenced by a message. The file itself lives elsewhere.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	FileID   string `json:"fileId"`
}

// Message represents a chat message.
type Message struct {
	ID          int64        `json:"id"`
	Sender      Identity     `json:"sender"`
	RoomID      string       `json:"roomId"`
	Content     string       `json:"content"`
	Timestamp   int64        `json:"timestamp"` // Unix ms, set once at creation
	Edited      bool         `json:"edited"`
	EditedAt    int64        `json:"editedAt,omitempty"`
	Deleted     bool         `json:"deleted"`
	Pinned      bool         `json:"pinned"`
	ReplyTo     *int64       `json:"replyTo,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Room is a named timeline. The default room always exists.
type Room struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ReadOnly  bool     `json:"readOnly"`
	CreatedBy Identity `json:"createdBy,omitempty"`
	Created   int64    `json:"created"`
}

// PosterCount is one entry of a room leaderboard.
type PosterCount struct {
	Identity Identity `json:"identity"`
	Count    int      `json:"count"`
}

type RoomStats struct {
	RoomID        string        `json:"roomId"`
	TotalMessages int           `json:"totalMessages"`
	TodayMessages int           `json:"todayMessages"`
	ActiveUsers   int           `json:"activeUsers"`
	TopPosters    []PosterCount `json:"topPosters"`
}

type AuditAction string

const (
	AuditBan             AuditAction = "ban"
	AuditUnban           AuditAction = "unban"
	AuditAddModerator    AuditAction = "add_moderator"
	AuditRemoveModerator AuditAction = "remove_moderator"
	AuditAddAdmin        AuditAction = "add_admin"
	AuditTransferAdmin   AuditAction = "transfer_admin"
	AuditEditMessage     AuditAction = "edit_message"
	AuditDeleteMessage   AuditAction = "delete_message"
	AuditPin             AuditAction = "pin"
	AuditUnpin           AuditAction = "unpin"
	AuditCreateRoom      AuditAction = "create_room"
	AuditClearMessages   AuditAction = "clear_messages"
	AuditClearUsers      AuditAction = "clear_users"
	AuditDeleteAccount   AuditAction = "delete_account"
)

// AuditEntry records a moderation or administrative action.
type AuditEntry struct {
	Timestamp int64       `json:"timestamp"`
	Actor     Identity    `json:"actor"`
	Action    AuditAction `json:"action"`
	Target    Identity    `json:"target,omitempty"`
	MessageID *int64      `json:"messageId,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// APIResponse is the envelope used for non-data API replies.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
