package content

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"agora/internal/models"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	MaxDisplayName    = 50
	MinUserName       = 3
	MaxUserName       = 30
	MaxBio            = 500
	MaxMessage        = 5000
	MaxEmoji          = 32
	MaxAttachments    = 10
	MaxAttachmentSize = 25 << 20
	MaxRoomID         = 32
	MaxRoomName       = 64
)

var (
	policy        = bluemonday.UGCPolicy()
	strict        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	roomIDRegex   = regexp.MustCompile(`^[a-z0-9-]+$`)
	markdown      = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
)

// Sanitize removes unsafe HTML from the input string using the UGC policy.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// StripTags removes every HTML tag and returns plain text. Used for fields like display names.
func StripTags(input string) string {
	return html.UnescapeString(strict.Sanitize(input))
}

// Escape escapes special characters like "<" to become "&lt;".
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// Render converts markdown message content to sanitized HTML.
func Render(input string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return Escape(input)
	}
	return policy.Sanitize(buf.String())
}

// NormalizeDisplayName strips markup and surrounding whitespace and validates the result:
// 1-50 characters, no '@' or '/'.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(StripTags(name))
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", fmt.Errorf("%w: display name cannot be empty", models.ErrInvalidInput)
	}
	if n > MaxDisplayName {
		return "", fmt.Errorf("%w: display name longer than %d characters", models.ErrInvalidInput, MaxDisplayName)
	}
	if strings.ContainsAny(name, "@/") {
		return "", fmt.Errorf("%w: display name cannot contain '@' or '/'", models.ErrInvalidInput)
	}
	return name, nil
}

// ValidateUsername checks that the username is 3-30 characters of letters, digits and underscore.
func ValidateUsername(username string) error {
	if len(username) < MinUserName || len(username) > MaxUserName {
		return fmt.Errorf("%w: username must be %d-%d characters", models.ErrInvalidInput, MinUserName, MaxUserName)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username contains invalid characters (allowed: alphanumeric, underscore)", models.ErrInvalidInput)
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBio {
		return fmt.Errorf("%w: bio longer than %d characters", models.ErrInvalidInput, MaxBio)
	}
	return nil
}

// NormalizeMessage trims the message and checks its length.
func NormalizeMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message cannot be empty", models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxMessage {
		return "", fmt.Errorf("%w: limit is %d characters", models.ErrMessageTooLong, MaxMessage)
	}
	return text, nil
}

func ValidateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return fmt.Errorf("%w: emoji cannot be empty", models.ErrInvalidInput)
	}
	if len(emoji) > MaxEmoji {
		return fmt.Errorf("%w: emoji too long", models.ErrInvalidInput)
	}
	return nil
}

// NormalizeAttachments validates attachment metadata and fills in missing MIME types
// from the file extension.
func NormalizeAttachments(in []models.Attachment) ([]models.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > MaxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", models.ErrInvalidInput, MaxAttachments)
	}
	out := make([]models.Attachment, len(in))
	for i, a := range in {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" || a.FileID == "" {
			return nil, fmt.Errorf("%w: attachment needs a name and a file id", models.ErrInvalidInput)
		}
		if a.Size < 0 || a.Size > MaxAttachmentSize {
			return nil, fmt.Errorf("%w: attachment %q has invalid size", models.ErrInvalidInput, a.Name)
		}
		if a.MimeType == "" {
			a.MimeType = MimeFromName(a.Name)
		}
		out[i] = a
	}
	return out, nil
}

// MimeFromName guesses a MIME type from the file extension.
func MimeFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "application/octet-stream"
	}
	t := filetype.GetType(ext)
	if t == filetype.Unknown {
		return "application/octet-stream"
	}
	return t.MIME.Value
}

// NormalizeRoom validates a room id and name. An empty name defaults to the id.
func NormalizeRoom(id, name string) (string, string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxRoomID || !roomIDRegex.MatchString(id) {
		return "", "", fmt.Errorf("%w: room id must be 1-%d characters of a-z, 0-9 and '-'", models.ErrInvalidInput, MaxRoomID)
	}
	name = strings.TrimSpace(StripTags(name))
	if name == "" {
		name = id
	}
	if utf8.RuneCountInString(name) > MaxRoomName {
		return "", "", fmt.Errorf("%w: room name longer than %d characters", models.ErrInvalidInput, MaxRoomName)
	}
	return id, name, nil
}
