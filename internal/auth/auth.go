package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agora/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	DefaultTokenExpiry = 30 * 24 * time.Hour
	tokenBytes         = 32
)

// Session is handed to a client once. The raw token is never stored.
type Session struct {
	Identity    models.Identity `json:"identity"`
	Token       string          `json:"token"`
	TokenExpiry int64           `json:"tokenExpiry"` // Unix seconds
}

// TokenRecord is the persisted form of a token: its hash, owner and expiry.
type TokenRecord struct {
	Hash      string
	Identity  models.Identity
	ExpiresAt int64 // Unix seconds
}

type TokenStorage interface {
	UpsertToken(rec TokenRecord) error
	DeleteToken(hash string) error
	ListTokens() ([]TokenRecord, error)
}

type Config struct {
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must not be negative")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	return nil
}

type liveToken struct {
	identity  models.Identity
	expiresAt int64
}

// AuthService issues opaque identities and resolves bearer tokens to them.
type AuthService struct {
	Config
	storage    TokenStorage
	liveTokens geche.Geche[string, liveToken] // keyed by token hash
	now        func() time.Time
}

// NewAuthService creates the service and loads every unexpired token from storage.
func NewAuthService(ctx context.Context, config Config, storage TokenStorage) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	as := &AuthService{
		Config:     config,
		storage:    storage,
		liveTokens: geche.NewMapTTLCache[string, liveToken](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}

	if storage == nil {
		return as, nil
	}
	records, err := storage.ListTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	now := as.now().Unix()
	for _, rec := range records {
		if rec.ExpiresAt <= now {
			if err := storage.DeleteToken(rec.Hash); err != nil {
				slog.Error("failed to drop expired token", "identity", rec.Identity, "error", err)
			}
			continue
		}
		as.liveTokens.Set(rec.Hash, liveToken{identity: rec.Identity, expiresAt: rec.ExpiresAt})
	}
	return as, nil
}

func hashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (as *AuthService) generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a fresh identity together with its first token.
func (as *AuthService) Issue() (Session, error) {
	return as.IssueFor(models.Identity(uuid.NewString()))
}

// IssueFor creates an additional token for an existing identity.
func (as *AuthService) IssueFor(identity models.Identity) (Session, error) {
	if identity == "" {
		return Session{}, fmt.Errorf("%w: empty identity", models.ErrInvalidInput)
	}
	token, err := as.generateToken()
	if err != nil {
		return Session{}, err
	}

	rec := TokenRecord{
		Hash:      hashToken(token),
		Identity:  identity,
		ExpiresAt: as.now().Add(as.TokenExpiry).Unix(),
	}
	if as.storage != nil {
		if err := as.storage.UpsertToken(rec); err != nil {
			return Session{}, fmt.Errorf("failed to persist token: %w", err)
		}
	}
	as.liveTokens.Set(rec.Hash, liveToken{identity: identity, expiresAt: rec.ExpiresAt})

	return Session{
		Identity:    identity,
		Token:       token,
		TokenExpiry: rec.ExpiresAt,
	}, nil
}

// Resolve returns the identity behind a bearer token.
func (as *AuthService) Resolve(token string) (models.Identity, error) {
	if token == "" {
		return "", models.ErrUnauthorized
	}
	hash := hashToken(token)
	live, err := as.liveTokens.Get(hash)
	if err != nil {
		return "", models.ErrUnauthorized
	}
	if live.expiresAt <= as.now().Unix() {
		_ = as.revokeHash(hash)
		return "", models.ErrUnauthorized
	}
	return live.identity, nil
}

// Revoke invalidates a token. Revoking an unknown token is not an error.
func (as *AuthService) Revoke(token string) error {
	return as.revokeHash(hashToken(token))
}

func (as *AuthService) revokeHash(hash string) error {
	_ = as.liveTokens.Del(hash)
	if as.storage == nil {
		return nil
	}
	return as.storage.DeleteToken(hash)
}
