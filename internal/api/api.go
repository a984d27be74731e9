package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"agora/internal/auth"
	"agora/internal/chat"
	"agora/internal/content"
	"agora/internal/metrics"
	"agora/internal/models"
)

const (
	tokenName    = "token"
	maxBodyBytes = 1 << 20
)

type API struct {
	store   *chat.Store
	auth    *auth.AuthService
	metrics *metrics.Metrics
	limiter *limiterPool
}

// Limits bounds API requests per caller.
type Limits struct {
	RPS   float64
	Burst int
}

func New(store *chat.Store, authService *auth.AuthService, m *metrics.Metrics, limits Limits) *API {
	return &API{
		store:   store,
		auth:    authService,
		metrics: m,
		limiter: newLimiterPool(limits.RPS, limits.Burst),
	}
}

// AuthedHandler is a handler that runs with a resolved caller identity.
type AuthedHandler func(w http.ResponseWriter, r *http.Request, caller models.Identity)

func (a *API) getToken(r *http.Request) string {
	token := r.Header.Get(tokenName)
	if token == "" {
		if c, err := r.Cookie(tokenName); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth resolves the caller from the token header or cookie and applies the
// per-caller request limiter.
func (a *API) RequireAuth(next AuthedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.auth.Resolve(a.getToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if !a.allow(string(caller)) {
			writeError(w, fmt.Errorf("%w: too many requests", models.ErrRateLimited))
			return
		}
		next(w, r, caller)
	}
}

// RequireLimit applies the request limiter to unauthenticated endpoints, keyed by client address.
func (a *API) RequireLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !a.allow("addr:" + host) {
			writeError(w, fmt.Errorf("%w: too many requests", models.ErrRateLimited))
			return
		}
		next(w, r)
	}
}

func (a *API) allow(key string) bool {
	if a.limiter.Allow(key) {
		return true
	}
	if a.metrics != nil {
		a.metrics.RateLimited.Inc()
	}
	return false
}

// statusFor maps store and auth errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBanned), errors.Is(err, models.ErrNoPermission):
		return http.StatusForbidden
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrMessageTooLong):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSONStatus(w, status, models.APIResponse{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, msg string) {
	writeJSON(w, models.APIResponse{Success: true, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidInput, key)
	}
	return n, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidInput, key)
	}
	return &n, nil
}

func queryInt64Or(r *http.Request, key string, fallback int64) (int64, error) {
	n, err := queryInt64(r, key)
	if err != nil || n == nil {
		return fallback, err
	}
	return *n, nil
}

func pathMessageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: message id must be an integer", models.ErrInvalidInput)
	}
	return id, nil
}

// MessageView is a message as served to clients, with its content rendered to safe HTML.
type MessageView struct {
	models.Message
	HTML string `json:"html"`
}

func viewOf(m models.Message) MessageView {
	v := MessageView{Message: m}
	if !m.Deleted {
		v.HTML = content.Render(m.Content)
	}
	return v
}

func viewsOf(msgs []models.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, viewOf(m))
	}
	return views
}
