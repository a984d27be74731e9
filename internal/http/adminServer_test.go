package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agora/internal/api"
	"agora/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCheckpointer struct {
	calls int
	err   error
}

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.calls++
	return f.err
}

type fixedStats struct{}

func (fixedStats) MessageCount() int { return 7 }
func (fixedStats) UserCount() int    { return 3 }

func TestAdminServer(t *testing.T) {
	cp := &fakeCheckpointer{}
	m := metrics.New(fixedStats{})
	srv := NewAdminServer(api.NewAdminHandler(cp, fixedStats{}), m, "")

	t.Run("Snapshot", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/snapshot", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[api.SnapshotResponse](t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, 7, resp.Messages)
		assert.Equal(t, 3, resp.Users)
		assert.Equal(t, 1, cp.calls)
	})

	t.Run("Snapshot failure", func(t *testing.T) {
		cp.err = errors.New("disk full")
		defer func() { cp.err = nil }()

		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/snapshot", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "disk full")
	})

	t.Run("Metrics", func(t *testing.T) {
		m.MessagesSent.Inc()
		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "agora_messages 7")
		assert.Contains(t, body, "agora_users 3")
		assert.Contains(t, body, "agora_messages_sent_total 1")
	})

	t.Run("Wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/snapshot", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
