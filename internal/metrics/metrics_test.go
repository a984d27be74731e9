package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counts struct{ messages, users int }

func (c *counts) MessageCount() int { return c.messages }
func (c *counts) UserCount() int    { return c.users }

func TestGauges(t *testing.T) {
	src := &counts{messages: 4, users: 2}
	m := New(src)

	n, err := testutil.GatherAndCount(m.registry, "agora_messages", "agora_users")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	src.messages = 9
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agora_messages 9")
}

func TestInstrument(t *testing.T) {
	m := New(nil)
	h := m.Instrument("GET /api/things", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, target := range []string{"/api/things", "/api/things", "/api/things?missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.Requests.WithLabelValues("GET /api/things", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("GET /api/things", "404")), 0)
}
