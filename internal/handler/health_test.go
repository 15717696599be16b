package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/link-broker-go/internal/service"
)

type mockStats struct {
	stats service.Stats
	err   error
}

func (m *mockStats) Stats(ctx context.Context) (service.Stats, error) {
	return m.stats, m.err
}

func getHealth(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthHandler(t *testing.T) {
	t.Run("reports broker counts", func(t *testing.T) {
		h := NewHealthHandler(&mockStats{stats: service.Stats{Sessions: 2, Pairings: 1, Connections: 3}}, nil)

		code, body := getHealth(t, h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, 2.0, body["sessions"])
		assert.Equal(t, 1.0, body["pairings"])
		assert.Equal(t, 3.0, body["connections"])
		assert.NotContains(t, body, "dependencies")
	})

	t.Run("degraded when a dependency is down", func(t *testing.T) {
		h := NewHealthHandler(&mockStats{}, map[string]Pinger{
			"redis":    func(context.Context) error { return errors.New("connection refused") },
			"database": func(context.Context) error { return nil },
		})

		code, body := getHealth(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, map[string]any{"redis": "down", "database": "ok"}, body["dependencies"])
	})

	t.Run("unavailable when the broker has stopped", func(t *testing.T) {
		h := NewHealthHandler(&mockStats{err: service.ErrBrokerStopped}, nil)

		code, body := getHealth(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", body["status"])
	})
}
