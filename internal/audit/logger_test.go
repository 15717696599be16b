package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/link-broker-go/internal/model"
)

type mockWriter struct {
	mu     sync.Mutex
	events []model.CreateLinkEventParams
	err    error
}

func (m *mockWriter) Create(ctx context.Context, params model.CreateLinkEventParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, params)
	return m.err
}

func (m *mockWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestLogger(t *testing.T) {
	t.Run("log-only logger accepts events without a writer", func(t *testing.T) {
		l := NewLogger(nil, 0)
		l.Start()
		l.Record(model.CreateLinkEventParams{SessionID: "S1", Type: model.LinkEventCreated})
		l.Stop()
		l.Stop()
	})

	t.Run("writes events in the background", func(t *testing.T) {
		w := &mockWriter{}
		l := NewLogger(w, 8)
		l.Start()
		defer l.Stop()

		l.Record(model.CreateLinkEventParams{
			SessionID: "S1",
			Type:      model.LinkEventLinked,
			ConnID:    "c1",
			Details:   map[string]any{"source": "pairing", "attempt": 2},
		})

		assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
		w.mu.Lock()
		assert.False(t, w.events[0].CreatedAt.IsZero())
		w.mu.Unlock()
	})

	t.Run("stop drains pending events", func(t *testing.T) {
		w := &mockWriter{err: errors.New("db down")}
		l := NewLogger(w, 8)
		for i := 0; i < 5; i++ {
			l.Record(model.CreateLinkEventParams{SessionID: "S", Type: model.LinkEventExpired})
		}
		l.Start()
		l.Stop()

		assert.Equal(t, 5, w.count())
	})

	t.Run("drops events when the buffer is full", func(t *testing.T) {
		w := &mockWriter{}
		l := NewLogger(w, 2)
		for i := 0; i < 5; i++ {
			l.Record(model.CreateLinkEventParams{SessionID: "S", Type: model.LinkEventExpired})
		}
		l.Start()
		l.Stop()

		assert.Equal(t, 2, w.count())
	})
}

func TestClientIP(t *testing.T) {
	t.Run("prefers first forwarded address", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		assert.Equal(t, "203.0.113.5", ClientIP(r))
	})

	t.Run("falls back to remote host", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.RemoteAddr = "192.0.2.7:51234"
		assert.Equal(t, "192.0.2.7", ClientIP(r))
	})
}

func TestRemoteIP(t *testing.T) {
	t.Run("ignores forwarding headers", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.RemoteAddr = "192.0.2.7:51234"
		r.Header.Set("X-Forwarded-For", "203.0.113.5")
		r.Header.Set("X-Real-IP", "203.0.113.6")
		assert.Equal(t, "192.0.2.7", RemoteIP(r))
	})

	t.Run("address without port", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.RemoteAddr = "192.0.2.8"
		assert.Equal(t, "192.0.2.8", RemoteIP(r))
	})
}
