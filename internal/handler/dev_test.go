package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/link-broker-go/internal/linking"
)

type mockDevController struct {
	confirmErr error
	unlinkErr  error
	identity   string
	reason     string
}

func (m *mockDevController) Confirm(ctx context.Context, identity string) error {
	m.identity = identity
	return m.confirmErr
}

func (m *mockDevController) Unlink(ctx context.Context, identity, reason string) error {
	m.identity = identity
	m.reason = reason
	return m.unlinkErr
}

func TestDevHandler(t *testing.T) {
	post := func(h *DevHandler, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(http.MethodPost, path, nil)
		} else {
			req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		}
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		return rec
	}

	t.Run("confirm", func(t *testing.T) {
		backend := &mockDevController{}
		rec := post(NewDevHandler(backend), "/acct-1/confirm", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acct-1", backend.identity)
	})

	t.Run("confirm unknown identity", func(t *testing.T) {
		backend := &mockDevController{confirmErr: linking.ErrUnknownIdentity}
		rec := post(NewDevHandler(backend), "/nobody/confirm", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "NOT_FOUND")
	})

	t.Run("unlink with reason", func(t *testing.T) {
		backend := &mockDevController{}
		rec := post(NewDevHandler(backend), "/acct-1/unlink", `{"reason":"device_removed"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "device_removed", backend.reason)
	})

	t.Run("unlink with bad body", func(t *testing.T) {
		rec := post(NewDevHandler(&mockDevController{}), "/acct-1/unlink", `{`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MALFORMED_REQUEST")
	})

	t.Run("backend failure", func(t *testing.T) {
		backend := &mockDevController{unlinkErr: errors.New("disk full")}
		rec := post(NewDevHandler(backend), "/acct-1/unlink", "")

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
