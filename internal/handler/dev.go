package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/httputil"
	"github.com/openclaw/link-broker-go/internal/linking"
)

const devMaxBodyBytes = 4 << 10

// DevController stands in for the user acting on their device.
type DevController interface {
	Confirm(ctx context.Context, identity string) error
	Unlink(ctx context.Context, identity, reason string) error
}

// DevHandler exposes the development backend's manual controls.
type DevHandler struct {
	backend DevController
}

func NewDevHandler(backend DevController) *DevHandler {
	return &DevHandler{backend: backend}
}

func (h *DevHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{identity}/confirm", h.Confirm)
	r.Post("/{identity}/unlink", h.Unlink)
	return r
}

func (h *DevHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	if err := h.backend.Confirm(r.Context(), identity); err != nil {
		h.writeBackendError(w, identity, err)
		return
	}

	log.Info().Str("identity", identity).Msg("dev backend: link confirmed")
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity, "linked": true})
}

func (h *DevHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, devMaxBodyBytes)).Decode(&req); err != nil {
			httputil.WriteError(w, apperrors.MalformedRequest("invalid JSON body"))
			return
		}
	}

	if err := h.backend.Unlink(r.Context(), identity, req.Reason); err != nil {
		h.writeBackendError(w, identity, err)
		return
	}

	log.Info().Str("identity", identity).Str("reason", req.Reason).Msg("dev backend: unlinked")
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity, "linked": false})
}

func (h *DevHandler) writeBackendError(w http.ResponseWriter, identity string, err error) {
	if errors.Is(err, linking.ErrUnknownIdentity) {
		httputil.WriteError(w, apperrors.NotFound("Linking attempt"))
		return
	}
	log.Error().Err(err).Str("identity", identity).Msg("dev backend action failed")
	httputil.WriteError(w, apperrors.Backend(err))
}
