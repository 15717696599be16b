package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/link-broker-go/internal/errors"
	"github.com/openclaw/link-broker-go/internal/httputil"
	"github.com/openclaw/link-broker-go/internal/model"
	"github.com/openclaw/link-broker-go/internal/util"
)

const maxEventsLimit = 200

// EventReader reads the persisted audit trail.
type EventReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.LinkEvent, error)
	LatestBySession(ctx context.Context, sessionID string) (*model.LinkEvent, error)
}

// EventsHandler serves the link audit trail of a session.
type EventsHandler struct {
	events EventReader
}

func NewEventsHandler(events EventReader) *EventsHandler {
	return &EventsHandler{events: events}
}

func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{sessionId}/events", h.List)
	r.Get("/{sessionId}/events/latest", h.Latest)
	return r
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if !util.IsValidSessionID(sessionID) {
		httputil.WriteError(w, apperrors.MalformedRequest("invalid session id"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := h.events.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to list link events")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if events == nil {
		events = []model.LinkEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"events":    events,
	})
}

func (h *EventsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if !util.IsValidSessionID(sessionID) {
		httputil.WriteError(w, apperrors.MalformedRequest("invalid session id"))
		return
	}

	event, err := h.events.LatestBySession(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to load latest link event")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}
	if event == nil {
		httputil.WriteError(w, apperrors.SessionNotFound(sessionID))
		return
	}

	writeJSON(w, http.StatusOK, event)
}
