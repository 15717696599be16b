package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/link-broker-go/internal/config"
	"github.com/openclaw/link-broker-go/internal/service"
)

// StatsProvider reports the broker's current record counts.
type StatsProvider interface {
	Stats(ctx context.Context) (service.Stats, error)
}

// Pinger checks one optional dependency.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	stats   StatsProvider
	pingers map[string]Pinger
	now     func() time.Time
}

func NewHealthHandler(stats StatsProvider, pingers map[string]Pinger) *HealthHandler {
	return &HealthHandler{stats: stats, pingers: pingers, now: time.Now}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.PingTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": h.now().UnixMilli(),
	}

	stats, err := h.stats.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("health check: broker unavailable")
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	} else {
		body["sessions"] = stats.Sessions
		body["pairings"] = stats.Pairings
		body["connections"] = stats.Connections
	}

	if len(h.pingers) > 0 {
		deps := make(map[string]string, len(h.pingers))
		for name, ping := range h.pingers {
			if err := ping(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
				deps[name] = "down"
				if status == http.StatusOK {
					status = http.StatusServiceUnavailable
					body["status"] = "degraded"
				}
				continue
			}
			deps[name] = "ok"
		}
		body["dependencies"] = deps
	}

	writeJSON(w, status, body)
}
