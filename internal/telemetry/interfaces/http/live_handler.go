package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pasture-cloud/internal/httpapi"
	telemetryapp "pasture-cloud/internal/telemetry/application"
	telemetry "pasture-cloud/internal/telemetry/domain"
)

// LiveHandler serves the in-memory live status under /api/v1/sensors/live.
type LiveHandler struct {
	service *telemetryapp.Service
}

// NewLiveHandler constructs the handler.
func NewLiveHandler(service *telemetryapp.Service) (*LiveHandler, error) {
	if service == nil {
		return nil, errors.New("live handler: nil service")
	}
	return &LiveHandler{service: service}, nil
}

type liveResponse struct {
	telemetry.LiveStatus
	IsStale    bool    `json:"is_stale"`
	AgeSeconds float64 `json:"age_seconds"`
}

func toLiveResponse(status telemetry.LiveStatus, stale bool) liveResponse {
	return liveResponse{
		LiveStatus: status,
		IsStale:    stale,
		AgeSeconds: time.Since(status.Timestamp).Seconds(),
	}
}

// ServeHTTP handles GET /api/v1/sensors/live and /api/v1/sensors/live/{id}.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sensors/live")
	rest = strings.Trim(rest, "/")

	if rest == "" {
		statuses := h.service.LiveStatuses()
		farmID := r.URL.Query().Get("farm_id")
		out := make([]liveResponse, 0, len(statuses))
		for _, status := range statuses {
			if farmID != "" && status.FarmID != farmID {
				continue
			}
			_, stale, _ := h.service.LiveStatus(status.SensorID)
			out = append(out, toLiveResponse(status, stale))
		}
		httpapi.OK(w, out)
		return
	}

	status, stale, ok := h.service.LiveStatus(rest)
	if !ok {
		httpapi.Fail(w, fmt.Errorf("%w: no live status for sensor %s", httpapi.ErrNotFound, rest))
		return
	}
	httpapi.OK(w, toLiveResponse(status, stale))
}
