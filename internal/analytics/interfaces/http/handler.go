// Package http exposes the reporting endpoints under /api/v1/analytics.
package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	analyticsapp "pasture-cloud/internal/analytics/application"
	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/httpapi"
)

// Handler serves aggregated reports. Every report requires a farm_id and
// is scoped to farms the caller owns unless the caller is an admin.
type Handler struct {
	aggregator *analyticsapp.Aggregator
	exports    *ExportHandler
	owners     auth.FarmOwnerChecker
}

// NewHandler constructs a handler. The export handler and owner checker are
// optional.
func NewHandler(aggregator *analyticsapp.Aggregator, exports *ExportHandler, owners auth.FarmOwnerChecker) (*Handler, error) {
	if aggregator == nil {
		return nil, errors.New("analytics handler: nil aggregator")
	}
	return &Handler{aggregator: aggregator, exports: exports, owners: owners}, nil
}

// ServeHTTP routes /api/v1/analytics/{report} and /api/v1/exports/{file}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/v1/exports/") {
		if h.exports == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !h.ensureOwner(w, r, r.URL.Query().Get("farm_id")) {
			return
		}
		h.exports.ServeHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	report := strings.TrimPrefix(r.URL.Path, "/api/v1/analytics/")
	farmID := r.URL.Query().Get("farm_id")
	if farmID == "" {
		httpapi.Fail(w, fmt.Errorf("%w: farm_id is required", httpapi.ErrValidation))
		return
	}
	if !h.ensureOwner(w, r, farmID) {
		return
	}

	switch report {
	case "dashboard":
		h.handleDashboard(w, r, farmID)
	case "trends":
		h.handleTrends(w, r, farmID)
	case "hourly":
		h.handleHourly(w, r, farmID)
	case "heatmap":
		h.handleHeatmap(w, r, farmID)
	case "devices":
		h.handleDevices(w, r, farmID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request, farmID string) {
	from, to, err := parseWindow(r)
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	stats, err := h.aggregator.Dashboard(r.Context(), farmID, from, to)
	if err != nil {
		httpapi.Fail(w, err)
		return
	}
	httpapi.OK(w, stats)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request, farmID string) {
	days, err := parseDays(r, 7)
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	points, err := h.aggregator.Trends(r.Context(), farmID, days)
	if err != nil {
		httpapi.Fail(w, err)
		return
	}
	httpapi.OK(w, points)
}

func (h *Handler) handleHourly(w http.ResponseWriter, r *http.Request, farmID string) {
	points, err := h.aggregator.Hourly(r.Context(), farmID, r.URL.Query().Get("day"))
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	httpapi.OK(w, points)
}

func (h *Handler) handleHeatmap(w http.ResponseWriter, r *http.Request, farmID string) {
	days, err := parseDays(r, 7)
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	cells, err := h.aggregator.Heatmap(r.Context(), farmID, days)
	if err != nil {
		httpapi.Fail(w, err)
		return
	}
	httpapi.OK(w, cells)
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request, farmID string) {
	from, to, err := parseWindow(r)
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	stats, err := h.aggregator.Devices(r.Context(), farmID, from, to)
	if err != nil {
		httpapi.Fail(w, err)
		return
	}
	httpapi.OK(w, stats)
}

func (h *Handler) ensureOwner(w http.ResponseWriter, r *http.Request, farmID string) bool {
	if h.owners == nil || farmID == "" {
		return true
	}
	if auth.RoleFromContext(r.Context()) == auth.RoleAdmin {
		return true
	}
	err := h.owners.EnsureFarmOwner(r.Context(), auth.FarmerIDFromContext(r.Context()), farmID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrNotFound):
		httpapi.Fail(w, fmt.Errorf("%w: farm %s", httpapi.ErrNotFound, farmID))
	case errors.Is(err, auth.ErrOwnerMismatch):
		httpapi.Fail(w, fmt.Errorf("%w: farm %s", httpapi.ErrPermission, farmID))
	default:
		httpapi.Fail(w, err)
	}
	return false
}

func parseDays(r *http.Request, fallback int) (int, error) {
	value := r.URL.Query().Get("days")
	if value == "" {
		return fallback, nil
	}
	days, err := strconv.Atoi(value)
	if err != nil || days < 1 {
		return 0, errors.New("days must be a positive integer")
	}
	return days, nil
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if value := r.URL.Query().Get("from"); value != "" {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if value := r.URL.Query().Get("to"); value != "" {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}
