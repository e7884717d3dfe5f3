package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	alertapp "pasture-cloud/internal/alerts/application"
	alerts "pasture-cloud/internal/alerts/domain"
	"pasture-cloud/internal/audit"
	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/httpapi"
)

const timeLayout = time.RFC3339

// Handler provides alert HTTP endpoints under /api/v1/alerts.
type Handler struct {
	service *alertapp.Service
	stream  *StreamHandler
	owners  auth.FarmOwnerChecker
	auditor audit.Logger
}

// NewHandler constructs a handler. The stream handler and owner checker are
// optional.
func NewHandler(service *alertapp.Service, stream *StreamHandler, owners auth.FarmOwnerChecker, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	h := &Handler{service: service, stream: stream, owners: owners}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithAuditor records resolve and delete actions to the audit log.
func WithAuditor(auditor audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditor = auditor
	}
}

// ServeHTTP handles /api/v1/alerts and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alerts":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case r.URL.Path == "/api/v1/alerts/stream":
		if h.stream == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.stream.ServeHTTP(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alerts/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := alerts.ListFilter{
		FarmID:   q.Get("farm_id"),
		SensorID: q.Get("sensor_id"),
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			httpapi.Fail(w, fmt.Errorf("%w: resolved must be a bool", httpapi.ErrValidation))
			return
		}
		filter.Resolved = &resolved
	}
	var err error
	if filter.From, err = parseTimeQuery(r, "from"); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	if filter.To, err = parseTimeQuery(r, "to"); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		httpapi.Fail(w, fmt.Errorf("%w: to must be after from", httpapi.ErrValidation))
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			httpapi.Fail(w, fmt.Errorf("%w: limit must be a positive integer", httpapi.ErrValidation))
			return
		}
		filter.Limit = limit
	}

	if filter.FarmID != "" && !h.ensureOwner(w, r, filter.FarmID) {
		return
	}

	list, err := h.service.ListAlerts(r.Context(), filter)
	if err != nil {
		httpapi.Fail(w, classify(err))
		return
	}
	httpapi.OK(w, list)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1:
		id := parts[0]
		switch r.Method {
		case http.MethodGet:
			alert, err := h.service.GetAlert(r.Context(), id)
			if err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			httpapi.OK(w, alert)
		case http.MethodDelete:
			if err := h.service.DeleteAlert(r.Context(), id); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "alert.delete", id, "")
			httpapi.OKMessage(w, "alert deleted", nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "resolve":
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		alert, err := h.service.ResolveAlert(r.Context(), parts[0], auth.SubjectFromContext(r.Context()))
		if err != nil {
			httpapi.Fail(w, classify(err))
			return
		}
		h.record(r, "alert.resolve", alert.ID, alert.FarmID)
		httpapi.OK(w, alert)
	case len(parts) == 2 && parts[1] == "notifications":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		list, err := h.service.ListNotifications(r.Context(), parts[0])
		if err != nil {
			httpapi.Fail(w, classify(err))
			return
		}
		httpapi.OK(w, list)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) record(r *http.Request, action, alertID, farmID string) {
	if h.auditor == nil {
		return
	}
	_ = h.auditor.Log(r.Context(), audit.Entry{
		ID:           audit.NewID(),
		FarmerID:     auth.FarmerIDFromContext(r.Context()),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "alert",
		ResourceID:   alertID,
		FarmID:       farmID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func (h *Handler) ensureOwner(w http.ResponseWriter, r *http.Request, farmID string) bool {
	if h.owners == nil {
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

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339", key)
	}
	return t, nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, alerts.ErrNotFound):
		return fmt.Errorf("%w: %v", httpapi.ErrNotFound, err)
	default:
		return err
	}
}
