package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"pasture-cloud/internal/audit"
	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/httpapi"
	mdapp "pasture-cloud/internal/masterdata/application"
	masterdata "pasture-cloud/internal/masterdata/domain"
)

// Handler provides masterdata CRUD endpoints under /api/v1.
type Handler struct {
	service *mdapp.Service
	owners  auth.FarmOwnerChecker
	auditor audit.Logger
	logger  *log.Logger
}

// NewHandler constructs a handler. The owner checker and auditor are
// optional.
func NewHandler(service *mdapp.Service, owners auth.FarmOwnerChecker, auditor audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("masterdata handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, owners: owners, auditor: auditor, logger: logger}, nil
}

// ServeHTTP routes masterdata collections and item subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch parts[0] {
	case "farmers":
		h.routeFarmers(w, r, parts[1:])
	case "farms":
		h.routeFarms(w, r, parts[1:])
	case "zones":
		h.routeZones(w, r, parts[1:])
	case "livestock":
		h.routeLivestock(w, r, parts[1:])
	case "sensors":
		h.routeSensors(w, r, parts[1:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeFarmers(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			list, err := h.service.ListFarmers(r.Context())
			h.respondList(w, list, err)
		case http.MethodPost:
			var farmer masterdata.Farmer
			if !decode(w, r, &farmer) {
				return
			}
			if err := h.service.CreateFarmer(r.Context(), &farmer); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "farmer.create", "farmer", farmer.ID, "")
			httpapi.Created(w, farmer)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			farmer, err := h.service.GetFarmer(r.Context(), id)
			h.respondOne(w, farmer, err)
		case http.MethodDelete:
			if err := h.service.DeleteFarmer(r.Context(), id); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "farmer.delete", "farmer", id, "")
			httpapi.OKMessage(w, "farmer deleted", nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeFarms(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			farmerID := r.URL.Query().Get("farmer_id")
			if farmerID == "" {
				farmerID = auth.FarmerIDFromContext(r.Context())
			}
			list, err := h.service.ListFarms(r.Context(), farmerID)
			h.respondList(w, list, err)
		case http.MethodPost:
			var farm masterdata.Farm
			if !decode(w, r, &farm) {
				return
			}
			if farm.FarmerID == "" {
				farm.FarmerID = auth.FarmerIDFromContext(r.Context())
			}
			if err := h.service.CreateFarm(r.Context(), &farm); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "farm.create", "farm", farm.ID, farm.ID)
			httpapi.Created(w, farm)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 1:
		id := rest[0]
		if !h.ensureOwner(w, r, id) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			farm, err := h.service.GetFarm(r.Context(), id)
			h.respondOne(w, farm, err)
		case http.MethodPut:
			var body struct {
				Name     *string `json:"name"`
				Location *string `json:"location"`
				Timezone *string `json:"timezone"`
			}
			if !decode(w, r, &body) {
				return
			}
			farm, err := h.service.UpdateFarm(r.Context(), id, body.Name, body.Location, body.Timezone)
			if err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "farm.update", "farm", id, id)
			httpapi.OK(w, farm)
		case http.MethodDelete:
			if err := h.service.DeleteFarm(r.Context(), id); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "farm.delete", "farm", id, id)
			httpapi.OKMessage(w, "farm deleted", nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeZones(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			farmID := r.URL.Query().Get("farm_id")
			if !h.ensureOwner(w, r, farmID) {
				return
			}
			list, err := h.service.ListZones(r.Context(), farmID)
			h.respondList(w, list, err)
		case http.MethodPost:
			var zone masterdata.Zone
			if !decode(w, r, &zone) {
				return
			}
			if !h.ensureOwner(w, r, zone.FarmID) {
				return
			}
			if err := h.service.CreateZone(r.Context(), &zone); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "zone.create", "zone", zone.ID, zone.FarmID)
			httpapi.Created(w, zone)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			zone, err := h.service.GetZone(r.Context(), id)
			h.respondOne(w, zone, err)
		case http.MethodPut:
			var body struct {
				Name              *string  `json:"name"`
				BoundaryThreshold *float64 `json:"boundary_threshold"`
			}
			if !decode(w, r, &body) {
				return
			}
			zone, err := h.service.UpdateZone(r.Context(), id, body.Name, body.BoundaryThreshold)
			if err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "zone.update", "zone", id, zone.FarmID)
			httpapi.OK(w, zone)
		case http.MethodDelete:
			if err := h.service.DeleteZone(r.Context(), id); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "zone.delete", "zone", id, "")
			httpapi.OKMessage(w, "zone deleted", nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeLivestock(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			farmID := r.URL.Query().Get("farm_id")
			if !h.ensureOwner(w, r, farmID) {
				return
			}
			list, err := h.service.ListLivestock(r.Context(), farmID)
			h.respondList(w, list, err)
		case http.MethodPost:
			var animal masterdata.Livestock
			if !decode(w, r, &animal) {
				return
			}
			if !h.ensureOwner(w, r, animal.FarmID) {
				return
			}
			if err := h.service.CreateLivestock(r.Context(), &animal); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "livestock.create", "livestock", animal.ID, animal.FarmID)
			httpapi.Created(w, animal)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			animal, err := h.service.GetLivestock(r.Context(), id)
			h.respondOne(w, animal, err)
		case http.MethodPut:
			var body struct {
				HealthStatus   *string         `json:"health_status"`
				BoundaryStatus *string         `json:"boundary_status"`
				Vaccination    json.RawMessage `json:"vaccination_history"`
				Medical        json.RawMessage `json:"medical_history"`
			}
			if !decode(w, r, &body) {
				return
			}
			animal, err := h.service.UpdateLivestock(r.Context(), id, body.HealthStatus, body.BoundaryStatus, body.Vaccination, body.Medical)
			if err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "livestock.update", "livestock", id, animal.FarmID)
			httpapi.OK(w, animal)
		case http.MethodDelete:
			if err := h.service.DeleteLivestock(r.Context(), id); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "livestock.delete", "livestock", id, "")
			httpapi.OKMessage(w, "livestock deleted", nil)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 2 && rest[1] == "move":
		if r.Method != http.MethodPut && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			ZoneID string `json:"zone_id"`
		}
		if !decode(w, r, &body) {
			return
		}
		animal, err := h.service.MoveLivestock(r.Context(), rest[0], body.ZoneID)
		if err != nil {
			httpapi.Fail(w, classify(err))
			return
		}
		h.record(r, "livestock.move", "livestock", rest[0], animal.FarmID)
		httpapi.OK(w, animal)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeSensors(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			farmID := r.URL.Query().Get("farm_id")
			if !h.ensureOwner(w, r, farmID) {
				return
			}
			list, err := h.service.ListSensors(r.Context(), farmID)
			h.respondList(w, list, err)
		case http.MethodPost:
			var sensor masterdata.Sensor
			if !decode(w, r, &sensor) {
				return
			}
			if !h.ensureOwner(w, r, sensor.FarmID) {
				return
			}
			if err := h.service.RegisterSensor(r.Context(), &sensor); err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "sensor.register", "sensor", sensor.ID, sensor.FarmID)
			httpapi.Created(w, sensor)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			sensor, err := h.service.GetSensor(r.Context(), id)
			h.respondOne(w, sensor, err)
		case http.MethodPut:
			var body struct {
				Threshold *float64 `json:"threshold"`
			}
			if !decode(w, r, &body) {
				return
			}
			sensor, err := h.service.UpdateSensor(r.Context(), id, body.Threshold)
			if err != nil {
				httpapi.Fail(w, classify(err))
				return
			}
			h.record(r, "sensor.update", "sensor", id, sensor.FarmID)
			httpapi.OK(w, sensor)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(rest) == 2 && rest[1] == "deactivate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := h.service.DeactivateSensor(r.Context(), rest[0]); err != nil {
			httpapi.Fail(w, classify(err))
			return
		}
		h.record(r, "sensor.deactivate", "sensor", rest[0], "")
		httpapi.OKMessage(w, "sensor deactivated", nil)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ensureOwner checks farm ownership for non-admin callers. A blank farmID is
// passed through; the service rejects it where required.
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

func (h *Handler) record(r *http.Request, action, resourceType, resourceID, farmID string) {
	if h.auditor == nil {
		return
	}
	entry := audit.Entry{
		ID:           audit.NewID(),
		FarmerID:     auth.FarmerIDFromContext(r.Context()),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		FarmID:       farmID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if err := h.auditor.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit log failed action=%s resource=%s: %v", action, resourceID, err)
	}
}

func (h *Handler) respondList(w http.ResponseWriter, list any, err error) {
	if err != nil {
		httpapi.Fail(w, classify(err))
		return
	}
	httpapi.OK(w, list)
}

func (h *Handler) respondOne(w http.ResponseWriter, item any, err error) {
	if err != nil {
		httpapi.Fail(w, classify(err))
		return
	}
	httpapi.OK(w, item)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: invalid json body: %v", httpapi.ErrValidation, err))
		return false
	}
	return true
}

// classify maps service and domain errors onto boundary failure kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, httpapi.ErrValidation),
		errors.Is(err, httpapi.ErrNotFound),
		errors.Is(err, httpapi.ErrPermission),
		errors.Is(err, httpapi.ErrConflict):
		return err
	case errors.Is(err, mdapp.ErrValidation):
		return fmt.Errorf("%w: %v", httpapi.ErrValidation, err)
	case errors.Is(err, masterdata.ErrNotFound):
		return fmt.Errorf("%w: %v", httpapi.ErrNotFound, err)
	case errors.Is(err, masterdata.ErrDuplicateTag):
		return fmt.Errorf("%w: %v", httpapi.ErrConflict, err)
	default:
		return err
	}
}
