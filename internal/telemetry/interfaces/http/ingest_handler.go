package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/httpapi"
	telemetryapp "pasture-cloud/internal/telemetry/application"
	telemetry "pasture-cloud/internal/telemetry/domain"
)

// IngestHandler accepts device-originated readings under /ingest/sensors.
// Devices authenticate with the shared api key in the request body, not a
// JWT.
type IngestHandler struct {
	service *telemetryapp.Service
	keys    *auth.DeviceKeyVerifier
}

// NewIngestHandler constructs the handler.
func NewIngestHandler(service *telemetryapp.Service, keys *auth.DeviceKeyVerifier) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if keys == nil {
		return nil, errors.New("ingest handler: nil key verifier")
	}
	return &IngestHandler{service: service, keys: keys}, nil
}

type readingPayload struct {
	SensorID         string   `json:"sensor_id"`
	SensorType       string   `json:"sensor_type"`
	DistanceMeasured *float64 `json:"distance_measured"`
	BatteryLevel     float64  `json:"battery_level"`
	SignalStrength   float64  `json:"signal_strength"`
	Timestamp        string   `json:"timestamp"`
	APIKey           string   `json:"api_key"`
}

type batchPayload struct {
	Readings []readingPayload `json:"readings"`
	APIKey   string           `json:"api_key"`
}

// ServeHTTP routes /ingest/sensors/reading and /ingest/sensors/batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/ingest/sensors/reading":
		h.handleReading(w, r)
	case "/ingest/sensors/batch":
		h.handleBatch(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *IngestHandler) handleReading(w http.ResponseWriter, r *http.Request) {
	var payload readingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: invalid json body", httpapi.ErrValidation))
		return
	}
	if err := h.keys.Verify(payload.APIKey); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: bad api key", httpapi.ErrAuth))
		return
	}
	reading, err := toReading(payload)
	if err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	ack, err := h.service.SubmitReading(r.Context(), reading)
	if err != nil {
		httpapi.Fail(w, classifyIngest(err))
		return
	}
	httpapi.Created(w, ack)
}

func (h *IngestHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var payload batchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: invalid json body", httpapi.ErrValidation))
		return
	}
	if err := h.keys.Verify(payload.APIKey); err != nil {
		httpapi.Fail(w, fmt.Errorf("%w: bad api key", httpapi.ErrAuth))
		return
	}
	if len(payload.Readings) == 0 {
		httpapi.Fail(w, fmt.Errorf("%w: empty batch", httpapi.ErrValidation))
		return
	}

	readings := make([]telemetry.Reading, 0, len(payload.Readings))
	for i, item := range payload.Readings {
		reading, err := toReading(item)
		if err != nil {
			httpapi.Fail(w, fmt.Errorf("%w: reading %d: %v", httpapi.ErrValidation, i, err))
			return
		}
		readings = append(readings, reading)
	}
	items := h.service.SubmitBatch(r.Context(), readings)
	accepted := 0
	for _, item := range items {
		if item.Error == "" {
			accepted++
		}
	}
	// Per-item outcomes stay server-side; devices only need the tallies.
	httpapi.OK(w, batchResult{
		Accepted: accepted,
		Rejected: len(items) - accepted,
	})
}

type batchResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func toReading(payload readingPayload) (telemetry.Reading, error) {
	if payload.SensorID == "" {
		return telemetry.Reading{}, errors.New("sensor_id is required")
	}
	if payload.DistanceMeasured == nil {
		return telemetry.Reading{}, errors.New("distance_measured is required")
	}
	reading := telemetry.Reading{
		SensorID:         payload.SensorID,
		SensorType:       payload.SensorType,
		DistanceMeasured: *payload.DistanceMeasured,
		BatteryLevel:     payload.BatteryLevel,
		SignalStrength:   payload.SignalStrength,
	}
	if payload.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			return telemetry.Reading{}, errors.New("timestamp must be RFC3339")
		}
		reading.Timestamp = ts
	}
	return reading, nil
}

func classifyIngest(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, telemetry.ErrInvalidReading):
		return fmt.Errorf("%w: %v", httpapi.ErrValidation, err)
	case errors.Is(err, telemetryapp.ErrUnknownSensor):
		return fmt.Errorf("%w: %v", httpapi.ErrNotFound, err)
	case errors.Is(err, telemetryapp.ErrInactiveSensor):
		return fmt.Errorf("%w: %v", httpapi.ErrValidation, err)
	default:
		return err
	}
}
