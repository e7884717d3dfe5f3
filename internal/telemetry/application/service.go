package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	alerts "pasture-cloud/internal/alerts/domain"
	"pasture-cloud/internal/eventbus"
	masterdata "pasture-cloud/internal/masterdata/domain"
	"pasture-cloud/internal/observability/metrics"
	"pasture-cloud/internal/telemetry/application/events"
	telemetry "pasture-cloud/internal/telemetry/domain"
)

// Reading statuses reported back to the device.
const (
	StatusNormal = "normal"
	StatusAlert  = "alert"
)

// Ingest failure reasons.
var (
	ErrUnknownSensor  = errors.New("telemetry: unknown sensor")
	ErrInactiveSensor = errors.New("telemetry: sensor inactive")
)

// Ack is the per-reading response returned to the submitting device.
type Ack struct {
	SensorID         string    `json:"sensor_id"`
	Status           string    `json:"status"`
	Severity         string    `json:"severity,omitempty"`
	DistanceMeasured float64   `json:"distance_measured"`
	Threshold        float64   `json:"threshold"`
	Timestamp        time.Time `json:"timestamp"`
}

// BatchItem is the outcome for one entry of a batch submission.
type BatchItem struct {
	Index int    `json:"index"`
	Ack   *Ack   `json:"ack,omitempty"`
	Error string `json:"error,omitempty"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// FarmReader loads the owning farm for event enrichment.
type FarmReader interface {
	Get(ctx context.Context, id string) (*masterdata.Farm, error)
}

// Service accepts sensor readings: it validates them against the sensor
// registry, persists them, refreshes the live status and publishes the
// accepted reading on the bus. Threshold evaluation happens here only to
// answer the device; alert recording is downstream.
type Service struct {
	readings telemetry.ReadingRepository
	sensors  masterdata.SensorRepository
	farms    FarmReader
	live     telemetry.LiveStatusStore
	bus      eventbus.Bus
	clock    Clock
	logger   *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a telemetry service.
func NewService(
	readings telemetry.ReadingRepository,
	sensors masterdata.SensorRepository,
	farms FarmReader,
	live telemetry.LiveStatusStore,
	bus eventbus.Bus,
	logger *log.Logger,
	opts ...ServiceOption,
) (*Service, error) {
	if readings == nil {
		return nil, errors.New("telemetry: nil reading repository")
	}
	if sensors == nil {
		return nil, errors.New("telemetry: nil sensor repository")
	}
	if live == nil {
		return nil, errors.New("telemetry: nil live status store")
	}
	if bus == nil {
		return nil, errors.New("telemetry: nil bus")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		readings: readings,
		sensors:  sensors,
		farms:    farms,
		live:     live,
		bus:      bus,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SubmitReading processes one reading end to end and returns the device ack.
func (s *Service) SubmitReading(ctx context.Context, reading telemetry.Reading) (*Ack, error) {
	start := s.clock.Now()
	ack, err := s.submit(ctx, reading)
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	metrics.ObserveReading(result, s.clock.Now().Sub(start))
	return ack, err
}

// SubmitBatch processes readings independently; one bad entry never blocks
// the rest.
func (s *Service) SubmitBatch(ctx context.Context, readings []telemetry.Reading) []BatchItem {
	out := make([]BatchItem, 0, len(readings))
	for i, reading := range readings {
		ack, err := s.SubmitReading(ctx, reading)
		item := BatchItem{Index: i, Ack: ack}
		if err != nil {
			item.Error = err.Error()
		}
		out = append(out, item)
	}
	return out
}

func (s *Service) submit(ctx context.Context, reading telemetry.Reading) (*Ack, error) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.clock.Now().UTC()
	}
	if err := reading.Validate(); err != nil {
		metrics.IncReadingError("validation")
		return nil, fmt.Errorf("%w: %v", telemetry.ErrInvalidReading, err)
	}

	sensor, err := s.sensors.Get(ctx, reading.SensorID)
	if err != nil {
		metrics.IncReadingError("sensor_lookup")
		return nil, err
	}
	if sensor == nil {
		metrics.IncReadingError("unknown_sensor")
		return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, reading.SensorID)
	}
	if !sensor.Active {
		metrics.IncReadingError("inactive_sensor")
		return nil, fmt.Errorf("%w: %s", ErrInactiveSensor, reading.SensorID)
	}
	if reading.SensorType != "" && reading.SensorType != string(sensor.Type) {
		metrics.IncReadingError("type_mismatch")
		return nil, fmt.Errorf("%w: sensor_type %s does not match registered type %s",
			telemetry.ErrInvalidReading, reading.SensorType, sensor.Type)
	}

	reading.FarmID = sensor.FarmID
	reading.ZoneID = sensor.ZoneID
	if reading.ID == "" {
		reading.ID = "reading-" + uuid.NewString()
	}

	verdict := alerts.Evaluate(reading.DistanceMeasured, sensor.Threshold)
	status := StatusNormal
	if verdict.Breach {
		status = StatusAlert
	}

	if err := s.readings.Insert(ctx, []telemetry.Reading{reading}); err != nil {
		metrics.IncReadingError("persist")
		return nil, err
	}

	if err := s.sensors.RecordReading(ctx, sensor.ID, reading.DistanceMeasured, reading.Timestamp); err != nil {
		s.logger.Printf("sensor stats update failed sensor=%s: %v", sensor.ID, err)
	}
	if reading.BatteryLevel > 0 {
		if err := s.sensors.UpdateBattery(ctx, sensor.ID, reading.BatteryLevel, reading.Timestamp); err != nil {
			s.logger.Printf("sensor battery update failed sensor=%s: %v", sensor.ID, err)
		}
	}

	now := s.clock.Now().UTC()
	s.live.Set(telemetry.LiveStatus{
		SensorID:         sensor.ID,
		FarmID:           sensor.FarmID,
		ZoneID:           sensor.ZoneID,
		DistanceMeasured: reading.DistanceMeasured,
		BatteryLevel:     reading.BatteryLevel,
		Status:           status,
		Severity:         verdict.Severity,
		Timestamp:        reading.Timestamp,
		ReceivedAt:       now,
	})

	farmerID := ""
	if s.farms != nil {
		if farm, err := s.farms.Get(ctx, sensor.FarmID); err == nil && farm != nil {
			farmerID = farm.FarmerID
		}
	}
	evt := events.ReadingReceived{
		ReadingID:        reading.ID,
		SensorID:         sensor.ID,
		FarmID:           sensor.FarmID,
		ZoneID:           sensor.ZoneID,
		FarmerID:         farmerID,
		DistanceMeasured: reading.DistanceMeasured,
		Threshold:        sensor.Threshold,
		BatteryLevel:     reading.BatteryLevel,
		Timestamp:        reading.Timestamp,
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		// Downstream consumers swallow their own errors; anything here is a
		// bus defect worth logging, not a reason to reject the reading.
		s.logger.Printf("reading event publish failed sensor=%s: %v", sensor.ID, err)
	}

	return &Ack{
		SensorID:         sensor.ID,
		Status:           status,
		Severity:         verdict.Severity,
		DistanceMeasured: reading.DistanceMeasured,
		Threshold:        sensor.Threshold,
		Timestamp:        reading.Timestamp,
	}, nil
}

// LiveStatus returns the latest status for one sensor together with its
// staleness at call time.
func (s *Service) LiveStatus(sensorID string) (telemetry.LiveStatus, bool, bool) {
	status, ok := s.live.Get(sensorID)
	if !ok {
		return telemetry.LiveStatus{}, false, false
	}
	return status, status.Stale(s.clock.Now()), true
}

// LiveStatuses returns every tracked sensor.
func (s *Service) LiveStatuses() []telemetry.LiveStatus {
	return s.live.All()
}

// ListReadings exposes raw readings for one sensor.
func (s *Service) ListReadings(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]telemetry.Reading, error) {
	if to.IsZero() {
		to = s.clock.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	return s.readings.ListBySensor(ctx, sensorID, from, to, limit)
}
