package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidReading indicates a reading that failed validation.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// Reading is one distance measurement written to storage. The readings table
// is range partitioned by calendar date of Timestamp.
type Reading struct {
	ID               string    `json:"id"`
	SensorID         string    `json:"sensor_id"`
	FarmID           string    `json:"farm_id"`
	ZoneID           string    `json:"zone_id"`
	SensorType       string    `json:"sensor_type,omitempty"`
	DistanceMeasured float64   `json:"distance_measured"`
	BatteryLevel     float64   `json:"battery_level"`
	SignalStrength   float64   `json:"signal_strength"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks reading invariants. Distance must be non-negative; a
// missing timestamp is filled by the caller before validation.
func (r Reading) Validate() error {
	if r.SensorID == "" {
		return errors.New("reading: empty sensor id")
	}
	if r.DistanceMeasured < 0 {
		return errors.New("reading: negative distance")
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		return errors.New("reading: battery level out of range")
	}
	if r.Timestamp.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	return nil
}

// ReadingRepository persists readings.
type ReadingRepository interface {
	Insert(ctx context.Context, readings []Reading) error
	// ListBySensor returns readings for a sensor within [from, to), newest
	// first.
	ListBySensor(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]Reading, error)
}

// StaleAfter is the age beyond which a live status is reported stale.
const StaleAfter = 300000 * time.Millisecond

// LiveStatus is the most recent reading per sensor held in memory. It is
// last-write-wins and rebuilt from traffic after a restart.
type LiveStatus struct {
	SensorID         string    `json:"sensor_id"`
	FarmID           string    `json:"farm_id"`
	ZoneID           string    `json:"zone_id"`
	DistanceMeasured float64   `json:"distance_measured"`
	BatteryLevel     float64   `json:"battery_level"`
	Status           string    `json:"status"`
	Severity         string    `json:"severity,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ReceivedAt       time.Time `json:"received_at"`
}

// Stale reports whether the status is older than StaleAfter at now. Age is
// measured from the reading's own timestamp, so a device replaying backdated
// readings still shows stale. The comparison is strict; a status aged exactly
// StaleAfter is fresh.
func (s LiveStatus) Stale(now time.Time) bool {
	return now.Sub(s.Timestamp) > StaleAfter
}

// LiveStatusStore tracks the latest status per sensor.
type LiveStatusStore interface {
	Set(status LiveStatus)
	Get(sensorID string) (LiveStatus, bool)
	All() []LiveStatus
}
