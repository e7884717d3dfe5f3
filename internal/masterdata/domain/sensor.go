package masterdata

import (
	"context"
	"errors"
	"time"
)

// SensorType enumerates supported distance sensor hardware.
type SensorType string

const (
	SensorLIDAR      SensorType = "LIDAR"
	SensorUltrasonic SensorType = "ULTRASONIC"
)

// DefaultThreshold is the breach threshold assigned on registration when the
// caller does not supply one, in distance units.
const DefaultThreshold = 50

// Valid returns true when the sensor type is supported.
func (t SensorType) Valid() bool {
	switch t {
	case SensorLIDAR, SensorUltrasonic:
		return true
	default:
		return false
	}
}

// Sensor represents a registered distance sensor. Sensors are soft-deactivated
// via Active; rows are never deleted.
type Sensor struct {
	ID            string     `json:"id"`
	FarmID        string     `json:"farm_id"`
	ZoneID        string     `json:"zone_id"`
	Type          SensorType `json:"type"`
	Active        bool       `json:"active"`
	Threshold     float64    `json:"threshold"`
	BatteryLevel  float64    `json:"battery_level"`
	LastValue     float64    `json:"last_value"`
	LastReadingAt time.Time  `json:"last_reading_at,omitempty"`
	ReadingsTotal int64      `json:"readings_total"`
	ActiveAlerts  int        `json:"active_alerts"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks sensor invariants.
func (s Sensor) Validate() error {
	if s.ID == "" {
		return errors.New("sensor: empty id")
	}
	if s.FarmID == "" {
		return errors.New("sensor: empty farm id")
	}
	if s.ZoneID == "" {
		return errors.New("sensor: empty zone id")
	}
	if !s.Type.Valid() {
		return errors.New("sensor: invalid type")
	}
	if s.Threshold <= 0 {
		return errors.New("sensor: threshold must be positive")
	}
	return nil
}

// SensorRepository manages sensor persistence.
type SensorRepository interface {
	Get(ctx context.Context, id string) (*Sensor, error)
	ListByFarm(ctx context.Context, farmID string) ([]Sensor, error)
	Save(ctx context.Context, sensor *Sensor) error
	// Deactivate soft-deletes a sensor.
	Deactivate(ctx context.Context, id string, at time.Time) error
	// RecordReading updates last value/time and bumps readings_total.
	RecordReading(ctx context.Context, id string, value float64, at time.Time) error
	// UpdateBattery stores the latest battery level.
	UpdateBattery(ctx context.Context, id string, level float64, at time.Time) error
}
