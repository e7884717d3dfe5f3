package events

import "time"

// NameReadingReceived is the bus topic for accepted sensor readings.
const NameReadingReceived = "telemetry.reading_received"

// ReadingReceived is published after a sensor reading passes validation and
// is persisted. Downstream consumers evaluate thresholds and refresh live
// status from it.
type ReadingReceived struct {
	ReadingID        string    `json:"reading_id"`
	SensorID         string    `json:"sensor_id"`
	FarmID           string    `json:"farm_id"`
	ZoneID           string    `json:"zone_id"`
	FarmerID         string    `json:"farmer_id"`
	DistanceMeasured float64   `json:"distance_measured"`
	Threshold        float64   `json:"threshold"`
	BatteryLevel     float64   `json:"battery_level"`
	Timestamp        time.Time `json:"timestamp"`
}

// EventName implements eventbus.Event.
func (ReadingReceived) EventName() string { return NameReadingReceived }
