package analytics

import (
	"time"
)

// Granularity is the bucketing step for trend queries.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// DayKey returns the calendar-day bucket key of ts in loc. Bucketing is done
// on the formatted wall-clock date, which keeps assignment deterministic
// across DST transitions: every instant has exactly one formatted date.
func DayKey(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format("2006-01-02")
}

// HourKey returns the hour bucket key of ts in loc. During a DST fall-back
// the repeated wall-clock hour maps both instants to the same key; during a
// spring-forward the skipped hour simply has no members.
func HourKey(ts time.Time, loc *time.Location) string {
	return ts.In(loc).Format("2006-01-02T15")
}

// WeekdayHour returns the heatmap cell coordinates of ts in loc. Weekday 0
// is Sunday to match time.Weekday.
func WeekdayHour(ts time.Time, loc *time.Location) (weekday, hour int) {
	local := ts.In(loc)
	return int(local.Weekday()), local.Hour()
}

// DayStart returns midnight of the calendar day containing ts in loc.
func DayStart(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DashboardStats is the headline view for one farm.
type DashboardStats struct {
	FarmID          string  `json:"farm_id"`
	TotalReadings   int     `json:"total_readings"`
	DistinctSensors int     `json:"distinct_sensors"`
	ActiveAlerts    int     `json:"active_alerts"`
	TotalAlerts     int     `json:"total_alerts"`
	CriticalAlerts  int     `json:"critical_alerts"`
	AvgDistance     float64 `json:"avg_distance"`
	MinDistance     float64 `json:"min_distance"`
	MaxDistance     float64 `json:"max_distance"`
	AvgBattery      float64 `json:"avg_battery"`
}

// TrendPoint is one bucket of a trend series. Buckets with no data are
// present with zero values.
type TrendPoint struct {
	Bucket      string  `json:"bucket"`
	Readings    int     `json:"readings"`
	Alerts      int     `json:"alerts"`
	AvgDistance float64 `json:"avg_distance"`
	MinDistance float64 `json:"min_distance"`
	MaxDistance float64 `json:"max_distance"`
}

// HeatmapCell is one weekday-hour cell of the 7x24 alert grid.
type HeatmapCell struct {
	Weekday int `json:"weekday"`
	Hour    int `json:"hour"`
	Alerts  int `json:"alerts"`
}

// DeviceStats summarizes one sensor over a window.
type DeviceStats struct {
	SensorID    string    `json:"sensor_id"`
	Readings    int       `json:"readings"`
	Alerts      int       `json:"alerts"`
	AvgDistance float64   `json:"avg_distance"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
	AvgBattery  float64   `json:"avg_battery"`
}
