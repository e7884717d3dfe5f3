package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	analytics "pasture-cloud/internal/analytics/domain"
	masterdata "pasture-cloud/internal/masterdata/domain"
	"pasture-cloud/internal/observability/metrics"
)

// ReadingSample is the slice of a reading the aggregator needs.
type ReadingSample struct {
	SensorID string
	Distance float64
	Battery  float64
	TS       time.Time
}

// AlertSample is the slice of an alert the aggregator needs.
type AlertSample struct {
	SensorID string
	Type     string
	Severity string
	Resolved bool
	TS       time.Time
}

// ReadingSource loads reading samples for a farm within [from, to).
type ReadingSource interface {
	ReadingsRange(ctx context.Context, farmID string, from, to time.Time) ([]ReadingSample, error)
}

// AlertSource loads alert samples for a farm within [from, to).
type AlertSource interface {
	AlertsRange(ctx context.Context, farmID string, from, to time.Time) ([]AlertSample, error)
}

// FarmReader resolves the farm's reporting timezone.
type FarmReader interface {
	Get(ctx context.Context, id string) (*masterdata.Farm, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Aggregator computes read-side views over readings and alerts. All
// bucketing happens in the farm's local timezone; every requested bucket is
// present in the output even when empty, and averages over zero samples are
// zero rather than NaN.
type Aggregator struct {
	readings ReadingSource
	alerts   AlertSource
	farms    FarmReader
	clock    Clock
}

// AggregatorOption customizes the aggregator.
type AggregatorOption func(*Aggregator)

// WithClock assigns a clock.
func WithClock(clock Clock) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewAggregator constructs an aggregator.
func NewAggregator(readings ReadingSource, alerts AlertSource, farms FarmReader, opts ...AggregatorOption) (*Aggregator, error) {
	if readings == nil {
		return nil, errors.New("analytics: nil reading source")
	}
	if alerts == nil {
		return nil, errors.New("analytics: nil alert source")
	}
	if farms == nil {
		return nil, errors.New("analytics: nil farm reader")
	}
	a := &Aggregator{readings: readings, alerts: alerts, farms: farms, clock: systemClock{}}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// location resolves the farm's timezone, defaulting to UTC on bad or missing
// values so reports never fail on configuration drift.
func (a *Aggregator) location(ctx context.Context, farmID string) *time.Location {
	farm, err := a.farms.Get(ctx, farmID)
	if err != nil || farm == nil || farm.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(farm.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (a *Aggregator) observe(report string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ObserveAnalyticsQuery(report, result, a.clock.Now().Sub(start))
}

// Dashboard returns headline stats over the window [from, to).
func (a *Aggregator) Dashboard(ctx context.Context, farmID string, from, to time.Time) (stats analytics.DashboardStats, err error) {
	start := a.clock.Now()
	defer func() { a.observe("dashboard", start, err) }()

	from, to = a.window(from, to, 24*time.Hour)
	readings, err := a.readings.ReadingsRange(ctx, farmID, from, to)
	if err != nil {
		return analytics.DashboardStats{}, err
	}
	alerts, err := a.alerts.AlertsRange(ctx, farmID, from, to)
	if err != nil {
		return analytics.DashboardStats{}, err
	}

	stats = analytics.DashboardStats{FarmID: farmID}
	sensors := map[string]struct{}{}
	var sumDistance, sumBattery float64
	for i, sample := range readings {
		sensors[sample.SensorID] = struct{}{}
		sumDistance += sample.Distance
		sumBattery += sample.Battery
		if i == 0 || sample.Distance < stats.MinDistance {
			stats.MinDistance = sample.Distance
		}
		if sample.Distance > stats.MaxDistance {
			stats.MaxDistance = sample.Distance
		}
	}
	stats.TotalReadings = len(readings)
	stats.DistinctSensors = len(sensors)
	if len(readings) > 0 {
		stats.AvgDistance = sumDistance / float64(len(readings))
		stats.AvgBattery = sumBattery / float64(len(readings))
	}
	for _, alert := range alerts {
		stats.TotalAlerts++
		if !alert.Resolved {
			stats.ActiveAlerts++
		}
		if alert.Severity == "critical" {
			stats.CriticalAlerts++
		}
	}
	return stats, nil
}

// Trends returns one bucket per calendar day (local time) for the past days
// days, oldest first. Every day is present even with no traffic.
func (a *Aggregator) Trends(ctx context.Context, farmID string, days int) (points []analytics.TrendPoint, err error) {
	start := a.clock.Now()
	defer func() { a.observe("trends", start, err) }()

	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}
	loc := a.location(ctx, farmID)
	today := analytics.DayStart(a.clock.Now(), loc)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	readings, err := a.readings.ReadingsRange(ctx, farmID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	alerts, err := a.alerts.AlertsRange(ctx, farmID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	type acc struct {
		readings int
		alerts   int
		sum      float64
		min      float64
		max      float64
	}
	buckets := map[string]*acc{}
	order := make([]string, 0, days)
	for d := 0; d < days; d++ {
		key := analytics.DayKey(from.AddDate(0, 0, d), loc)
		buckets[key] = &acc{}
		order = append(order, key)
	}
	for _, sample := range readings {
		bucket, ok := buckets[analytics.DayKey(sample.TS, loc)]
		if !ok {
			continue
		}
		if bucket.readings == 0 || sample.Distance < bucket.min {
			bucket.min = sample.Distance
		}
		if sample.Distance > bucket.max {
			bucket.max = sample.Distance
		}
		bucket.readings++
		bucket.sum += sample.Distance
	}
	for _, alert := range alerts {
		if bucket, ok := buckets[analytics.DayKey(alert.TS, loc)]; ok {
			bucket.alerts++
		}
	}

	points = make([]analytics.TrendPoint, 0, days)
	for _, key := range order {
		bucket := buckets[key]
		point := analytics.TrendPoint{
			Bucket:      key,
			Readings:    bucket.readings,
			Alerts:      bucket.alerts,
			MinDistance: bucket.min,
			MaxDistance: bucket.max,
		}
		if bucket.readings > 0 {
			point.AvgDistance = bucket.sum / float64(bucket.readings)
		}
		points = append(points, point)
	}
	return points, nil
}

// Hourly returns 24 buckets for one local calendar day. The day is given as
// "2006-01-02" in the farm's timezone; empty means today.
func (a *Aggregator) Hourly(ctx context.Context, farmID, day string) (points []analytics.TrendPoint, err error) {
	start := a.clock.Now()
	defer func() { a.observe("hourly", start, err) }()

	loc := a.location(ctx, farmID)
	var dayStart time.Time
	if day == "" {
		dayStart = analytics.DayStart(a.clock.Now(), loc)
	} else {
		dayStart, err = time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return nil, fmt.Errorf("day must be YYYY-MM-DD: %w", err)
		}
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	readings, err := a.readings.ReadingsRange(ctx, farmID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, err
	}
	alerts, err := a.alerts.AlertsRange(ctx, farmID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, err
	}

	type acc struct {
		readings int
		alerts   int
		sum      float64
		min      float64
		max      float64
	}
	buckets := map[int]*acc{}
	for h := 0; h < 24; h++ {
		buckets[h] = &acc{}
	}
	for _, sample := range readings {
		_, hour := analytics.WeekdayHour(sample.TS, loc)
		bucket := buckets[hour]
		if bucket.readings == 0 || sample.Distance < bucket.min {
			bucket.min = sample.Distance
		}
		if sample.Distance > bucket.max {
			bucket.max = sample.Distance
		}
		bucket.readings++
		bucket.sum += sample.Distance
	}
	for _, alert := range alerts {
		_, hour := analytics.WeekdayHour(alert.TS, loc)
		buckets[hour].alerts++
	}

	points = make([]analytics.TrendPoint, 0, 24)
	for h := 0; h < 24; h++ {
		bucket := buckets[h]
		point := analytics.TrendPoint{
			Bucket:      fmt.Sprintf("%02d", h),
			Readings:    bucket.readings,
			Alerts:      bucket.alerts,
			MinDistance: bucket.min,
			MaxDistance: bucket.max,
		}
		if bucket.readings > 0 {
			point.AvgDistance = bucket.sum / float64(bucket.readings)
		}
		points = append(points, point)
	}
	return points, nil
}

// Heatmap returns the full 7x24 grid of alert counts by local weekday and
// hour over the past days days. All 168 cells are always present, so the
// cell sum equals the total alert count of the window.
func (a *Aggregator) Heatmap(ctx context.Context, farmID string, days int) (cells []analytics.HeatmapCell, err error) {
	start := a.clock.Now()
	defer func() { a.observe("heatmap", start, err) }()

	if days <= 0 {
		days = 7
	}
	loc := a.location(ctx, farmID)
	today := analytics.DayStart(a.clock.Now(), loc)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	alerts, err := a.alerts.AlertsRange(ctx, farmID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	var grid [7][24]int
	for _, alert := range alerts {
		weekday, hour := analytics.WeekdayHour(alert.TS, loc)
		grid[weekday][hour]++
	}
	cells = make([]analytics.HeatmapCell, 0, 7*24)
	for weekday := 0; weekday < 7; weekday++ {
		for hour := 0; hour < 24; hour++ {
			cells = append(cells, analytics.HeatmapCell{
				Weekday: weekday,
				Hour:    hour,
				Alerts:  grid[weekday][hour],
			})
		}
	}
	return cells, nil
}

// Devices returns per-sensor stats over the window [from, to).
func (a *Aggregator) Devices(ctx context.Context, farmID string, from, to time.Time) (stats []analytics.DeviceStats, err error) {
	start := a.clock.Now()
	defer func() { a.observe("devices", start, err) }()

	from, to = a.window(from, to, 24*time.Hour)
	readings, err := a.readings.ReadingsRange(ctx, farmID, from, to)
	if err != nil {
		return nil, err
	}
	alerts, err := a.alerts.AlertsRange(ctx, farmID, from, to)
	if err != nil {
		return nil, err
	}

	type acc struct {
		readings   int
		alerts     int
		sum        float64
		sumBattery float64
		lastSeen   time.Time
	}
	bySensor := map[string]*acc{}
	order := []string{}
	for _, sample := range readings {
		bucket, ok := bySensor[sample.SensorID]
		if !ok {
			bucket = &acc{}
			bySensor[sample.SensorID] = bucket
			order = append(order, sample.SensorID)
		}
		bucket.readings++
		bucket.sum += sample.Distance
		bucket.sumBattery += sample.Battery
		if sample.TS.After(bucket.lastSeen) {
			bucket.lastSeen = sample.TS
		}
	}
	for _, alert := range alerts {
		bucket, ok := bySensor[alert.SensorID]
		if !ok {
			bucket = &acc{}
			bySensor[alert.SensorID] = bucket
			order = append(order, alert.SensorID)
		}
		bucket.alerts++
	}

	stats = make([]analytics.DeviceStats, 0, len(order))
	for _, sensorID := range order {
		bucket := bySensor[sensorID]
		device := analytics.DeviceStats{
			SensorID: sensorID,
			Readings: bucket.readings,
			Alerts:   bucket.alerts,
			LastSeen: bucket.lastSeen,
		}
		if bucket.readings > 0 {
			device.AvgDistance = bucket.sum / float64(bucket.readings)
			device.AvgBattery = bucket.sumBattery / float64(bucket.readings)
		}
		stats = append(stats, device)
	}
	return stats, nil
}

func (a *Aggregator) window(from, to time.Time, fallback time.Duration) (time.Time, time.Time) {
	if to.IsZero() {
		to = a.clock.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-fallback)
	}
	return from, to
}
