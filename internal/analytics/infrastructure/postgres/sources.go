// Package postgres reads raw reading and alert rows for report aggregation.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pasture-cloud/internal/analytics/application"
)

// ReadingSource streams reading samples for one farm and window.
type ReadingSource struct {
	db    *sql.DB
	table string
}

// ReadingSourceOption customizes the source.
type ReadingSourceOption func(*ReadingSource)

// WithReadingsTable overrides the readings table name.
func WithReadingsTable(table string) ReadingSourceOption {
	return func(s *ReadingSource) {
		if table != "" {
			s.table = table
		}
	}
}

// NewReadingSource constructs a reading source backed by the readings table.
func NewReadingSource(db *sql.DB, opts ...ReadingSourceOption) (*ReadingSource, error) {
	if db == nil {
		return nil, errors.New("analytics: nil db")
	}
	s := &ReadingSource{db: db, table: "readings"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ReadingsRange returns samples for the farm within [from, to).
func (s *ReadingSource) ReadingsRange(ctx context.Context, farmID string, from, to time.Time) ([]application.ReadingSample, error) {
	query := fmt.Sprintf(`
SELECT sensor_id, distance_measured, battery_level, ts
FROM %s
WHERE farm_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts`, s.table)

	rows, err := s.db.QueryContext(ctx, query, farmID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query readings range: %w", err)
	}
	defer rows.Close()

	var samples []application.ReadingSample
	for rows.Next() {
		var sample application.ReadingSample
		if err := rows.Scan(&sample.SensorID, &sample.Distance, &sample.Battery, &sample.TS); err != nil {
			return nil, fmt.Errorf("scan reading sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// AlertSource streams alert samples for one farm and window.
type AlertSource struct {
	db *sql.DB
}

// NewAlertSource constructs an alert source backed by the alerts table.
func NewAlertSource(db *sql.DB) (*AlertSource, error) {
	if db == nil {
		return nil, errors.New("analytics: nil db")
	}
	return &AlertSource{db: db}, nil
}

// AlertsRange returns alert samples for the farm within [from, to).
func (s *AlertSource) AlertsRange(ctx context.Context, farmID string, from, to time.Time) ([]application.AlertSample, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sensor_id, type, severity, resolved, created_at
FROM alerts
WHERE farm_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at`, farmID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query alerts range: %w", err)
	}
	defer rows.Close()

	var samples []application.AlertSample
	for rows.Next() {
		var sample application.AlertSample
		if err := rows.Scan(&sample.SensorID, &sample.Type, &sample.Severity, &sample.Resolved, &sample.TS); err != nil {
			return nil, fmt.Errorf("scan alert sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}
