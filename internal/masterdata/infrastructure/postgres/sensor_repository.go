package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// SensorRepository is a Postgres repository for sensors.
type SensorRepository struct {
	db *sql.DB
}

// NewSensorRepository constructs a repository.
func NewSensorRepository(db *sql.DB) *SensorRepository {
	return &SensorRepository{db: db}
}

const sensorColumns = `id, farm_id, zone_id, type, active, threshold, battery_level,
	last_value, last_reading_at, readings_total, active_alerts, created_at, updated_at`

// Get fetches a sensor by id.
func (r *SensorRepository) Get(ctx context.Context, id string) (*masterdata.Sensor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sensor repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+sensorColumns+`
FROM sensors
WHERE id = $1`, id)
	sensor, err := scanSensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sensor, err
}

// ListByFarm returns sensors on a farm.
func (r *SensorRepository) ListByFarm(ctx context.Context, farmID string) ([]masterdata.Sensor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sensor repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sensorColumns+`
FROM sensors
WHERE farm_id = $1
ORDER BY created_at ASC`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sensor)
	}
	return result, rows.Err()
}

// Save upserts a sensor.
func (r *SensorRepository) Save(ctx context.Context, sensor *masterdata.Sensor) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	if sensor == nil {
		return errors.New("sensor repo: nil sensor")
	}
	if err := sensor.Validate(); err != nil {
		return err
	}
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now().UTC()
	}
	sensor.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sensors (`+sensorColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	zone_id = EXCLUDED.zone_id,
	type = EXCLUDED.type,
	active = EXCLUDED.active,
	threshold = EXCLUDED.threshold,
	updated_at = EXCLUDED.updated_at`,
		sensor.ID, sensor.FarmID, sensor.ZoneID, string(sensor.Type), sensor.Active,
		sensor.Threshold, sensor.BatteryLevel, sensor.LastValue, nullableTime(sensor.LastReadingAt),
		sensor.ReadingsTotal, sensor.ActiveAlerts, sensor.CreatedAt, sensor.UpdatedAt)
	return err
}

// Deactivate soft-deletes a sensor.
func (r *SensorRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE sensors
SET active = FALSE, updated_at = $1
WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// RecordReading updates last value/time and bumps readings_total atomically.
func (r *SensorRepository) RecordReading(ctx context.Context, id string, value float64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE sensors
SET last_value = $1, last_reading_at = $2, readings_total = readings_total + 1, updated_at = $2
WHERE id = $3`, value, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateBattery stores the latest battery level.
func (r *SensorRepository) UpdateBattery(ctx context.Context, id string, level float64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE sensors
SET battery_level = $1, updated_at = $2
WHERE id = $3`, level, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return masterdata.ErrNotFound
	}
	return nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func scanSensor(scanner rowScanner) (*masterdata.Sensor, error) {
	var sensor masterdata.Sensor
	var sensorType string
	var lastReadingAt sql.NullTime
	if err := scanner.Scan(
		&sensor.ID,
		&sensor.FarmID,
		&sensor.ZoneID,
		&sensorType,
		&sensor.Active,
		&sensor.Threshold,
		&sensor.BatteryLevel,
		&sensor.LastValue,
		&lastReadingAt,
		&sensor.ReadingsTotal,
		&sensor.ActiveAlerts,
		&sensor.CreatedAt,
		&sensor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sensor.Type = masterdata.SensorType(sensorType)
	if lastReadingAt.Valid {
		sensor.LastReadingAt = lastReadingAt.Time.UTC()
	}
	sensor.CreatedAt = sensor.CreatedAt.UTC()
	sensor.UpdatedAt = sensor.UpdatedAt.UTC()
	return &sensor, nil
}
