package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	telemetry "pasture-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres repository for sensor readings. The parent
// table is range partitioned by calendar date; the repository creates the
// daily partition before the first insert that needs it.
type ReadingRepository struct {
	db    *sql.DB
	table string

	mu      sync.Mutex
	ensured map[string]struct{}
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{
		db:      db,
		table:   defaultReadingsTable,
		ensured: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert writes readings in one transaction, creating daily partitions as
// needed.
func (r *ReadingRepository) Insert(ctx context.Context, readings []telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	for _, reading := range readings {
		if err := reading.Validate(); err != nil {
			return fmt.Errorf("%w: %v", telemetry.ErrInvalidReading, err)
		}
		if err := r.ensurePartition(ctx, reading.Timestamp); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, sensor_id, farm_id, zone_id, distance_measured, battery_level,
	signal_strength, ts, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, r.table)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, reading := range readings {
		createdAt := reading.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			reading.ID,
			reading.SensorID,
			reading.FarmID,
			reading.ZoneID,
			reading.DistanceMeasured,
			reading.BatteryLevel,
			reading.SignalStrength,
			reading.Timestamp,
			createdAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListBySensor returns readings in [from, to), newest first.
func (r *ReadingRepository) ListBySensor(ctx context.Context, sensorID string, from, to time.Time, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if sensorID == "" {
		return nil, errors.New("reading repo: empty sensor id")
	}
	if limit <= 0 || limit > 10000 {
		limit = 10000
	}
	query := fmt.Sprintf(`
SELECT id, sensor_id, farm_id, zone_id, distance_measured, battery_level,
	signal_strength, ts, created_at
FROM %s
WHERE sensor_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts DESC
LIMIT $4`, r.table)

	rows, err := r.db.QueryContext(ctx, query, sensorID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		if err := rows.Scan(
			&reading.ID,
			&reading.SensorID,
			&reading.FarmID,
			&reading.ZoneID,
			&reading.DistanceMeasured,
			&reading.BatteryLevel,
			&reading.SignalStrength,
			&reading.Timestamp,
			&reading.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, rows.Err()
}

// ensurePartition creates the daily partition covering ts when it has not
// been ensured in this process yet. CREATE TABLE IF NOT EXISTS makes the
// call safe across processes.
func (r *ReadingRepository) ensurePartition(ctx context.Context, ts time.Time) error {
	day := ts.UTC().Truncate(24 * time.Hour)
	name := fmt.Sprintf("%s_%s", r.table, day.Format("20060102"))

	r.mu.Lock()
	_, done := r.ensured[name]
	r.mu.Unlock()
	if done {
		return nil
	}

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
		name, r.table,
		day.Format("2006-01-02"),
		day.Add(24*time.Hour).Format("2006-01-02"),
	)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		// Concurrent creation races surface as already-exists; treat as done.
		if !strings.Contains(err.Error(), "already exists") {
			return err
		}
	}

	r.mu.Lock()
	r.ensured[name] = struct{}{}
	r.mu.Unlock()
	return nil
}
