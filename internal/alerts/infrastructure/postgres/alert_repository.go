package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alerts "pasture-cloud/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, farm_id, zone_id, sensor_id, livestock_id, type, severity, message,
	distance_measured, threshold, resolved, resolved_at, resolved_by, created_at`

// Create inserts a new alert row. Duplicates are never collapsed; every
// qualifying reading gets its own row.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.FarmID == "" || alert.SensorID == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, farm_id, zone_id, sensor_id, livestock_id, type, severity, message,
	distance_measured, threshold, resolved, resolved_at, resolved_by, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14
)`,
		alert.ID,
		alert.FarmID,
		alert.ZoneID,
		alert.SensorID,
		nullableString(alert.LivestockID),
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.DistanceMeasured,
		alert.Threshold,
		alert.Resolved,
		nullableTime(alert.ResolvedAt),
		nullableString(alert.ResolvedBy),
		alert.CreatedAt,
	)
	return err
}

// Get fetches an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerts.ErrNotFound
	}
	return alert, err
}

// List returns alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.FarmID != "" {
		add("farm_id = $%d", filter.FarmID)
	}
	if filter.SensorID != "" {
		add("sensor_id = $%d", filter.SensorID)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.Resolved != nil {
		add("resolved = $%d", *filter.Resolved)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *alert)
	}
	return out, rows.Err()
}

// Resolve flips the resolved flag. Resolving twice returns ErrNotFound since
// the WHERE clause only matches open alerts.
func (r *AlertRepository) Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
UPDATE alerts
SET resolved = TRUE, resolved_at = $1, resolved_by = $2
WHERE id = $3 AND resolved = FALSE
RETURNING `+alertColumns, at, nullableString(resolvedBy), id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerts.ErrNotFound
	}
	return alert, err
}

// Delete removes an alert and returns the deleted row so the caller can
// settle counters for still-open alerts.
func (r *AlertRepository) Delete(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx,
		`DELETE FROM alerts WHERE id = $1 RETURNING `+alertColumns, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alerts.ErrNotFound
	}
	return alert, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*alerts.Alert, error) {
	var (
		alert       alerts.Alert
		livestockID sql.NullString
		resolvedAt  sql.NullTime
		resolvedBy  sql.NullString
	)
	err := row.Scan(
		&alert.ID,
		&alert.FarmID,
		&alert.ZoneID,
		&alert.SensorID,
		&livestockID,
		&alert.Type,
		&alert.Severity,
		&alert.Message,
		&alert.DistanceMeasured,
		&alert.Threshold,
		&alert.Resolved,
		&resolvedAt,
		&resolvedBy,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.LivestockID = livestockID.String
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time
	}
	alert.ResolvedBy = resolvedBy.String
	return &alert, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
