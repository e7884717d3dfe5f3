package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// ZoneRepository is a Postgres repository for zones.
type ZoneRepository struct {
	db *sql.DB
}

// NewZoneRepository constructs a repository.
func NewZoneRepository(db *sql.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// Get fetches a zone by id.
func (r *ZoneRepository) Get(ctx context.Context, id string) (*masterdata.Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, farm_id, name, boundary_threshold, current_livestock_count, created_at, updated_at
FROM zones
WHERE id = $1`, id)
	zone, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return zone, err
}

// ListByFarm returns zones in a farm.
func (r *ZoneRepository) ListByFarm(ctx context.Context, farmID string) ([]masterdata.Zone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("zone repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, farm_id, name, boundary_threshold, current_livestock_count, created_at, updated_at
FROM zones
WHERE farm_id = $1
ORDER BY created_at ASC`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *zone)
	}
	return result, rows.Err()
}

// Save upserts a zone. The livestock counter is owned by the counter
// maintainer and not written on update.
func (r *ZoneRepository) Save(ctx context.Context, zone *masterdata.Zone) error {
	if r == nil || r.db == nil {
		return errors.New("zone repo: nil db")
	}
	if zone == nil {
		return errors.New("zone repo: nil zone")
	}
	if err := zone.Validate(); err != nil {
		return err
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	zone.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO zones (id, farm_id, name, boundary_threshold, current_livestock_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	boundary_threshold = EXCLUDED.boundary_threshold,
	updated_at = EXCLUDED.updated_at`,
		zone.ID, zone.FarmID, zone.Name, zone.BoundaryThreshold, zone.CurrentLivestockCount, zone.CreatedAt, zone.UpdatedAt)
	return err
}

// Delete removes a zone.
func (r *ZoneRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("zone repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM zones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return masterdata.ErrNotFound
	}
	return nil
}

func scanZone(scanner rowScanner) (*masterdata.Zone, error) {
	var zone masterdata.Zone
	if err := scanner.Scan(
		&zone.ID,
		&zone.FarmID,
		&zone.Name,
		&zone.BoundaryThreshold,
		&zone.CurrentLivestockCount,
		&zone.CreatedAt,
		&zone.UpdatedAt,
	); err != nil {
		return nil, err
	}
	zone.CreatedAt = zone.CreatedAt.UTC()
	zone.UpdatedAt = zone.UpdatedAt.UTC()
	return &zone, nil
}
