package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// FarmRepository is a Postgres repository for farms.
type FarmRepository struct {
	db *sql.DB
}

// NewFarmRepository constructs a repository.
func NewFarmRepository(db *sql.DB) *FarmRepository {
	return &FarmRepository{db: db}
}

// Get fetches a farm by id.
func (r *FarmRepository) Get(ctx context.Context, id string) (*masterdata.Farm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("farm repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, farmer_id, name, location, timezone, zones_count, livestock_count, active_alerts, created_at, updated_at
FROM farms
WHERE id = $1`, id)
	farm, err := scanFarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return farm, err
}

// ListByFarmer returns farms owned by a farmer.
func (r *FarmRepository) ListByFarmer(ctx context.Context, farmerID string) ([]masterdata.Farm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("farm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, farmer_id, name, location, timezone, zones_count, livestock_count, active_alerts, created_at, updated_at
FROM farms
WHERE farmer_id = $1
ORDER BY created_at ASC`, farmerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Farm
	for rows.Next() {
		farm, err := scanFarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *farm)
	}
	return result, rows.Err()
}

// Save upserts a farm. Counter fields are excluded from updates; they are
// owned by the counter maintainer.
func (r *FarmRepository) Save(ctx context.Context, farm *masterdata.Farm) error {
	if r == nil || r.db == nil {
		return errors.New("farm repo: nil db")
	}
	if farm == nil {
		return errors.New("farm repo: nil farm")
	}
	if err := farm.Validate(); err != nil {
		return err
	}
	if farm.CreatedAt.IsZero() {
		farm.CreatedAt = time.Now().UTC()
	}
	farm.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO farms (id, farmer_id, name, location, timezone, zones_count, livestock_count, active_alerts, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	timezone = EXCLUDED.timezone,
	updated_at = EXCLUDED.updated_at`,
		farm.ID, farm.FarmerID, farm.Name, farm.Location, farm.Timezone,
		farm.ZonesCount, farm.LivestockCount, farm.ActiveAlerts, farm.CreatedAt, farm.UpdatedAt)
	return err
}

// Delete removes a farm.
func (r *FarmRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("farm repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM farms WHERE id = $1`, id)
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

func scanFarm(scanner rowScanner) (*masterdata.Farm, error) {
	var farm masterdata.Farm
	var location sql.NullString
	if err := scanner.Scan(
		&farm.ID,
		&farm.FarmerID,
		&farm.Name,
		&location,
		&farm.Timezone,
		&farm.ZonesCount,
		&farm.LivestockCount,
		&farm.ActiveAlerts,
		&farm.CreatedAt,
		&farm.UpdatedAt,
	); err != nil {
		return nil, err
	}
	farm.Location = location.String
	farm.CreatedAt = farm.CreatedAt.UTC()
	farm.UpdatedAt = farm.UpdatedAt.UTC()
	return &farm, nil
}
