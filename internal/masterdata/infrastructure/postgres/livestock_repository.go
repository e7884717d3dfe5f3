package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// LivestockRepository is a Postgres repository for livestock.
type LivestockRepository struct {
	db *sql.DB
}

// NewLivestockRepository constructs a repository.
func NewLivestockRepository(db *sql.DB) *LivestockRepository {
	return &LivestockRepository{db: db}
}

const livestockColumns = `id, farm_id, zone_id, zone_name, identification_tag, species,
	boundary_status, health_status, vaccination_history, medical_history, movement_history,
	created_at, updated_at`

// Get fetches livestock by id.
func (r *LivestockRepository) Get(ctx context.Context, id string) (*masterdata.Livestock, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("livestock repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+livestockColumns+`
FROM livestock
WHERE id = $1`, id)
	livestock, err := scanLivestock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return livestock, err
}

// ListByFarm returns livestock on a farm.
func (r *LivestockRepository) ListByFarm(ctx context.Context, farmID string) ([]masterdata.Livestock, error) {
	return r.list(ctx, "farm_id", farmID)
}

// ListByZone returns livestock in a zone.
func (r *LivestockRepository) ListByZone(ctx context.Context, zoneID string) ([]masterdata.Livestock, error) {
	return r.list(ctx, "zone_id", zoneID)
}

func (r *LivestockRepository) list(ctx context.Context, column, value string) ([]masterdata.Livestock, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("livestock repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+livestockColumns+`
FROM livestock
WHERE `+column+` = $1
ORDER BY created_at ASC`, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Livestock
	for rows.Next() {
		livestock, err := scanLivestock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *livestock)
	}
	return result, rows.Err()
}

// Save upserts a livestock record. A unique index on identification_tag maps
// violations to ErrDuplicateTag.
func (r *LivestockRepository) Save(ctx context.Context, livestock *masterdata.Livestock) error {
	if r == nil || r.db == nil {
		return errors.New("livestock repo: nil db")
	}
	if livestock == nil {
		return errors.New("livestock repo: nil livestock")
	}
	if err := livestock.Validate(); err != nil {
		return err
	}
	if livestock.CreatedAt.IsZero() {
		livestock.CreatedAt = time.Now().UTC()
	}
	livestock.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO livestock (`+livestockColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	zone_id = EXCLUDED.zone_id,
	zone_name = EXCLUDED.zone_name,
	species = EXCLUDED.species,
	boundary_status = EXCLUDED.boundary_status,
	health_status = EXCLUDED.health_status,
	vaccination_history = EXCLUDED.vaccination_history,
	medical_history = EXCLUDED.medical_history,
	movement_history = EXCLUDED.movement_history,
	updated_at = EXCLUDED.updated_at`,
		livestock.ID, livestock.FarmID, livestock.ZoneID, livestock.ZoneName,
		livestock.IdentificationTag, livestock.Species, livestock.BoundaryStatus, livestock.HealthStatus,
		nullableJSON(livestock.VaccinationHistory), nullableJSON(livestock.MedicalHistory), nullableJSON(livestock.MovementHistory),
		livestock.CreatedAt, livestock.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return masterdata.ErrDuplicateTag
	}
	return err
}

// Delete removes a livestock record.
func (r *LivestockRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("livestock repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM livestock WHERE id = $1`, id)
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

func scanLivestock(scanner rowScanner) (*masterdata.Livestock, error) {
	var livestock masterdata.Livestock
	var vaccination, medical, movement []byte
	if err := scanner.Scan(
		&livestock.ID,
		&livestock.FarmID,
		&livestock.ZoneID,
		&livestock.ZoneName,
		&livestock.IdentificationTag,
		&livestock.Species,
		&livestock.BoundaryStatus,
		&livestock.HealthStatus,
		&vaccination,
		&medical,
		&movement,
		&livestock.CreatedAt,
		&livestock.UpdatedAt,
	); err != nil {
		return nil, err
	}
	livestock.VaccinationHistory = vaccination
	livestock.MedicalHistory = medical
	livestock.MovementHistory = movement
	livestock.CreatedAt = livestock.CreatedAt.UTC()
	livestock.UpdatedAt = livestock.UpdatedAt.UTC()
	return &livestock, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
