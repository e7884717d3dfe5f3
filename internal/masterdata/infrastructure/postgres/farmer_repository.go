package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// FarmerRepository is a Postgres repository for farmers.
type FarmerRepository struct {
	db *sql.DB
}

// NewFarmerRepository constructs a repository.
func NewFarmerRepository(db *sql.DB) *FarmerRepository {
	return &FarmerRepository{db: db}
}

// Get fetches a farmer by id.
func (r *FarmerRepository) Get(ctx context.Context, id string) (*masterdata.Farmer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("farmer repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, email, phone, farms_count, created_at, updated_at
FROM farmers
WHERE id = $1`, id)
	return scanFarmer(row)
}

// List returns all farmers.
func (r *FarmerRepository) List(ctx context.Context) ([]masterdata.Farmer, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("farmer repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, email, phone, farms_count, created_at, updated_at
FROM farmers
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Farmer
	for rows.Next() {
		farmer, err := scanFarmerRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *farmer)
	}
	return result, rows.Err()
}

// Save upserts a farmer.
func (r *FarmerRepository) Save(ctx context.Context, farmer *masterdata.Farmer) error {
	if r == nil || r.db == nil {
		return errors.New("farmer repo: nil db")
	}
	if farmer == nil {
		return errors.New("farmer repo: nil farmer")
	}
	if err := farmer.Validate(); err != nil {
		return err
	}
	if farmer.CreatedAt.IsZero() {
		farmer.CreatedAt = time.Now().UTC()
	}
	farmer.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO farmers (id, name, email, phone, farms_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	updated_at = EXCLUDED.updated_at`,
		farmer.ID, farmer.Name, farmer.Email, farmer.Phone, farmer.FarmsCount, farmer.CreatedAt, farmer.UpdatedAt)
	return err
}

// Delete removes a farmer.
func (r *FarmerRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("farmer repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM farmers WHERE id = $1`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFarmer(row *sql.Row) (*masterdata.Farmer, error) {
	farmer, err := scanFarmerRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return farmer, err
}

func scanFarmerRows(scanner rowScanner) (*masterdata.Farmer, error) {
	var farmer masterdata.Farmer
	var phone sql.NullString
	if err := scanner.Scan(
		&farmer.ID,
		&farmer.Name,
		&farmer.Email,
		&phone,
		&farmer.FarmsCount,
		&farmer.CreatedAt,
		&farmer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	farmer.Phone = phone.String
	farmer.CreatedAt = farmer.CreatedAt.UTC()
	farmer.UpdatedAt = farmer.UpdatedAt.UTC()
	return &farmer, nil
}
