package auth

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrOwnerMismatch indicates a resource belongs to a different farmer.
	ErrOwnerMismatch = errors.New("owner mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// FarmOwnerChecker validates that a farm belongs to the requesting farmer.
type FarmOwnerChecker interface {
	EnsureFarmOwner(ctx context.Context, farmerID, farmID string) error
}

// FarmChecker checks farm ownership against masterdata.
type FarmChecker struct {
	db *sql.DB
}

// NewFarmChecker constructs a FarmChecker.
func NewFarmChecker(db *sql.DB) *FarmChecker {
	if db == nil {
		return nil
	}
	return &FarmChecker{db: db}
}

// EnsureFarmOwner verifies the farm belongs to the farmer. Admins pass a
// blank farmerID and skip the check.
func (c *FarmChecker) EnsureFarmOwner(ctx context.Context, farmerID, farmID string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if farmerID == "" || farmID == "" {
		return nil
	}
	var ownerID string
	err := c.db.QueryRowContext(ctx, `SELECT farmer_id FROM farms WHERE id = $1`, farmID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != farmerID {
		return ErrOwnerMismatch
	}
	return nil
}
