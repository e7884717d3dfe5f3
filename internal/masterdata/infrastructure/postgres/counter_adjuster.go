package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pasture-cloud/internal/masterdata/application"
	masterdata "pasture-cloud/internal/masterdata/domain"
	"pasture-cloud/internal/observability/metrics"
)

// CounterAdjuster applies denormalized counter adjustments. All steps of one
// call run in a single transaction, so a reparenting decrement/increment pair
// can never half-apply.
type CounterAdjuster struct {
	db *sql.DB
}

// NewCounterAdjuster constructs a CounterAdjuster.
func NewCounterAdjuster(db *sql.DB) *CounterAdjuster {
	return &CounterAdjuster{db: db}
}

// Adjust implements application.CounterMaintainer.
func (a *CounterAdjuster) Adjust(ctx context.Context, steps ...application.Step) error {
	if a == nil || a.db == nil {
		return errors.New("counter adjuster: nil db")
	}
	if len(steps) == 0 {
		return nil
	}
	for _, step := range steps {
		if err := step.Validate(); err != nil {
			return err
		}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if err := applyStep(ctx, tx, step); err != nil {
			_ = tx.Rollback()
			metrics.IncCounterAdjust(step.Entity, "error")
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, step := range steps {
		metrics.IncCounterAdjust(step.Entity, "success")
	}
	return nil
}

func applyStep(ctx context.Context, tx *sql.Tx, step application.Step) error {
	// Entity and field names come from the whitelist in Validate, never from
	// request input, so building the statement by concatenation is safe.
	query := fmt.Sprintf(`
UPDATE %s
SET %s = GREATEST(%s + $1, 0), updated_at = NOW()
WHERE id = $2`, step.Entity, step.Field, step.Field)
	result, err := tx.ExecContext(ctx, query, step.Delta, step.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("counter adjuster: %s %s: %w", step.Entity, step.ID, masterdata.ErrNotFound)
	}
	return nil
}
