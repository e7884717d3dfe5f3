package masterdata

import (
	"context"
	"errors"
	"time"
)

// Zone represents a bounded grazing area within a farm.
type Zone struct {
	ID                    string    `json:"id"`
	FarmID                string    `json:"farm_id"`
	Name                  string    `json:"name"`
	BoundaryThreshold     float64   `json:"boundary_threshold"`
	CurrentLivestockCount int       `json:"current_livestock_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Validate checks zone invariants.
func (z Zone) Validate() error {
	if z.ID == "" {
		return errors.New("zone: empty id")
	}
	if z.FarmID == "" {
		return errors.New("zone: empty farm id")
	}
	if z.Name == "" {
		return errors.New("zone: empty name")
	}
	if z.BoundaryThreshold < 0 {
		return errors.New("zone: negative boundary threshold")
	}
	return nil
}

// ZoneRepository manages zone persistence.
type ZoneRepository interface {
	Get(ctx context.Context, id string) (*Zone, error)
	ListByFarm(ctx context.Context, farmID string) ([]Zone, error)
	Save(ctx context.Context, zone *Zone) error
	Delete(ctx context.Context, id string) error
}
