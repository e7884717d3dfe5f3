package masterdata

import (
	"context"
	"errors"
	"time"
)

// Farm represents a farm owned by a farmer. The count fields are denormalized
// aggregates maintained in lockstep with child mutations.
type Farm struct {
	ID             string    `json:"id"`
	FarmerID       string    `json:"farmer_id"`
	Name           string    `json:"name"`
	Location       string    `json:"location,omitempty"`
	Timezone       string    `json:"timezone"`
	ZonesCount     int       `json:"zones_count"`
	LivestockCount int       `json:"livestock_count"`
	ActiveAlerts   int       `json:"active_alerts"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks farm invariants.
func (f Farm) Validate() error {
	if f.ID == "" {
		return errors.New("farm: empty id")
	}
	if f.FarmerID == "" {
		return errors.New("farm: empty farmer id")
	}
	if f.Name == "" {
		return errors.New("farm: empty name")
	}
	if f.Timezone == "" {
		return errors.New("farm: empty timezone")
	}
	return nil
}

// FarmRepository manages farm persistence.
type FarmRepository interface {
	Get(ctx context.Context, id string) (*Farm, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]Farm, error)
	Save(ctx context.Context, farm *Farm) error
	Delete(ctx context.Context, id string) error
}
