package masterdata

import (
	"context"
	"errors"
	"time"
)

// Farmer represents an account owning farms. FarmsCount is denormalized and
// must equal the number of farm rows referencing the farmer at rest.
type Farmer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	FarmsCount int       `json:"farms_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks farmer invariants.
func (f Farmer) Validate() error {
	if f.ID == "" {
		return errors.New("farmer: empty id")
	}
	if f.Name == "" {
		return errors.New("farmer: empty name")
	}
	if f.Email == "" {
		return errors.New("farmer: empty email")
	}
	return nil
}

// FarmerRepository manages farmer persistence.
type FarmerRepository interface {
	Get(ctx context.Context, id string) (*Farmer, error)
	List(ctx context.Context) ([]Farmer, error)
	Save(ctx context.Context, farmer *Farmer) error
	Delete(ctx context.Context, id string) error
}
