package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Boundary status values for livestock.
const (
	BoundaryInside  = "inside"
	BoundaryOutside = "outside"
)

// Health status values for livestock.
const (
	HealthHealthy     = "healthy"
	HealthSick        = "sick"
	HealthQuarantined = "quarantined"
)

// Livestock represents an animal assigned to a zone. ZoneName is a
// denormalized cache of the owning zone's name, refreshed on reassignment.
type Livestock struct {
	ID                 string          `json:"id"`
	FarmID             string          `json:"farm_id"`
	ZoneID             string          `json:"zone_id"`
	ZoneName           string          `json:"zone_name"`
	IdentificationTag  string          `json:"identification_tag"`
	Species            string          `json:"species"`
	BoundaryStatus     string          `json:"boundary_status"`
	HealthStatus       string          `json:"health_status"`
	VaccinationHistory json.RawMessage `json:"vaccination_history,omitempty"`
	MedicalHistory     json.RawMessage `json:"medical_history,omitempty"`
	MovementHistory    json.RawMessage `json:"movement_history,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Validate checks livestock invariants.
func (l Livestock) Validate() error {
	if l.ID == "" {
		return errors.New("livestock: empty id")
	}
	if l.FarmID == "" {
		return errors.New("livestock: empty farm id")
	}
	if l.ZoneID == "" {
		return errors.New("livestock: empty zone id")
	}
	if l.IdentificationTag == "" {
		return errors.New("livestock: empty identification tag")
	}
	switch l.BoundaryStatus {
	case "", BoundaryInside, BoundaryOutside:
	default:
		return errors.New("livestock: invalid boundary status")
	}
	switch l.HealthStatus {
	case "", HealthHealthy, HealthSick, HealthQuarantined:
	default:
		return errors.New("livestock: invalid health status")
	}
	return nil
}

// ErrDuplicateTag indicates an identification tag is already in use.
var ErrDuplicateTag = errors.New("livestock: duplicate identification tag")

// LivestockRepository manages livestock persistence.
type LivestockRepository interface {
	Get(ctx context.Context, id string) (*Livestock, error)
	ListByFarm(ctx context.Context, farmID string) ([]Livestock, error)
	ListByZone(ctx context.Context, zoneID string) ([]Livestock, error)
	Save(ctx context.Context, livestock *Livestock) error
	Delete(ctx context.Context, id string) error
}
