package alerts

import (
	"context"
	"errors"
	"time"
)

// Alert types.
const (
	TypeBoundaryBreach = "boundary_breach"
	TypeLowBattery     = "low_battery"
)

// Severity levels.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
)

// ErrNotFound indicates a missing alert.
var ErrNotFound = errors.New("alerts: not found")

// Alert is a persisted breach event. Every qualifying reading produces a new
// row; repeated breaches from the same sensor are not collapsed.
type Alert struct {
	ID               string    `json:"id"`
	FarmID           string    `json:"farm_id"`
	ZoneID           string    `json:"zone_id"`
	SensorID         string    `json:"sensor_id"`
	LivestockID      string    `json:"livestock_id,omitempty"`
	Type             string    `json:"type"`
	Severity         string    `json:"severity"`
	Message          string    `json:"message"`
	DistanceMeasured float64   `json:"distance_measured"`
	Threshold        float64   `json:"threshold"`
	Resolved         bool      `json:"resolved"`
	ResolvedAt       time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       string    `json:"resolved_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ListFilter narrows alert queries.
type ListFilter struct {
	FarmID   string
	SensorID string
	Type     string
	Severity string
	// Resolved filters on the resolved flag when non-nil.
	Resolved *bool
	From     time.Time
	To       time.Time
	Limit    int
}

// Repository manages alert persistence.
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	List(ctx context.Context, filter ListFilter) ([]Alert, error)
	// Resolve flips the resolved flag. Resolving an already resolved alert
	// returns ErrNotFound so counters are never decremented twice.
	Resolve(ctx context.Context, id, resolvedBy string, at time.Time) (*Alert, error)
	Delete(ctx context.Context, id string) (*Alert, error)
}

// Notification is the delivery record fanned out for an alert.
type Notification struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	FarmerID  string    `json:"farmer_id"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// NotificationRepository manages notification persistence.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	UpdateStatus(ctx context.Context, id, status, detail string) error
	ListByAlert(ctx context.Context, alertID string) ([]Notification, error)
}
