package application

import (
	"context"
	"errors"
	"fmt"
)

// Counter entities.
const (
	EntityFarmer = "farmers"
	EntityFarm   = "farms"
	EntityZone   = "zones"
	EntitySensor = "sensors"
)

// Counter fields.
const (
	FieldFarmsCount            = "farms_count"
	FieldZonesCount            = "zones_count"
	FieldLivestockCount        = "livestock_count"
	FieldActiveAlerts          = "active_alerts"
	FieldCurrentLivestockCount = "current_livestock_count"
)

// Step describes one denormalized counter adjustment on a parent record.
type Step struct {
	Entity string
	ID     string
	Field  string
	Delta  int
}

// Validate checks that the step targets a known counter.
func (s Step) Validate() error {
	if s.ID == "" {
		return errors.New("counter step: empty id")
	}
	if s.Delta == 0 {
		return errors.New("counter step: zero delta")
	}
	allowed, ok := counterFields[s.Entity]
	if !ok {
		return fmt.Errorf("counter step: unknown entity %q", s.Entity)
	}
	if _, ok := allowed[s.Field]; !ok {
		return fmt.Errorf("counter step: field %q not a counter on %q", s.Field, s.Entity)
	}
	return nil
}

var counterFields = map[string]map[string]struct{}{
	EntityFarmer: {FieldFarmsCount: {}},
	EntityFarm:   {FieldZonesCount: {}, FieldLivestockCount: {}, FieldActiveAlerts: {}},
	EntityZone:   {FieldCurrentLivestockCount: {}},
	EntitySensor: {FieldActiveAlerts: {}},
}

// CounterMaintainer applies the counter adjustments belonging to one logical
// mutation. All steps of a call succeed or fail together; a failed group is
// surfaced to the caller, never dropped.
type CounterMaintainer interface {
	Adjust(ctx context.Context, steps ...Step) error
}
