package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	masterdata "pasture-cloud/internal/masterdata/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ErrValidation wraps input validation failures so the boundary can map them
// to 400 without inspecting message text.
var ErrValidation = errors.New("masterdata: validation failed")

// Service orchestrates masterdata mutations. Every create, delete and
// reparenting call adjusts the affected denormalized counters in lockstep;
// when the counter group fails after an entity write, the write is compensated
// and the error surfaces to the caller.
type Service struct {
	farmers   masterdata.FarmerRepository
	farms     masterdata.FarmRepository
	zones     masterdata.ZoneRepository
	livestock masterdata.LivestockRepository
	sensors   masterdata.SensorRepository
	counters  CounterMaintainer
	clock     Clock
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a masterdata service.
func NewService(
	farmers masterdata.FarmerRepository,
	farms masterdata.FarmRepository,
	zones masterdata.ZoneRepository,
	livestock masterdata.LivestockRepository,
	sensors masterdata.SensorRepository,
	counters CounterMaintainer,
	opts ...ServiceOption,
) (*Service, error) {
	if farmers == nil || farms == nil || zones == nil || livestock == nil || sensors == nil {
		return nil, errors.New("masterdata: nil repository")
	}
	if counters == nil {
		return nil, errors.New("masterdata: nil counter maintainer")
	}
	service := &Service{
		farmers:   farmers,
		farms:     farms,
		zones:     zones,
		livestock: livestock,
		sensors:   sensors,
		counters:  counters,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateFarmer registers a farmer account.
func (s *Service) CreateFarmer(ctx context.Context, farmer *masterdata.Farmer) error {
	if farmer == nil {
		return fmt.Errorf("%w: nil farmer", ErrValidation)
	}
	if farmer.ID == "" {
		farmer.ID = "farmer-" + uuid.NewString()
	}
	if err := farmer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.farmers.Save(ctx, farmer)
}

// GetFarmer loads a farmer.
func (s *Service) GetFarmer(ctx context.Context, id string) (*masterdata.Farmer, error) {
	farmer, err := s.farmers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if farmer == nil {
		return nil, masterdata.ErrNotFound
	}
	return farmer, nil
}

// ListFarmers returns all farmers.
func (s *Service) ListFarmers(ctx context.Context) ([]masterdata.Farmer, error) {
	return s.farmers.List(ctx)
}

// DeleteFarmer removes a farmer without farms.
func (s *Service) DeleteFarmer(ctx context.Context, id string) error {
	farmer, err := s.GetFarmer(ctx, id)
	if err != nil {
		return err
	}
	if farmer.FarmsCount > 0 {
		return fmt.Errorf("%w: farmer still owns farms", ErrValidation)
	}
	return s.farmers.Delete(ctx, id)
}

// CreateFarm registers a farm and bumps the owner's farms_count.
func (s *Service) CreateFarm(ctx context.Context, farm *masterdata.Farm) error {
	if farm == nil {
		return fmt.Errorf("%w: nil farm", ErrValidation)
	}
	if farm.ID == "" {
		farm.ID = "farm-" + uuid.NewString()
	}
	if farm.Timezone == "" {
		farm.Timezone = "UTC"
	}
	if err := farm.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := s.GetFarmer(ctx, farm.FarmerID); err != nil {
		return err
	}
	if err := s.farms.Save(ctx, farm); err != nil {
		return err
	}
	if err := s.counters.Adjust(ctx, Step{Entity: EntityFarmer, ID: farm.FarmerID, Field: FieldFarmsCount, Delta: 1}); err != nil {
		_ = s.farms.Delete(ctx, farm.ID)
		return err
	}
	return nil
}

// GetFarm loads a farm.
func (s *Service) GetFarm(ctx context.Context, id string) (*masterdata.Farm, error) {
	farm, err := s.farms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if farm == nil {
		return nil, masterdata.ErrNotFound
	}
	return farm, nil
}

// ListFarms returns farms owned by a farmer.
func (s *Service) ListFarms(ctx context.Context, farmerID string) ([]masterdata.Farm, error) {
	if farmerID == "" {
		return nil, fmt.Errorf("%w: farmer id required", ErrValidation)
	}
	return s.farms.ListByFarmer(ctx, farmerID)
}

// UpdateFarm changes mutable farm attributes. Counter fields are never
// written through this path.
func (s *Service) UpdateFarm(ctx context.Context, id string, name, location, timezone *string) (*masterdata.Farm, error) {
	farm, err := s.GetFarm(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		farm.Name = *name
	}
	if location != nil {
		farm.Location = *location
	}
	if timezone != nil {
		if _, err := time.LoadLocation(*timezone); err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrValidation, *timezone)
		}
		farm.Timezone = *timezone
	}
	if err := farm.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.farms.Save(ctx, farm); err != nil {
		return nil, err
	}
	return farm, nil
}

// DeleteFarm removes an empty farm and decrements the owner's farms_count.
func (s *Service) DeleteFarm(ctx context.Context, id string) error {
	farm, err := s.GetFarm(ctx, id)
	if err != nil {
		return err
	}
	if farm.ZonesCount > 0 || farm.LivestockCount > 0 {
		return fmt.Errorf("%w: farm not empty", ErrValidation)
	}
	if err := s.farms.Delete(ctx, id); err != nil {
		return err
	}
	return s.counters.Adjust(ctx, Step{Entity: EntityFarmer, ID: farm.FarmerID, Field: FieldFarmsCount, Delta: -1})
}

// CreateZone registers a zone and bumps the farm's zones_count.
func (s *Service) CreateZone(ctx context.Context, zone *masterdata.Zone) error {
	if zone == nil {
		return fmt.Errorf("%w: nil zone", ErrValidation)
	}
	if zone.ID == "" {
		zone.ID = "zone-" + uuid.NewString()
	}
	if zone.BoundaryThreshold == 0 {
		zone.BoundaryThreshold = masterdata.DefaultThreshold
	}
	if err := zone.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := s.GetFarm(ctx, zone.FarmID); err != nil {
		return err
	}
	if err := s.zones.Save(ctx, zone); err != nil {
		return err
	}
	if err := s.counters.Adjust(ctx, Step{Entity: EntityFarm, ID: zone.FarmID, Field: FieldZonesCount, Delta: 1}); err != nil {
		_ = s.zones.Delete(ctx, zone.ID)
		return err
	}
	return nil
}

// GetZone loads a zone.
func (s *Service) GetZone(ctx context.Context, id string) (*masterdata.Zone, error) {
	zone, err := s.zones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, masterdata.ErrNotFound
	}
	return zone, nil
}

// ListZones returns zones in a farm.
func (s *Service) ListZones(ctx context.Context, farmID string) ([]masterdata.Zone, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm id required", ErrValidation)
	}
	return s.zones.ListByFarm(ctx, farmID)
}

// UpdateZone changes mutable zone attributes. Renaming a zone rewrites the
// cached zone name on every animal assigned to it.
func (s *Service) UpdateZone(ctx context.Context, id string, name *string, boundaryThreshold *float64) (*masterdata.Zone, error) {
	zone, err := s.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	renamed := false
	if name != nil && *name != zone.Name {
		zone.Name = *name
		renamed = true
	}
	if boundaryThreshold != nil {
		zone.BoundaryThreshold = *boundaryThreshold
	}
	if err := zone.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.zones.Save(ctx, zone); err != nil {
		return nil, err
	}
	if renamed {
		animals, err := s.livestock.ListByZone(ctx, zone.ID)
		if err != nil {
			return nil, err
		}
		for i := range animals {
			animals[i].ZoneName = zone.Name
			if err := s.livestock.Save(ctx, &animals[i]); err != nil {
				return nil, err
			}
		}
	}
	return zone, nil
}

// DeleteZone removes an empty zone and decrements the farm's zones_count.
func (s *Service) DeleteZone(ctx context.Context, id string) error {
	zone, err := s.GetZone(ctx, id)
	if err != nil {
		return err
	}
	if zone.CurrentLivestockCount > 0 {
		return fmt.Errorf("%w: zone not empty", ErrValidation)
	}
	if err := s.zones.Delete(ctx, id); err != nil {
		return err
	}
	return s.counters.Adjust(ctx, Step{Entity: EntityFarm, ID: zone.FarmID, Field: FieldZonesCount, Delta: -1})
}

// CreateLivestock registers an animal and bumps farm and zone counters.
func (s *Service) CreateLivestock(ctx context.Context, animal *masterdata.Livestock) error {
	if animal == nil {
		return fmt.Errorf("%w: nil livestock", ErrValidation)
	}
	if animal.ID == "" {
		animal.ID = "livestock-" + uuid.NewString()
	}
	if animal.BoundaryStatus == "" {
		animal.BoundaryStatus = masterdata.BoundaryInside
	}
	if animal.HealthStatus == "" {
		animal.HealthStatus = masterdata.HealthHealthy
	}
	if err := animal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	zone, err := s.GetZone(ctx, animal.ZoneID)
	if err != nil {
		return err
	}
	if zone.FarmID != animal.FarmID {
		return fmt.Errorf("%w: zone belongs to a different farm", ErrValidation)
	}
	animal.ZoneName = zone.Name
	if err := s.livestock.Save(ctx, animal); err != nil {
		return err
	}
	err = s.counters.Adjust(ctx,
		Step{Entity: EntityFarm, ID: animal.FarmID, Field: FieldLivestockCount, Delta: 1},
		Step{Entity: EntityZone, ID: animal.ZoneID, Field: FieldCurrentLivestockCount, Delta: 1},
	)
	if err != nil {
		_ = s.livestock.Delete(ctx, animal.ID)
		return err
	}
	return nil
}

// GetLivestock loads an animal.
func (s *Service) GetLivestock(ctx context.Context, id string) (*masterdata.Livestock, error) {
	animal, err := s.livestock.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if animal == nil {
		return nil, masterdata.ErrNotFound
	}
	return animal, nil
}

// ListLivestock returns livestock on a farm.
func (s *Service) ListLivestock(ctx context.Context, farmID string) ([]masterdata.Livestock, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm id required", ErrValidation)
	}
	return s.livestock.ListByFarm(ctx, farmID)
}

type movementEntry struct {
	FromZoneID string    `json:"from_zone_id"`
	ToZoneID   string    `json:"to_zone_id"`
	MovedAt    time.Time `json:"moved_at"`
}

// MoveLivestock reassigns an animal to another zone in the same farm. The old
// zone's counter decrement and the new zone's increment run as one atomic
// counter group; the cached zone name on the record is refreshed.
func (s *Service) MoveLivestock(ctx context.Context, id, newZoneID string) (*masterdata.Livestock, error) {
	if newZoneID == "" {
		return nil, fmt.Errorf("%w: zone id required", ErrValidation)
	}
	animal, err := s.GetLivestock(ctx, id)
	if err != nil {
		return nil, err
	}
	if animal.ZoneID == newZoneID {
		return animal, nil
	}
	newZone, err := s.GetZone(ctx, newZoneID)
	if err != nil {
		return nil, err
	}
	if newZone.FarmID != animal.FarmID {
		return nil, fmt.Errorf("%w: target zone belongs to a different farm", ErrValidation)
	}

	oldZoneID := animal.ZoneID
	oldZoneName := animal.ZoneName
	oldHistory := animal.MovementHistory
	now := s.clock.Now().UTC()

	var history []movementEntry
	if len(animal.MovementHistory) > 0 {
		// Corrupt history is replaced rather than blocking the move.
		_ = json.Unmarshal(animal.MovementHistory, &history)
	}
	history = append(history, movementEntry{FromZoneID: oldZoneID, ToZoneID: newZoneID, MovedAt: now})
	encoded, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}

	animal.ZoneID = newZoneID
	animal.ZoneName = newZone.Name
	animal.MovementHistory = encoded
	if err := s.livestock.Save(ctx, animal); err != nil {
		return nil, err
	}

	err = s.counters.Adjust(ctx,
		Step{Entity: EntityZone, ID: oldZoneID, Field: FieldCurrentLivestockCount, Delta: -1},
		Step{Entity: EntityZone, ID: newZoneID, Field: FieldCurrentLivestockCount, Delta: 1},
	)
	if err != nil {
		animal.ZoneID = oldZoneID
		animal.ZoneName = oldZoneName
		animal.MovementHistory = oldHistory
		_ = s.livestock.Save(ctx, animal)
		return nil, err
	}
	return animal, nil
}

// UpdateLivestock changes mutable animal attributes. Zone reassignment goes
// through MoveLivestock, never through this path.
func (s *Service) UpdateLivestock(ctx context.Context, id string, healthStatus, boundaryStatus *string, vaccination, medical json.RawMessage) (*masterdata.Livestock, error) {
	animal, err := s.GetLivestock(ctx, id)
	if err != nil {
		return nil, err
	}
	if healthStatus != nil {
		animal.HealthStatus = *healthStatus
	}
	if boundaryStatus != nil {
		animal.BoundaryStatus = *boundaryStatus
	}
	if vaccination != nil {
		animal.VaccinationHistory = vaccination
	}
	if medical != nil {
		animal.MedicalHistory = medical
	}
	if err := animal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.livestock.Save(ctx, animal); err != nil {
		return nil, err
	}
	return animal, nil
}

// DeleteLivestock removes an animal and decrements farm and zone counters by
// exactly one each.
func (s *Service) DeleteLivestock(ctx context.Context, id string) error {
	animal, err := s.GetLivestock(ctx, id)
	if err != nil {
		return err
	}
	if err := s.livestock.Delete(ctx, id); err != nil {
		return err
	}
	return s.counters.Adjust(ctx,
		Step{Entity: EntityFarm, ID: animal.FarmID, Field: FieldLivestockCount, Delta: -1},
		Step{Entity: EntityZone, ID: animal.ZoneID, Field: FieldCurrentLivestockCount, Delta: -1},
	)
}

// RegisterSensor registers a sensor with the default threshold when none is
// supplied. Sensors are never deleted, only deactivated.
func (s *Service) RegisterSensor(ctx context.Context, sensor *masterdata.Sensor) error {
	if sensor == nil {
		return fmt.Errorf("%w: nil sensor", ErrValidation)
	}
	if sensor.ID == "" {
		sensor.ID = "sensor-" + uuid.NewString()
	}
	if sensor.Threshold == 0 {
		sensor.Threshold = masterdata.DefaultThreshold
	}
	sensor.Active = true
	if err := sensor.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	zone, err := s.GetZone(ctx, sensor.ZoneID)
	if err != nil {
		return err
	}
	if zone.FarmID != sensor.FarmID {
		return fmt.Errorf("%w: zone belongs to a different farm", ErrValidation)
	}
	return s.sensors.Save(ctx, sensor)
}

// GetSensor loads a sensor.
func (s *Service) GetSensor(ctx context.Context, id string) (*masterdata.Sensor, error) {
	sensor, err := s.sensors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sensor == nil {
		return nil, masterdata.ErrNotFound
	}
	return sensor, nil
}

// ListSensors returns sensors on a farm.
func (s *Service) ListSensors(ctx context.Context, farmID string) ([]masterdata.Sensor, error) {
	if farmID == "" {
		return nil, fmt.Errorf("%w: farm id required", ErrValidation)
	}
	return s.sensors.ListByFarm(ctx, farmID)
}

// UpdateSensor changes the breach threshold.
func (s *Service) UpdateSensor(ctx context.Context, id string, threshold *float64) (*masterdata.Sensor, error) {
	sensor, err := s.GetSensor(ctx, id)
	if err != nil {
		return nil, err
	}
	if threshold != nil {
		sensor.Threshold = *threshold
	}
	if err := sensor.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.sensors.Save(ctx, sensor); err != nil {
		return nil, err
	}
	return sensor, nil
}

// DeactivateSensor soft-deletes a sensor.
func (s *Service) DeactivateSensor(ctx context.Context, id string) error {
	if _, err := s.GetSensor(ctx, id); err != nil {
		return err
	}
	return s.sensors.Deactivate(ctx, id, s.clock.Now())
}
