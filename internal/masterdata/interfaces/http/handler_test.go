package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pasture-cloud/internal/auth"
	"pasture-cloud/internal/httpapi"
	mdapp "pasture-cloud/internal/masterdata/application"
	masterdata "pasture-cloud/internal/masterdata/domain"
)

type memStore struct {
	farmers   map[string]*masterdata.Farmer
	farms     map[string]*masterdata.Farm
	zones     map[string]*masterdata.Zone
	livestock map[string]*masterdata.Livestock
	sensors   map[string]*masterdata.Sensor
}

func newMemStore() *memStore {
	return &memStore{
		farmers:   map[string]*masterdata.Farmer{},
		farms:     map[string]*masterdata.Farm{},
		zones:     map[string]*masterdata.Zone{},
		livestock: map[string]*masterdata.Livestock{},
		sensors:   map[string]*masterdata.Sensor{},
	}
}

type memFarmers struct{ s *memStore }

func (m memFarmers) Get(_ context.Context, id string) (*masterdata.Farmer, error) {
	f, ok := m.s.farmers[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}
func (m memFarmers) List(context.Context) ([]masterdata.Farmer, error) {
	out := make([]masterdata.Farmer, 0, len(m.s.farmers))
	for _, f := range m.s.farmers {
		out = append(out, *f)
	}
	return out, nil
}
func (m memFarmers) Save(_ context.Context, f *masterdata.Farmer) error {
	cp := *f
	m.s.farmers[f.ID] = &cp
	return nil
}
func (m memFarmers) Delete(_ context.Context, id string) error {
	delete(m.s.farmers, id)
	return nil
}

type memFarms struct{ s *memStore }

func (m memFarms) Get(_ context.Context, id string) (*masterdata.Farm, error) {
	f, ok := m.s.farms[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}
func (m memFarms) ListByFarmer(_ context.Context, farmerID string) ([]masterdata.Farm, error) {
	var out []masterdata.Farm
	for _, f := range m.s.farms {
		if f.FarmerID == farmerID {
			out = append(out, *f)
		}
	}
	return out, nil
}
func (m memFarms) Save(_ context.Context, f *masterdata.Farm) error {
	cp := *f
	m.s.farms[f.ID] = &cp
	return nil
}
func (m memFarms) Delete(_ context.Context, id string) error {
	delete(m.s.farms, id)
	return nil
}

type memZones struct{ s *memStore }

func (m memZones) Get(_ context.Context, id string) (*masterdata.Zone, error) {
	z, ok := m.s.zones[id]
	if !ok {
		return nil, nil
	}
	cp := *z
	return &cp, nil
}
func (m memZones) ListByFarm(_ context.Context, farmID string) ([]masterdata.Zone, error) {
	var out []masterdata.Zone
	for _, z := range m.s.zones {
		if z.FarmID == farmID {
			out = append(out, *z)
		}
	}
	return out, nil
}
func (m memZones) Save(_ context.Context, z *masterdata.Zone) error {
	cp := *z
	m.s.zones[z.ID] = &cp
	return nil
}
func (m memZones) Delete(_ context.Context, id string) error {
	delete(m.s.zones, id)
	return nil
}

type memLivestock struct{ s *memStore }

func (m memLivestock) Get(_ context.Context, id string) (*masterdata.Livestock, error) {
	l, ok := m.s.livestock[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}
func (m memLivestock) ListByFarm(_ context.Context, farmID string) ([]masterdata.Livestock, error) {
	var out []masterdata.Livestock
	for _, l := range m.s.livestock {
		if l.FarmID == farmID {
			out = append(out, *l)
		}
	}
	return out, nil
}
func (m memLivestock) ListByZone(_ context.Context, zoneID string) ([]masterdata.Livestock, error) {
	var out []masterdata.Livestock
	for _, l := range m.s.livestock {
		if l.ZoneID == zoneID {
			out = append(out, *l)
		}
	}
	return out, nil
}
func (m memLivestock) Save(_ context.Context, l *masterdata.Livestock) error {
	cp := *l
	m.s.livestock[l.ID] = &cp
	return nil
}
func (m memLivestock) Delete(_ context.Context, id string) error {
	delete(m.s.livestock, id)
	return nil
}

type memSensors struct{ s *memStore }

func (m memSensors) Get(_ context.Context, id string) (*masterdata.Sensor, error) {
	sn, ok := m.s.sensors[id]
	if !ok {
		return nil, nil
	}
	cp := *sn
	return &cp, nil
}
func (m memSensors) ListByFarm(_ context.Context, farmID string) ([]masterdata.Sensor, error) {
	var out []masterdata.Sensor
	for _, sn := range m.s.sensors {
		if sn.FarmID == farmID {
			out = append(out, *sn)
		}
	}
	return out, nil
}
func (m memSensors) Save(_ context.Context, sn *masterdata.Sensor) error {
	cp := *sn
	m.s.sensors[sn.ID] = &cp
	return nil
}
func (m memSensors) Deactivate(_ context.Context, id string, _ time.Time) error {
	sn, ok := m.s.sensors[id]
	if !ok {
		return masterdata.ErrNotFound
	}
	sn.Active = false
	return nil
}
func (m memSensors) RecordReading(_ context.Context, id string, value float64, at time.Time) error {
	sn, ok := m.s.sensors[id]
	if !ok {
		return masterdata.ErrNotFound
	}
	sn.LastValue = value
	sn.LastReadingAt = at
	sn.ReadingsTotal++
	return nil
}
func (m memSensors) UpdateBattery(_ context.Context, id string, level float64, _ time.Time) error {
	sn, ok := m.s.sensors[id]
	if !ok {
		return masterdata.ErrNotFound
	}
	sn.BatteryLevel = level
	return nil
}

type noopCounters struct{}

func (noopCounters) Adjust(context.Context, ...mdapp.Step) error { return nil }

type stubOwners struct{ err error }

func (s stubOwners) EnsureFarmOwner(context.Context, string, string) error { return s.err }

func newTestHandler(t *testing.T, store *memStore, owners auth.FarmOwnerChecker) *Handler {
	t.Helper()
	svc, err := mdapp.NewService(
		memFarmers{store}, memFarms{store}, memZones{store},
		memLivestock{store}, memSensors{store}, noopCounters{},
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h, err := NewHandler(svc, owners, nil, log.New(&strings.Builder{}, "", 0))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func seedStore(store *memStore) {
	store.farmers["farmer-1"] = &masterdata.Farmer{ID: "farmer-1", Name: "Ana", Email: "ana@example.com"}
	store.farms["farm-1"] = &masterdata.Farm{ID: "farm-1", FarmerID: "farmer-1", Name: "North", Timezone: "UTC"}
	store.zones["zone-1"] = &masterdata.Zone{ID: "zone-1", FarmID: "farm-1", Name: "Paddock A", BoundaryThreshold: 50}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpapi.Envelope {
	t.Helper()
	var env httpapi.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestCreateZoneReturnsEnvelope(t *testing.T) {
	store := newMemStore()
	seedStore(store)
	h := newTestHandler(t, store, nil)

	body := strings.NewReader(`{"farm_id":"farm-1","name":"Paddock B"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/zones", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("success = false: %v", env.Errors)
	}
}

func TestGetMissingFarmIs404(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/farms/nope", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Fatal("success should be false")
	}
}

func TestOwnerMismatchIs403(t *testing.T) {
	store := newMemStore()
	seedStore(store)
	h := newTestHandler(t, store, stubOwners{err: auth.ErrOwnerMismatch})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/zones?farm_id=farm-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "farmer-2", auth.RoleFarmer, "user-2"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminSkipsOwnerCheck(t *testing.T) {
	store := newMemStore()
	seedStore(store)
	h := newTestHandler(t, store, stubOwners{err: auth.ErrOwnerMismatch})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/zones?farm_id=farm-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "", auth.RoleAdmin, "admin-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteNonEmptyFarmIs400(t *testing.T) {
	store := newMemStore()
	seedStore(store)
	store.farms["farm-1"].ZonesCount = 1
	h := newTestHandler(t, store, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/farms/farm-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidBodyIs400(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/farmers", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMoveLivestockEndpoint(t *testing.T) {
	store := newMemStore()
	seedStore(store)
	store.zones["zone-2"] = &masterdata.Zone{ID: "zone-2", FarmID: "farm-1", Name: "Paddock B", BoundaryThreshold: 50}
	store.livestock["cow-1"] = &masterdata.Livestock{
		ID: "cow-1", FarmID: "farm-1", ZoneID: "zone-1", ZoneName: "Paddock A",
		IdentificationTag: "TAG-1", BoundaryStatus: masterdata.BoundaryInside, HealthStatus: masterdata.HealthHealthy,
	}
	h := newTestHandler(t, store, nil)

	body := strings.NewReader(`{"zone_id":"zone-2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/livestock/cow-1/move", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := store.livestock["cow-1"].ZoneName; got != "Paddock B" {
		t.Fatalf("zone name = %q, want Paddock B", got)
	}
}
