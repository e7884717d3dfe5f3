package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	alertapp "pasture-cloud/internal/alerts/application"
	alerts "pasture-cloud/internal/alerts/domain"
	"pasture-cloud/internal/audit"
	"pasture-cloud/internal/auth"
	mdapp "pasture-cloud/internal/masterdata/application"
)

type fakeAlertRepo struct {
	mu    sync.Mutex
	byID  map[string]alerts.Alert
	order []string
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{byID: make(map[string]alerts.Alert)}
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[alert.ID] = *alert
	r.order = append(r.order, alert.ID)
	return nil
}

func (r *fakeAlertRepo) Get(_ context.Context, id string) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	return &alert, nil
}

func (r *fakeAlertRepo) List(_ context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Alert
	for _, id := range r.order {
		alert := r.byID[id]
		if filter.FarmID != "" && alert.FarmID != filter.FarmID {
			continue
		}
		if filter.Resolved != nil && alert.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

func (r *fakeAlertRepo) Resolve(_ context.Context, id, resolvedBy string, at time.Time) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok || alert.Resolved {
		return nil, alerts.ErrNotFound
	}
	alert.Resolved = true
	alert.ResolvedAt = at
	alert.ResolvedBy = resolvedBy
	r.byID[id] = alert
	return &alert, nil
}

func (r *fakeAlertRepo) Delete(_ context.Context, id string) (*alerts.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.byID[id]
	if !ok {
		return nil, alerts.ErrNotFound
	}
	delete(r.byID, id)
	return &alert, nil
}

type fakeNotificationRepo struct{}

func (fakeNotificationRepo) Create(context.Context, *alerts.Notification) error { return nil }
func (fakeNotificationRepo) UpdateStatus(context.Context, string, string, string) error {
	return nil
}
func (fakeNotificationRepo) ListByAlert(context.Context, string) ([]alerts.Notification, error) {
	return nil, nil
}

type noopCounters struct{}

func (noopCounters) Adjust(context.Context, ...mdapp.Step) error { return nil }

type stubOwners struct{ err error }

func (s stubOwners) EnsureFarmOwner(context.Context, string, string) error { return s.err }

type memAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *memAuditor) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func newAlertFixture(t *testing.T, owners auth.FarmOwnerChecker, auditor audit.Logger) (*Handler, *fakeAlertRepo) {
	t.Helper()
	repo := newFakeAlertRepo()
	service, err := alertapp.NewService(repo, fakeNotificationRepo{}, noopCounters{}, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	var opts []HandlerOption
	if auditor != nil {
		opts = append(opts, WithAuditor(auditor))
	}
	h, err := NewHandler(service, nil, owners, opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, repo
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func seedAlert(t *testing.T, repo *fakeAlertRepo, id, farmID string) {
	t.Helper()
	err := repo.Create(context.Background(), &alerts.Alert{
		ID:               id,
		FarmID:           farmID,
		ZoneID:           "zone-1",
		SensorID:         "sensor-1",
		Type:             alerts.TypeBoundaryBreach,
		Severity:         alerts.SeverityHigh,
		DistanceMeasured: 30,
		Threshold:        50,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}
}

func TestListAlertsFiltersResolved(t *testing.T) {
	h, repo := newAlertFixture(t, stubOwners{}, nil)
	seedAlert(t, repo, "alert-1", "farm-1")
	seedAlert(t, repo, "alert-2", "farm-1")
	if _, err := repo.Resolve(context.Background(), "alert-2", "tester", time.Now()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?resolved=false", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Success bool           `json:"success"`
		Data    []alerts.Alert `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || len(env.Data) != 1 || env.Data[0].ID != "alert-1" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestListAlertsRejectsBadResolvedParam(t *testing.T) {
	h, _ := newAlertFixture(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?resolved=maybe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListAlertsOwnerMismatchIs403(t *testing.T) {
	h, _ := newAlertFixture(t, stubOwners{err: auth.ErrOwnerMismatch}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?farm_id=farm-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "farmer-2", auth.RoleFarmer, "user@a"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestResolveAlertRecordsActorAndAudits(t *testing.T) {
	auditor := &memAuditor{}
	h, repo := newAlertFixture(t, stubOwners{}, auditor)
	seedAlert(t, repo, "alert-1", "farm-1")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/alerts/alert-1/resolve", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "farmer-1", auth.RoleFarmer, "jo@farm"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, err := repo.Get(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Resolved || stored.ResolvedBy != "jo@farm" {
		t.Fatalf("stored = %+v", stored)
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != "alert.resolve" {
		t.Fatalf("audit entries = %+v", auditor.entries)
	}
}

func TestResolveTwiceIs404(t *testing.T) {
	h, repo := newAlertFixture(t, stubOwners{}, nil)
	seedAlert(t, repo, "alert-1", "farm-1")

	for i, want := range []int{http.StatusOK, http.StatusNotFound} {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/alerts/alert-1/resolve", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestDeleteMissingAlertIs404(t *testing.T) {
	h, _ := newAlertFixture(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/alerts/ghost", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBrokerScopesByFarm(t *testing.T) {
	broker := NewSSEBroker()
	all := broker.Subscribe("")
	scoped := broker.Subscribe("farm-2")
	defer broker.Unsubscribe(all)
	defer broker.Unsubscribe(scoped)

	broker.Notify(context.Background(), alertapp.AlertEvent{
		Type:  alertapp.EventCreated,
		Alert: alerts.Alert{ID: "alert-1", FarmID: "farm-1"},
	})

	select {
	case payload := <-all.ch:
		var event alertapp.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Alert.ID != "alert-1" {
			t.Fatalf("event = %+v", event)
		}
	default:
		t.Fatal("unscoped client got no event")
	}
	select {
	case payload := <-scoped.ch:
		t.Fatalf("scoped client got foreign-farm event: %s", payload)
	default:
	}
}

func TestBrokerUnsubscribeDuringBroadcast(t *testing.T) {
	broker := NewSSEBroker()
	event := alertapp.AlertEvent{
		Type:  alertapp.EventCreated,
		Alert: alerts.Alert{ID: "alert-1", FarmID: "farm-1"},
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					broker.Notify(context.Background(), event)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c := broker.Subscribe("")
					broker.Unsubscribe(c)
				}
			}
		}()
	}
	time.Sleep(200 * time.Millisecond)
	close(stop)
	wg.Wait()

	survivor := broker.Subscribe("farm-1")
	defer broker.Unsubscribe(survivor)
	broker.Notify(context.Background(), event)
	select {
	case <-survivor.ch:
	default:
		t.Fatal("subscriber got no event after churn")
	}
}
