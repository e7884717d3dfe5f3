package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	analyticsapp "pasture-cloud/internal/analytics/application"
	alerts "pasture-cloud/internal/alerts/domain"
	"pasture-cloud/internal/auth"
	masterdata "pasture-cloud/internal/masterdata/domain"
)

type stubReadings struct{ samples []analyticsapp.ReadingSample }

func (s stubReadings) ReadingsRange(context.Context, string, time.Time, time.Time) ([]analyticsapp.ReadingSample, error) {
	return s.samples, nil
}

type stubAlerts struct{ samples []analyticsapp.AlertSample }

func (s stubAlerts) AlertsRange(context.Context, string, time.Time, time.Time) ([]analyticsapp.AlertSample, error) {
	return s.samples, nil
}

type stubFarmReader struct{}

func (stubFarmReader) Get(context.Context, string) (*masterdata.Farm, error) {
	return &masterdata.Farm{ID: "farm-1", FarmerID: "farmer-1", Timezone: "UTC"}, nil
}

type stubLister struct{ list []alerts.Alert }

func (s stubLister) ListAlerts(context.Context, alerts.ListFilter) ([]alerts.Alert, error) {
	return s.list, nil
}

type stubOwners struct{ err error }

func (s stubOwners) EnsureFarmOwner(context.Context, string, string) error { return s.err }

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func newTestHandler(t *testing.T, owners auth.FarmOwnerChecker, list []alerts.Alert) *Handler {
	t.Helper()
	now := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	readings := stubReadings{samples: []analyticsapp.ReadingSample{
		{SensorID: "sensor-1", Distance: 40, Battery: 80, TS: now.Add(-time.Hour)},
	}}
	alertSamples := stubAlerts{samples: []analyticsapp.AlertSample{
		{SensorID: "sensor-1", Type: "boundary_breach", Severity: "critical", TS: now.Add(-time.Hour)},
	}}
	agg, err := analyticsapp.NewAggregator(readings, alertSamples, stubFarmReader{})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	exports, err := NewExportHandler(stubLister{list})
	if err != nil {
		t.Fatalf("NewExportHandler: %v", err)
	}
	h, err := NewHandler(agg, exports, owners)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestDashboardEnvelope(t *testing.T) {
	h := newTestHandler(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/dashboard?farm_id=farm-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decode(t, rec)
	if !env.Success {
		t.Fatalf("success = false: %s", rec.Body.String())
	}
	var stats struct {
		TotalReadings  int `json:"total_readings"`
		CriticalAlerts int `json:"critical_alerts"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if stats.TotalReadings != 1 || stats.CriticalAlerts != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDashboardRequiresFarmID(t *testing.T) {
	h := newTestHandler(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/dashboard", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyticsOwnerMismatchIs403(t *testing.T) {
	h := newTestHandler(t, stubOwners{err: auth.ErrOwnerMismatch}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/trends?farm_id=farm-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "farmer-2", auth.RoleFarmer, "user@a"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdminBypassesOwnerCheck(t *testing.T) {
	h := newTestHandler(t, stubOwners{err: auth.ErrOwnerMismatch}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/heatmap?farm_id=farm-1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "", auth.RoleAdmin, "admin@a"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decode(t, rec)
	var cells []struct {
		Alerts int `json:"alerts"`
	}
	if err := json.Unmarshal(env.Data, &cells); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(cells) != 168 {
		t.Fatalf("cells = %d, want 168", len(cells))
	}
}

func TestTrendsRejectsBadDays(t *testing.T) {
	h := newTestHandler(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/trends?farm_id=farm-1&days=zero", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownReportIs404(t *testing.T) {
	h := newTestHandler(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/forecast?farm_id=farm-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCSVExport(t *testing.T) {
	list := []alerts.Alert{
		{
			ID:               "alert-1",
			FarmID:           "farm-1",
			ZoneID:           "zone-1",
			SensorID:         "sensor-1",
			Type:             alerts.TypeBoundaryBreach,
			Severity:         alerts.SeverityCritical,
			Message:          "distance 10.00 below threshold 50.00",
			DistanceMeasured: 10,
			Threshold:        50,
			CreatedAt:        time.Date(2025, 6, 7, 11, 0, 0, 0, time.UTC),
		},
	}
	h := newTestHandler(t, stubOwners{}, list)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/alerts.csv?farm_id=farm-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "alerts.csv") {
		t.Fatalf("disposition = %q", got)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "id" || rows[1][0] != "alert-1" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][6] != "critical" {
		t.Fatalf("severity column = %q", rows[1][6])
	}
}

func TestExportRejectsBadWindow(t *testing.T) {
	h := newTestHandler(t, stubOwners{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/alerts.csv?from=yesterday", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestXLSXAndPDFBuildersProduceOutput(t *testing.T) {
	list := []alerts.Alert{
		{ID: "alert-1", SensorID: "sensor-1", Type: alerts.TypeLowBattery, Severity: alerts.SeverityHigh, CreatedAt: time.Now()},
	}
	xlsx, err := BuildAlertsXLSX(list)
	if err != nil {
		t.Fatalf("BuildAlertsXLSX: %v", err)
	}
	if len(xlsx) == 0 {
		t.Fatal("empty xlsx")
	}
	pdf, err := BuildAlertsPDF(list)
	if err != nil {
		t.Fatalf("BuildAlertsPDF: %v", err)
	}
	if len(pdf) == 0 {
		t.Fatal("empty pdf")
	}
}
