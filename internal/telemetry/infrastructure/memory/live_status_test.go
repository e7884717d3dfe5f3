package memory

import (
	"testing"
	"time"

	telemetry "pasture-cloud/internal/telemetry/domain"
)

func TestLastWriteWins(t *testing.T) {
	store := NewLiveStatusStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store.Set(telemetry.LiveStatus{SensorID: "sensor-1", DistanceMeasured: 40, ReceivedAt: base})
	store.Set(telemetry.LiveStatus{SensorID: "sensor-1", DistanceMeasured: 55, ReceivedAt: base.Add(time.Second)})

	status, ok := store.Get("sensor-1")
	if !ok {
		t.Fatal("expected status")
	}
	if status.DistanceMeasured != 55 {
		t.Fatalf("distance = %v, want latest 55", status.DistanceMeasured)
	}
}

func TestStaleBoundaryIsStrict(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	status := telemetry.LiveStatus{SensorID: "sensor-1", Timestamp: base, ReceivedAt: base}

	if status.Stale(base.Add(telemetry.StaleAfter)) {
		t.Fatal("status aged exactly the limit must be fresh")
	}
	if !status.Stale(base.Add(telemetry.StaleAfter + time.Millisecond)) {
		t.Fatal("status one millisecond past the limit must be stale")
	}
}

func TestStaleUsesReadingTimestamp(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	status := telemetry.LiveStatus{
		SensorID:   "sensor-1",
		Timestamp:  base.Add(-time.Hour),
		ReceivedAt: base,
	}

	if !status.Stale(base) {
		t.Fatal("backdated reading must read as stale even when just received")
	}
}

func TestGetMissingSensor(t *testing.T) {
	store := NewLiveStatusStore()
	if _, ok := store.Get("nope"); ok {
		t.Fatal("unexpected status for unknown sensor")
	}
}

func TestAllSnapshot(t *testing.T) {
	store := NewLiveStatusStore()
	store.Set(telemetry.LiveStatus{SensorID: "a"})
	store.Set(telemetry.LiveStatus{SensorID: "b"})

	if got := len(store.All()); got != 2 {
		t.Fatalf("All() returned %d entries, want 2", got)
	}
}
