package notify

import (
	"context"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	alertapp "pasture-cloud/internal/alerts/application"
	alerts "pasture-cloud/internal/alerts/domain"
	masterdata "pasture-cloud/internal/masterdata/domain"
)

type stubChannel struct {
	mu   sync.Mutex
	sent []string
	fail error
	name string
}

func (c *stubChannel) Name() string {
	if c.name != "" {
		return c.name
	}
	return "stub"
}

func (c *stubChannel) Send(_ context.Context, content string) error {
	if c.fail != nil {
		return c.fail
	}
	c.mu.Lock()
	c.sent = append(c.sent, content)
	c.mu.Unlock()
	return nil
}

func (c *stubChannel) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type stubFarms struct{ farm *masterdata.Farm }

func (s stubFarms) Get(context.Context, string) (*masterdata.Farm, error) { return s.farm, nil }

type stubZones struct{ zone *masterdata.Zone }

func (s stubZones) Get(context.Context, string) (*masterdata.Zone, error) { return s.zone, nil }

type stubRecorder struct {
	id     string
	sent   bool
	detail string
}

func (r *stubRecorder) MarkNotification(_ context.Context, id, _ string, sent bool, detail string) error {
	r.id = id
	r.sent = sent
	r.detail = detail
	return nil
}

type fixedClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

func testEvent() alertapp.AlertEvent {
	return alertapp.AlertEvent{
		Type: alertapp.EventCreated,
		Alert: alerts.Alert{
			ID:               "alert-1",
			FarmID:           "farm-1",
			ZoneID:           "zone-1",
			SensorID:         "sensor-1",
			Type:             alerts.TypeBoundaryBreach,
			Severity:         alerts.SeverityCritical,
			Message:          "distance 10.00 below threshold 50.00",
			DistanceMeasured: 10,
			Threshold:        50,
			CreatedAt:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		NotificationID: "notification-1",
	}
}

func discardLogger() *log.Logger {
	return log.New(&strings.Builder{}, "", 0)
}

func TestNotifierRendersFarmAndZoneNames(t *testing.T) {
	channel := &stubChannel{}
	notifier, err := NewNotifier(
		stubFarms{&masterdata.Farm{ID: "farm-1", Name: "North Farm"}},
		stubZones{&masterdata.Zone{ID: "zone-1", Name: "Paddock A"}},
		channel, nil, discardLogger(),
	)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	notifier.Notify(context.Background(), testEvent())

	msgs := channel.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0], "North Farm") || !strings.Contains(msgs[0], "Paddock A") {
		t.Fatalf("message missing names: %q", msgs[0])
	}
	if !strings.Contains(msgs[0], "CRITICAL") {
		t.Fatalf("message missing severity label: %q", msgs[0])
	}
}

func TestNotifierRecordsOutcome(t *testing.T) {
	channel := &stubChannel{}
	recorder := &stubRecorder{}
	notifier, err := NewNotifier(nil, nil, channel, nil, discardLogger(), WithDeliveryRecorder(recorder))
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	notifier.Notify(context.Background(), testEvent())

	if recorder.id != "notification-1" || !recorder.sent {
		t.Fatalf("outcome = %+v, want sent notification-1", recorder)
	}
}

func TestNotifierRecordsFailure(t *testing.T) {
	channel := &stubChannel{fail: context.DeadlineExceeded}
	recorder := &stubRecorder{}
	notifier, err := NewNotifier(nil, nil, channel, nil, discardLogger(), WithDeliveryRecorder(recorder))
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	notifier.Notify(context.Background(), testEvent())

	if recorder.sent {
		t.Fatal("outcome should be failed")
	}
	if recorder.detail == "" {
		t.Fatal("failure detail should be recorded")
	}
}

func TestNotifierCooldownSuppressesRepeats(t *testing.T) {
	channel := &stubChannel{}
	clock := &fixedClock{at: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	notifier, err := NewNotifier(nil, nil, channel, nil, discardLogger(),
		WithClock(clock), WithCooldown(time.Minute))
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	notifier.Notify(context.Background(), testEvent())
	notifier.Notify(context.Background(), testEvent())
	if got := len(channel.messages()); got != 1 {
		t.Fatalf("sent %d messages within cooldown, want 1", got)
	}

	clock.advance(2 * time.Minute)
	notifier.Notify(context.Background(), testEvent())
	if got := len(channel.messages()); got != 2 {
		t.Fatalf("sent %d messages after cooldown, want 2", got)
	}
}

func TestNotifierDefaultDeliversEveryAlert(t *testing.T) {
	channel := &stubChannel{}
	notifier, err := NewNotifier(nil, nil, channel, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	for i := 0; i < 3; i++ {
		notifier.Notify(context.Background(), testEvent())
	}
	if got := len(channel.messages()); got != 3 {
		t.Fatalf("sent %d messages, want 3 with throttling off", got)
	}
}

func TestMultiNotifierFansOut(t *testing.T) {
	first := &stubChannel{}
	second := &stubChannel{}
	n1, _ := NewNotifier(nil, nil, first, nil, discardLogger())
	n2, _ := NewNotifier(nil, nil, second, nil, discardLogger())
	multi := NewMultiNotifier(n1, nil, n2)

	multi.Notify(context.Background(), testEvent())

	if len(first.messages()) != 1 || len(second.messages()) != 1 {
		t.Fatalf("fan-out incomplete: %d, %d", len(first.messages()), len(second.messages()))
	}
}
