package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	alerts "pasture-cloud/internal/alerts/domain"
	mdapp "pasture-cloud/internal/masterdata/application"
	"pasture-cloud/internal/observability/metrics"
	telemetryevents "pasture-cloud/internal/telemetry/application/events"
)

// LowBatteryLevel is the battery percentage below which a low_battery alert
// is raised.
const LowBatteryLevel = 20

// AlertNotifier fans an alert lifecycle event out to delivery channels.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents an alert lifecycle update. NotificationID links the
// pending delivery record so channels can report their outcome.
type AlertEvent struct {
	Type           string       `json:"type"`
	Alert          alerts.Alert `json:"alert"`
	NotificationID string       `json:"notification_id,omitempty"`
}

// Alert event types.
const (
	EventCreated  = "created"
	EventResolved = "resolved"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service records alerts from accepted readings and drives their lifecycle.
type Service struct {
	alerts        alerts.Repository
	notifications alerts.NotificationRepository
	counters      mdapp.CounterMaintainer
	notifier      AlertNotifier
	clock         Clock
	logger        *log.Logger
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// SetNotifier attaches the notifier after construction. Needed because the
// notifier records delivery outcomes back through this service.
func (s *Service) SetNotifier(notifier AlertNotifier) {
	s.notifier = notifier
}

// NewService constructs an alert service.
func NewService(alertRepo alerts.Repository, notifications alerts.NotificationRepository, counters mdapp.CounterMaintainer, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if alertRepo == nil {
		return nil, errors.New("alerts: nil alert repository")
	}
	if notifications == nil {
		return nil, errors.New("alerts: nil notification repository")
	}
	if counters == nil {
		return nil, errors.New("alerts: nil counter maintainer")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		alerts:        alertRepo,
		notifications: notifications,
		counters:      counters,
		clock:         systemClock{},
		logger:        logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// HandleReadingReceived evaluates an accepted reading and records alerts.
// Failures here never block ingestion; the subscriber logs and swallows the
// returned error.
func (s *Service) HandleReadingReceived(ctx context.Context, evt telemetryevents.ReadingReceived) error {
	if s == nil {
		return errors.New("alerts: nil service")
	}
	if evt.SensorID == "" || evt.FarmID == "" {
		return errors.New("alerts: reading missing sensor/farm")
	}

	verdict := alerts.Evaluate(evt.DistanceMeasured, evt.Threshold)
	if verdict.Breach {
		alert := &alerts.Alert{
			FarmID:           evt.FarmID,
			ZoneID:           evt.ZoneID,
			SensorID:         evt.SensorID,
			Type:             alerts.TypeBoundaryBreach,
			Severity:         verdict.Severity,
			Message:          fmt.Sprintf("distance %.2f below threshold %.2f", evt.DistanceMeasured, evt.Threshold),
			DistanceMeasured: evt.DistanceMeasured,
			Threshold:        evt.Threshold,
			CreatedAt:        evt.Timestamp,
		}
		if err := s.record(ctx, alert, evt.FarmerID); err != nil {
			return err
		}
	}

	if evt.BatteryLevel > 0 && evt.BatteryLevel < LowBatteryLevel {
		alert := &alerts.Alert{
			FarmID:           evt.FarmID,
			ZoneID:           evt.ZoneID,
			SensorID:         evt.SensorID,
			Type:             alerts.TypeLowBattery,
			Severity:         alerts.SeverityHigh,
			Message:          fmt.Sprintf("battery at %.0f%%", evt.BatteryLevel),
			DistanceMeasured: evt.DistanceMeasured,
			Threshold:        evt.Threshold,
			CreatedAt:        evt.Timestamp,
		}
		if err := s.record(ctx, alert, evt.FarmerID); err != nil {
			return err
		}
	}
	return nil
}

// record persists one alert row, bumps active counters and fans out
// notifications. Counter failures surface to the caller; the alert row is
// kept so the reconcile job can settle the drift.
func (s *Service) record(ctx context.Context, alert *alerts.Alert, farmerID string) error {
	if alert.ID == "" {
		alert.ID = "alert-" + uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.clock.Now().UTC()
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	metrics.IncAlertEvent(alert.Type)

	countErr := s.counters.Adjust(ctx,
		mdapp.Step{Entity: mdapp.EntityFarm, ID: alert.FarmID, Field: mdapp.FieldActiveAlerts, Delta: 1},
		mdapp.Step{Entity: mdapp.EntitySensor, ID: alert.SensorID, Field: mdapp.FieldActiveAlerts, Delta: 1},
	)

	notification := &alerts.Notification{
		ID:       "notification-" + uuid.NewString(),
		AlertID:  alert.ID,
		FarmerID: farmerID,
		Channel:  "webhook",
		Status:   alerts.NotificationPending,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		s.logger.Printf("notification record failed alert=%s: %v", alert.ID, err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, AlertEvent{Type: EventCreated, Alert: *alert, NotificationID: notification.ID})
	}
	return countErr
}

// GetAlert loads one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*alerts.Alert, error) {
	return s.alerts.Get(ctx, id)
}

// ListAlerts returns alerts matching the filter.
func (s *Service) ListAlerts(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error) {
	return s.alerts.List(ctx, filter)
}

// ResolveAlert flips the resolved flag and decrements active counters.
// Resolving an already resolved alert is a not-found condition so counters
// only ever step down once per alert.
func (s *Service) ResolveAlert(ctx context.Context, id, resolvedBy string) (*alerts.Alert, error) {
	alert, err := s.alerts.Resolve(ctx, id, resolvedBy, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	err = s.counters.Adjust(ctx,
		mdapp.Step{Entity: mdapp.EntityFarm, ID: alert.FarmID, Field: mdapp.FieldActiveAlerts, Delta: -1},
		mdapp.Step{Entity: mdapp.EntitySensor, ID: alert.SensorID, Field: mdapp.FieldActiveAlerts, Delta: -1},
	)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, AlertEvent{Type: EventResolved, Alert: *alert})
	}
	return alert, nil
}

// DeleteAlert removes an alert. Open alerts settle their counters on the way
// out; resolved alerts already did at resolution time.
func (s *Service) DeleteAlert(ctx context.Context, id string) error {
	alert, err := s.alerts.Delete(ctx, id)
	if err != nil {
		return err
	}
	if alert.Resolved {
		return nil
	}
	return s.counters.Adjust(ctx,
		mdapp.Step{Entity: mdapp.EntityFarm, ID: alert.FarmID, Field: mdapp.FieldActiveAlerts, Delta: -1},
		mdapp.Step{Entity: mdapp.EntitySensor, ID: alert.SensorID, Field: mdapp.FieldActiveAlerts, Delta: -1},
	)
}

// ListNotifications returns the delivery records for an alert.
func (s *Service) ListNotifications(ctx context.Context, alertID string) ([]alerts.Notification, error) {
	return s.notifications.ListByAlert(ctx, alertID)
}

// MarkNotification records a delivery outcome.
func (s *Service) MarkNotification(ctx context.Context, id, channel string, sent bool, detail string) error {
	status := alerts.NotificationSent
	if !sent {
		status = alerts.NotificationFailed
	}
	metrics.IncNotifyResult(channel, status)
	return s.notifications.UpdateStatus(ctx, id, status, detail)
}
