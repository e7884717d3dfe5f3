package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	alertapp "pasture-cloud/internal/alerts/application"
	masterdata "pasture-cloud/internal/masterdata/domain"
)

// FarmReader loads farm metadata for message rendering.
type FarmReader interface {
	Get(ctx context.Context, id string) (*masterdata.Farm, error)
}

// ZoneReader loads zone metadata for message rendering.
type ZoneReader interface {
	Get(ctx context.Context, id string) (*masterdata.Zone, error)
}

// DeliveryRecorder persists the outcome of a notification attempt.
type DeliveryRecorder interface {
	MarkNotification(ctx context.Context, id, channel string, sent bool, detail string) error
}

// Clock provides time for throttling decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and delivers them through a channel.
// Throttling is off by default; every alert row produces a delivery attempt
// unless a cooldown or dedupe window is configured.
type Notifier struct {
	farms    FarmReader
	zones    ZoneReader
	channel  Channel
	template *Template
	recorder DeliveryRecorder
	clock    Clock
	logger   *log.Logger

	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between deliveries for the same
// sensor and alert type.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical messages within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDeliveryRecorder wires delivery outcome persistence.
func WithDeliveryRecorder(recorder DeliveryRecorder) Option {
	return func(n *Notifier) {
		n.recorder = recorder
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(farms FarmReader, zones ZoneReader, channel Channel, template *Template, logger *log.Logger, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, fmt.Errorf("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	if logger == nil {
		logger = log.Default()
	}
	n := &Notifier{
		farms:    farms,
		zones:    zones,
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   logger,
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alertapp.AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(n.buildData(ctx, event))
	if err != nil {
		n.logger.Printf("alert notify render failed alert=%s: %v", event.Alert.ID, err)
		return
	}
	if !n.shouldSend(event.Alert.SensorID, event.Alert.Type, content) {
		return
	}
	err = n.channel.Send(ctx, content)
	if err != nil {
		n.logger.Printf("alert notify send failed alert=%s channel=%s: %v", event.Alert.ID, n.channel.Name(), err)
	} else {
		n.markSent(event.Alert.SensorID, event.Alert.Type, content)
	}
	n.recordOutcome(ctx, event.NotificationID, err)
}

func (n *Notifier) recordOutcome(ctx context.Context, notificationID string, sendErr error) {
	if n.recorder == nil || notificationID == "" {
		return
	}
	detail := ""
	if sendErr != nil {
		detail = sendErr.Error()
	}
	if err := n.recorder.MarkNotification(ctx, notificationID, n.channel.Name(), sendErr == nil, detail); err != nil {
		n.logger.Printf("alert notify outcome record failed notification=%s: %v", notificationID, err)
	}
}

func (n *Notifier) buildData(ctx context.Context, event alertapp.AlertEvent) TemplateData {
	alert := event.Alert
	farmName := alert.FarmID
	if n.farms != nil {
		if farm, err := n.farms.Get(ctx, alert.FarmID); err == nil && farm != nil && farm.Name != "" {
			farmName = farm.Name
		}
	}
	zoneName := alert.ZoneID
	if n.zones != nil {
		if zone, err := n.zones.Get(ctx, alert.ZoneID); err == nil && zone != nil && zone.Name != "" {
			zoneName = zone.Name
		}
	}
	return TemplateData{
		Farm:          farmName,
		FarmID:        alert.FarmID,
		Zone:          zoneName,
		ZoneID:        alert.ZoneID,
		SensorID:      alert.SensorID,
		Type:          alert.Type,
		Severity:      alert.Severity,
		SeverityLabel: severityLabel(event.Type, alert.Severity),
		Distance:      fmt.Sprintf("%.2f", alert.DistanceMeasured),
		Threshold:     fmt.Sprintf("%.2f", alert.Threshold),
		Time:          alert.CreatedAt.UTC().Format(time.RFC3339),
		Message:       alert.Message,
	}
}

func severityLabel(eventType, severity string) string {
	if eventType == alertapp.EventResolved {
		return "Resolved"
	}
	switch severity {
	case "critical":
		return "CRITICAL"
	case "high":
		return "High"
	default:
		return severity
	}
}

func (n *Notifier) shouldSend(sensorID, alertType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := sensorID + "|" + alertType
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(sensorID, alertType, content string) {
	key := sensorID + "|" + alertType
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// MultiNotifier dispatches alert events to multiple notifiers.
type MultiNotifier struct {
	notifiers []alertapp.AlertNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alertapp.AlertNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
