package interfaces

import (
	"context"
	"errors"
	"log"

	alertapp "pasture-cloud/internal/alerts/application"
	"pasture-cloud/internal/eventbus"
	telemetryevents "pasture-cloud/internal/telemetry/application/events"
)

// ReadingConsumer subscribes the alert recorder to accepted readings.
// Recording failures are logged and swallowed so the ingest path never
// observes them.
type ReadingConsumer struct {
	service *alertapp.Service
	logger  *log.Logger
}

// NewReadingConsumer constructs a consumer.
func NewReadingConsumer(service *alertapp.Service, logger *log.Logger) (*ReadingConsumer, error) {
	if service == nil {
		return nil, errors.New("alerts consumer: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReadingConsumer{service: service, logger: logger}, nil
}

// Register subscribes the consumer on the bus.
func (c *ReadingConsumer) Register(bus eventbus.Bus) error {
	if bus == nil {
		return errors.New("alerts consumer: nil bus")
	}
	bus.Subscribe(telemetryevents.NameReadingReceived, c.handle)
	return nil
}

func (c *ReadingConsumer) handle(ctx context.Context, event eventbus.Event) error {
	evt, ok := event.(telemetryevents.ReadingReceived)
	if !ok {
		c.logger.Printf("alerts consumer: unexpected event %T", event)
		return nil
	}
	if err := c.service.HandleReadingReceived(ctx, evt); err != nil {
		c.logger.Printf("alert recording failed sensor=%s: %v", evt.SensorID, err)
	}
	return nil
}
