package eventbus

import (
	"context"
	"errors"
	"testing"
)

type testEvent struct {
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishDeliversToAllHandlers(t *testing.T) {
	bus := NewInMemoryBus()
	var calls []string
	bus.Subscribe("reading.received", func(_ context.Context, _ Event) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Subscribe("reading.received", func(_ context.Context, _ Event) error {
		calls = append(calls, "second")
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "reading.received"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestPublishReturnsFirstErrorButRunsAll(t *testing.T) {
	bus := NewInMemoryBus()
	wantErr := errors.New("boom")
	ranSecond := false
	bus.Subscribe("reading.received", func(_ context.Context, _ Event) error {
		return wantErr
	})
	bus.Subscribe("reading.received", func(_ context.Context, _ Event) error {
		ranSecond = true
		return errors.New("later")
	})

	err := bus.Publish(context.Background(), testEvent{name: "reading.received"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want first error, got %v", err)
	}
	if !ranSecond {
		t.Fatal("second handler did not run")
	}
}

func TestPublishRejectsNilAndUnnamed(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("nil event: got %v", err)
	}
	if err := bus.Publish(context.Background(), testEvent{}); !errors.Is(err, ErrUnnamedEvent) {
		t.Fatalf("unnamed event: got %v", err)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), testEvent{name: "reading.received"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
