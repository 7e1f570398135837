package events

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var got []interface{}
	bus.Subscribe(func(e interface{}) { got = append(got, e) })
	bus.Subscribe(func(e interface{}) { got = append(got, e) })

	bus.Publish(SchemaRegistered{Subject: "prod.user-value", Version: 2, Timestamp: time.Now()})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
}

func TestPanickingSubscriberDoesNotBreakPublish(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(func(interface{}) { panic("boom") })
	bus.Subscribe(func(interface{}) { delivered = true })

	bus.Publish(TopicApplied{ChangeID: "CHG-1"})

	if !delivered {
		t.Fatal("second subscriber should still receive the event")
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(SchemaRegistered{}) // must not panic
}

func TestLogHandlerWritesEventLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	bus := NewBus(logger)
	bus.Subscribe(LogHandler(logger))

	bus.Publish(SchemaRegistered{ChangeID: "CHG-9", Subject: "prod.user-value", Version: 3, SchemaID: 103})
	bus.Publish(TopicApplied{ChangeID: "CHG-9", Applied: []string{"prod.orders"}, Failed: 1})

	out := buf.String()
	if !strings.Contains(out, "schema registered") || !strings.Contains(out, "prod.user-value") {
		t.Fatalf("schema event not logged: %s", out)
	}
	if !strings.Contains(out, "topic batch applied") || !strings.Contains(out, "CHG-9") {
		t.Fatalf("topic event not logged: %s", out)
	}
}
