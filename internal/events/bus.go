// Package events is a small in-process pub-sub for post-apply notifications.
// Delivery is best effort: a slow or failing subscriber never affects apply.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// SchemaRegistered is published after a schema version lands in the registry.
type SchemaRegistered struct {
	ChangeID  string    `json:"change_id"`
	Subject   string    `json:"subject"`
	Version   int       `json:"version"`
	SchemaID  int       `json:"schema_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicApplied is published after a topic batch apply finishes.
type TopicApplied struct {
	ChangeID  string    `json:"change_id"`
	Applied   []string  `json:"applied"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives one published event.
type Handler func(event interface{})

// LogHandler writes one structured line per known event type. It is the
// default subscriber wired in the server binary.
func LogHandler(logger *slog.Logger) Handler {
	return func(event interface{}) {
		switch e := event.(type) {
		case SchemaRegistered:
			logger.Info("schema registered",
				"change_id", e.ChangeID, "subject", e.Subject, "version", e.Version, "schema_id", e.SchemaID)
		case TopicApplied:
			logger.Info("topic batch applied",
				"change_id", e.ChangeID, "applied", len(e.Applied), "failed", e.Failed)
		}
	}
}

// Bus fans events out to subscribers. Zero value is unusable; use NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber. Panicking subscribers are
// logged and skipped; Publish itself never fails.
func (b *Bus) Publish(event interface{}) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.Error("event handler panicked", "panic", r)
				}
			}()
			h(event)
		}()
	}
}
