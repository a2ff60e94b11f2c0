// Package state defines the update events the client core emits and a
// small publish/subscribe bus that fans them out to consumers (the MQTT
// publisher and the HTTP API event stream).
package state

import (
	"log/slog"
	"sync"
	"time"
)

// EventType identifies event categories.
type EventType string

const (
	// EventTelemetryUpdate fires after each device telemetry refresh.
	EventTelemetryUpdate EventType = "telemetry_update"
	// EventUserUpdate fires after an occupant's trend/routine refresh.
	EventUserUpdate EventType = "user_update"
	// EventPresenceUpdate fires when an occupant's derived presence flips.
	EventPresenceUpdate EventType = "presence_update"
	// EventBaseUpdate fires after a bed-base data refresh.
	EventBaseUpdate EventType = "base_update"
	// EventSpeakerUpdate fires after a speaker/audio refresh.
	EventSpeakerUpdate EventType = "speaker_update"
)

// Event represents a state change for one occupant or the device itself.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// EventBus is a simple publish/subscribe event bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]chan Event),
		log:         log,
	}
}

// Publish sends an event to all subscribers.
func (b *EventBus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.log.Warn("event bus: subscriber buffer full, dropping event",
				"subscriber_id", id, "event_type", evt.Type)
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		// No publisher can hold the channel past the delete above, so the
		// close cannot race a send. Drain whatever was still buffered.
		close(ch)
		for range ch {
		}
	}
	return ch, unsub
}
