package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Delivery is asynchronous: Publish never waits for subscribers, so the
// supervisor loop can publish without stalling.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil bus drops the event.
// Usage: bus.Publish(WorkerSpawnedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case WorkerSpawnedEvent:
		event.Publish(b.dispatcher, e)
	case WorkerExitedEvent:
		event.Publish(b.dispatcher, e)
	case PoolScaledEvent:
		event.Publish(b.dispatcher, e)
	case StopRequestedEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case SpawnFailedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e WorkerExitedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WorkerSpawnedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PoolScaledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StopRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SpawnFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
