package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(RoutingChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// Use type switch to call the generic Publish with the correct type
	switch e := ev.(type) {
	case RoutingChangedEvent:
		event.Publish(b.dispatcher, e)
	case PortListChangedEvent:
		event.Publish(b.dispatcher, e)
	case PatchListChangedEvent:
		event.Publish(b.dispatcher, e)
	case MixStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingConfigEvent:
		event.Publish(b.dispatcher, e)
	case DeviceConnectionEvent:
		event.Publish(b.dispatcher, e)
	case VolumeChangedEvent:
		event.Publish(b.dispatcher, e)
	case ConfigChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives (type inference)
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e RoutingChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RoutingChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PortListChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PatchListChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MixStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingConfigEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceConnectionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(VolumeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
