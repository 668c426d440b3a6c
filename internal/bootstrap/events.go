package bootstrap

// Event represents a startup lifecycle event.
// Minimal and stable: name + subject (model, service) and optional fields.
type Event struct {
	Name    string
	Subject string
	Fields  map[string]any
}

// EventPublisher receives events from the startup steps. Publish must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
