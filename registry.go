package txevents

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Listener consumes one forwarded event and may return a result.
type Listener func(ctx context.Context, event Event) (any, error)

// ListenerRegistry is an in-process Forwarder that fans events out to
// listeners registered by event name.
//
// Unlike the dispatcher core, a registry is shared infrastructure and is
// safe for concurrent use.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

var (
	_ Forwarder     = (*ListenerRegistry)(nil)
	_ HaltForwarder = (*ListenerRegistry)(nil)
)

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{listeners: map[string][]Listener{}}
}

// Register appends a listener for the given event name. Listeners run in
// registration order.
func (registry *ListenerRegistry) Register(eventName string, listener Listener) error {
	if registry == nil {
		return ErrRegistryRequired
	}

	normalizedName := strings.TrimSpace(eventName)
	if normalizedName == "" {
		return ErrEventNameRequired
	}

	if listener == nil {
		return ErrListenerRequired
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if registry.listeners == nil {
		registry.listeners = make(map[string][]Listener)
	}

	registry.listeners[normalizedName] = append(registry.listeners[normalizedName], listener)

	return nil
}

// Forward implements Forwarder. Every listener for the event name runs; a
// listener failure does not stop the remaining listeners, and the failures
// are joined into the returned error. An event with no listeners forwards
// successfully with no results.
func (registry *ListenerRegistry) Forward(ctx context.Context, event Event) ([]any, error) {
	listeners := registry.listenersFor(event.Name)
	if len(listeners) == 0 {
		return nil, nil
	}

	results := make([]any, 0, len(listeners))

	var errs []error

	for _, listener := range listeners {
		result, err := listener(ctx, event)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// ForwardHalt implements HaltForwarder. Listeners run in registration order
// until one returns a non-nil result or fails.
func (registry *ListenerRegistry) ForwardHalt(ctx context.Context, event Event) (any, error) {
	for _, listener := range registry.listenersFor(event.Name) {
		result, err := listener(ctx, event)
		if err != nil {
			return nil, err
		}

		if result != nil {
			return result, nil
		}
	}

	return nil, nil
}

// listenersFor returns the registered listener slice for an event name.
// Registration only ever appends through the map under the write lock, so
// the returned slice is safe to iterate after the lock is released.
func (registry *ListenerRegistry) listenersFor(eventName string) []Listener {
	if registry == nil {
		return nil
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	return registry.listeners[eventName]
}
