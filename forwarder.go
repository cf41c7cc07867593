package txevents

import "context"

// Forwarder delivers events that leave the dispatcher: bypass dispatches
// immediately, buffered events at flush time. Forward returns the listener
// results for the event; implementations with no results to report (broker
// publishes) return nil.
type Forwarder interface {
	Forward(ctx context.Context, event Event) ([]any, error)
}

// ForwarderFunc adapts a plain function to the Forwarder interface.
type ForwarderFunc func(ctx context.Context, event Event) ([]any, error)

func (fn ForwarderFunc) Forward(ctx context.Context, event Event) ([]any, error) {
	if fn == nil {
		return nil, ErrForwarderRequired
	}

	return fn(ctx, event)
}

// HaltForwarder is an optional Forwarder capability for halt dispatches:
// deliver the event to listeners in order and stop at the first non-nil
// result. Dispatchers fall back to Forward when the forwarder does not
// implement it.
type HaltForwarder interface {
	ForwardHalt(ctx context.Context, event Event) (any, error)
}
