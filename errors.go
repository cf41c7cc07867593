package txevents

import "errors"

var (
	ErrEventNameRequired  = errors.New("event name is required")
	ErrForwarderRequired  = errors.New("forwarder is required")
	ErrDispatcherRequired = errors.New("dispatcher is required")
	ErrTrackerRequired    = errors.New("transaction tracker is required")
	ErrRegistryRequired   = errors.New("listener registry is required")
	ErrListenerRequired   = errors.New("listener is required")
	ErrBufferFull         = errors.New("pending event buffer is full")
	ErrInvalidDisposition = errors.New("invalid disposition")
	ErrBadPattern         = errors.New("malformed event name pattern")
)
