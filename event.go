package txevents

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for one application event passing through a
// Dispatcher. Name is a dot-separated identifier such as "orders.created";
// Payload is opaque to the library and handed to the Forwarder unchanged.
type Event struct {
	ID         uuid.UUID
	Name       string
	Payload    any
	OccurredAt time.Time
}

// NewEvent creates an event envelope with a fresh ID and UTC timestamp.
// The name is trimmed and must not be empty.
func NewEvent(name string, payload any) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, ErrEventNameRequired
	}

	return Event{
		ID:         uuid.New(),
		Name:       name,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// AfterCommitEvent marks a payload type as unconditionally transaction-bound.
// Payloads implementing it are classified Transactional regardless of the
// configured patterns, even when the event name matches an exclusion
// pattern. The check is a plain interface assertion on the payload's static
// type, resolved once per dispatch.
type AfterCommitEvent interface {
	DispatchAfterCommit()
}
