package txevents

import (
	"fmt"
	"strings"
)

// Disposition is the classification result for one event.
type Disposition int

const (
	// DispositionBypass forwards the event immediately, skipping the buffer.
	DispositionBypass Disposition = iota
	// DispositionTransactional defers delivery until the outermost
	// enclosing transaction commits.
	DispositionTransactional
)

// String returns the string representation of a disposition.
func (disposition Disposition) String() string {
	switch disposition {
	case DispositionBypass:
		return "bypass"
	case DispositionTransactional:
		return "transactional"
	default:
		return "unknown"
	}
}

// IsValid reports whether the disposition is a known classification result.
func (disposition Disposition) IsValid() bool {
	switch disposition {
	case DispositionBypass, DispositionTransactional:
		return true
	default:
		return false
	}
}

// ParseDisposition converts a raw string into a Disposition.
func ParseDisposition(raw string) (Disposition, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "bypass":
		return DispositionBypass, nil
	case "transactional":
		return DispositionTransactional, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDisposition, raw)
	}
}
