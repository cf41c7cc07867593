package txevents

import (
	"context"

	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
)

// Classifier decides whether an event is transaction-bound or bypasses the
// buffer. Classification must be a pure function of the event; it runs on
// every dispatch.
type Classifier interface {
	Classify(event Event) Disposition
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(event Event) Disposition

func (fn ClassifierFunc) Classify(event Event) Disposition {
	if fn == nil {
		return DispositionBypass
	}

	return fn(event)
}

// PatternClassifier classifies events by name against inclusion and
// exclusion globs compiled once at construction.
//
// Precedence, highest first:
//
//  1. A payload implementing AfterCommitEvent is Transactional,
//     unconditionally, even when the name matches an exclusion pattern.
//  2. When the classifier is disabled, everything else is Bypass.
//  3. A name matching an exclusion pattern is Bypass.
//  4. A name matching an inclusion pattern is Transactional.
//  5. Default is Bypass.
type PatternClassifier struct {
	enabled  bool
	included []namePattern
	excluded []namePattern
}

var _ Classifier = (*PatternClassifier)(nil)

// NewPatternClassifier compiles the configured patterns once. Malformed
// patterns are reported through the logger at warning level and never match.
func NewPatternClassifier(enabled bool, included, excluded []string, logger log.Logger) *PatternClassifier {
	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	ctx := context.Background()

	return &PatternClassifier{
		enabled:  enabled,
		included: compilePatterns(ctx, included, logger),
		excluded: compilePatterns(ctx, excluded, logger),
	}
}

// Classify implements Classifier.
func (classifier *PatternClassifier) Classify(event Event) Disposition {
	if _, ok := event.Payload.(AfterCommitEvent); ok {
		return DispositionTransactional
	}

	if !classifier.enabled {
		return DispositionBypass
	}

	for _, pattern := range classifier.excluded {
		if pattern.matches(event.Name) {
			return DispositionBypass
		}
	}

	for _, pattern := range classifier.included {
		if pattern.matches(event.Name) {
			return DispositionTransactional
		}
	}

	return DispositionBypass
}
