package txevents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/littlemiaor/lib-txevents/log"
)

// namePattern is one compiled inclusion or exclusion pattern.
type namePattern struct {
	raw string
	re  *regexp.Regexp
}

func (pattern namePattern) matches(name string) bool {
	return pattern.re.MatchString(name)
}

// compilePatterns compiles each raw pattern exactly once, at configuration
// load. Blank patterns are skipped silently; malformed patterns are skipped
// with a warning and never match any name.
func compilePatterns(ctx context.Context, raw []string, logger log.Logger) []namePattern {
	if len(raw) == 0 {
		return nil
	}

	patterns := make([]namePattern, 0, len(raw))

	for _, rawPattern := range raw {
		trimmed := strings.TrimSpace(rawPattern)
		if trimmed == "" {
			continue
		}

		pattern, err := compilePattern(trimmed)
		if err != nil {
			logger.Log(ctx, log.LevelWarn, "skipping malformed event name pattern",
				log.String("pattern", trimmed),
				log.Err(err),
			)

			continue
		}

		patterns = append(patterns, pattern)
	}

	if len(patterns) == 0 {
		return nil
	}

	return patterns
}

// compilePattern translates a glob over dot-separated event names into an
// anchored regular expression. `*` matches any run of characters, dots
// included, so "orders.*" covers both "orders.created" and
// "orders.item.added". `?` matches a single character and `[...]` a
// character class (`[!...]` negated, ranges allowed).
func compilePattern(raw string) (namePattern, error) {
	expr, err := globToRegexp(raw)
	if err != nil {
		return namePattern{}, err
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return namePattern{}, fmt.Errorf("%w: %q", ErrBadPattern, raw)
	}

	return namePattern{raw: raw, re: re}, nil
}

func globToRegexp(glob string) (string, error) {
	var builder strings.Builder

	builder.WriteByte('^')

	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			builder.WriteString(".*")
		case '?':
			builder.WriteByte('.')
		case '[':
			class, width, err := translateClass(glob[i:])
			if err != nil {
				return "", fmt.Errorf("%w: %q", err, glob)
			}

			builder.WriteString(class)
			i += width - 1
		case '.', '+', '(', ')', '|', '{', '}', '^', '$', '\\', ']':
			builder.WriteByte('\\')
			builder.WriteByte(c)
		default:
			builder.WriteByte(c)
		}
	}

	builder.WriteByte('$')

	return builder.String(), nil
}

// translateClass converts a glob character class starting at s[0] == '['
// into its regexp form, returning the translated class and the number of
// glob bytes consumed. An unterminated class is malformed.
func translateClass(s string) (string, int, error) {
	j := 1
	negated := false

	if j < len(s) && (s[j] == '!' || s[j] == '^') {
		negated = true
		j++
	}

	contentStart := j

	// A ']' directly after the opener (or negation) is a literal member.
	if j < len(s) && s[j] == ']' {
		j++
	}

	for j < len(s) && s[j] != ']' {
		j++
	}

	if j >= len(s) {
		return "", 0, fmt.Errorf("%w: unterminated character class", ErrBadPattern)
	}

	var builder strings.Builder

	builder.WriteByte('[')

	if negated {
		builder.WriteByte('^')
	}

	builder.WriteString(s[contentStart:j])
	builder.WriteByte(']')

	return builder.String(), j + 1, nil
}
