// Package resolver expands short ID prefixes (task IDs, commit hashes) to
// full identifiers.
package resolver

import (
	"fmt"
	"strings"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 4 characters to balance usability with collision avoidance.
const MinShortIDLength = 4

// Resolve expands a short prefix to the single matching candidate.
// Returns the full ID if exactly one candidate matches.
// Returns error if zero or multiple candidates match.
//
// An input that exactly equals a candidate always resolves to it, even when
// it is also a prefix of others.
func Resolve(shortID string, candidates []string) (string, error) {
	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	var matches []string
	for _, candidate := range candidates {
		if candidate == shortID {
			return candidate, nil
		}
		if strings.HasPrefix(candidate, shortID) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no candidates matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("nothing matches '%s'", e.ShortID)
}

// AmbiguousError indicates multiple candidates matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d entries", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly message for ambiguous short
// IDs, listing up to 10 matches.
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d entries:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the entry."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
