package access

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	// ErrLookupFailure wraps store errors surfaced by the resolvers. Callers
	// convert it into a restrictive decision; it never reaches UI callers raw.
	ErrLookupFailure = errors.New("access lookup failed")
)

func lookupFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLookupFailure, op, err)
}

// ValidationError reports malformed input to an admin mutation, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
