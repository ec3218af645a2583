// Package validate carries field-level validation failures so the API layer
// can report every offending field at once instead of the first one found.
package validate

import (
	"fmt"
	"strings"
)

// Error is a collection of per-field validation messages.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return "validation error: " + strings.Join(e.Messages, "; ")
}

// Addf appends a formatted message.
func (e *Error) Addf(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

// Err returns the error, or nil when no message was recorded.
func (e *Error) Err() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}
