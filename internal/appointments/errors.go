package appointments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the referenced appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrStorage wraps repository failures not classified any other way.
	// Retrying is the webhook caller's decision, never this package's.
	ErrStorage = errors.New("appointment storage failure")
)

// ValidationError marks a malformed or missing input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// BusinessRuleError marks a request that parsed fine but breaks a booking
// rule: past date, outside business hours, illegal status transition,
// cancelling a terminal appointment.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

// ConflictError marks a buffered-interval overlap with existing
// appointments. It carries the conflicting IDs; the service never silently
// picks a different slot.
type ConflictError struct {
	IDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("requested time conflicts with existing appointment(s): %s", strings.Join(ids, ", "))
}
