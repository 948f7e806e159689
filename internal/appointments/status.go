package appointments

import "fmt"

// Status is the lifecycle state of an appointment. Cancelled and completed
// are terminal; rows are never physically deleted.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no_show"
	StatusRescheduled Status = "rescheduled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled,
		StatusCompleted, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// transitions is the directed status graph. A status absent from an entry's
// set is not reachable from it.
var transitions = map[Status]map[Status]struct{}{
	StatusScheduled: {
		StatusConfirmed:   {},
		StatusCancelled:   {},
		StatusRescheduled: {},
	},
	StatusConfirmed: {
		StatusCompleted:   {},
		StatusCancelled:   {},
		StatusNoShow:      {},
		StatusRescheduled: {},
	},
	StatusCancelled: {},
	StatusCompleted: {},
	StatusNoShow: {
		StatusRescheduled: {},
	},
	StatusRescheduled: {
		StatusScheduled: {},
	},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// CheckTransition returns a BusinessRuleError naming both states when the
// transition is not in the table.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return &BusinessRuleError{
			Rule:    "invalid_status",
			Message: fmt.Sprintf("unknown appointment status %q", to),
		}
	}
	if !CanTransition(from, to) {
		return &BusinessRuleError{
			Rule:    "illegal_transition",
			Message: fmt.Sprintf("cannot change appointment status from %q to %q", from, to),
		}
	}
	return nil
}
