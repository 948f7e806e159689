package appointments

import (
	"errors"
	"strings"
	"testing"
)

var allStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusCancelled,
	StatusCompleted, StatusNoShow, StatusRescheduled,
}

// allowed mirrors the documented transition table.
var allowed = map[Status][]Status{
	StatusScheduled:   {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:   {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusCancelled:   {},
	StatusCompleted:   {},
	StatusNoShow:      {StatusRescheduled},
	StatusRescheduled: {StatusScheduled},
}

func TestTransitionTableComplete(t *testing.T) {
	for _, from := range allStatuses {
		permitted := map[Status]bool{}
		for _, to := range allowed[from] {
			permitted[to] = true
		}
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			if got != permitted[to] {
				t.Fatalf("CanTransition(%s,%s)=%v want %v", from, to, got, permitted[to])
			}
			err := CheckTransition(from, to)
			if permitted[to] && err != nil {
				t.Fatalf("CheckTransition(%s,%s) unexpected error: %v", from, to, err)
			}
			if !permitted[to] {
				var ruleErr *BusinessRuleError
				if !errors.As(err, &ruleErr) {
					t.Fatalf("CheckTransition(%s,%s) expected BusinessRuleError, got %v", from, to, err)
				}
			}
		}
	}
}

func TestCheckTransitionNamesBothStates(t *testing.T) {
	err := CheckTransition(StatusCancelled, StatusScheduled)
	var ruleErr *BusinessRuleError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected BusinessRuleError, got %v", err)
	}
	msg := ruleErr.Error()
	for _, want := range []string{"cancelled", "scheduled"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q should name state %q", msg, want)
		}
	}
}

func TestCheckTransitionUnknownStatus(t *testing.T) {
	var ruleErr *BusinessRuleError
	if err := CheckTransition(StatusScheduled, Status("teleported")); !errors.As(err, &ruleErr) {
		t.Fatalf("expected BusinessRuleError for unknown status, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusCompleted} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusConfirmed, StatusNoShow, StatusRescheduled} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if Status("bogus").Terminal() {
		t.Fatal("unknown status must not report terminal")
	}
}
