package calls

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestCallLogRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO call_logs").
		WithArgs(pgxmock.AnyArg(), "CA100", "sess-1", "+18185551234", "in-progress", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewCallLogStore(mock, nil)
	store.Record(context.Background(), CallLogEntry{
		CallSID:     "CA100",
		SessionID:   "sess-1",
		CallerPhone: "+18185551234",
		Status:      "in-progress",
	})
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCallLogRecordSwallowsFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO call_logs").
		WithArgs(pgxmock.AnyArg(), "CA100", "", "", "ringing", "", pgxmock.AnyArg()).
		WillReturnError(errors.New("table missing"))

	store := NewCallLogStore(mock, nil)
	// Must not panic or surface the error; call handling continues.
	store.Record(context.Background(), CallLogEntry{CallSID: "CA100", Status: "ringing"})
}

func TestCallLogUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	// Non-terminal status leaves ended_at alone.
	mock.ExpectExec("UPDATE call_logs").
		WithArgs("CA100", "in-progress").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Terminal status stamps ended_at.
	mock.ExpectExec("UPDATE call_logs").
		WithArgs("CA100", "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewCallLogStore(mock, nil)
	store.UpdateStatus(context.Background(), "CA100", "in-progress")
	store.UpdateStatus(context.Background(), "CA100", "completed")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCallLogSetOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE call_logs").
		WithArgs("CA100", "booked").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewCallLogStore(mock, nil)
	store.SetOutcome(context.Background(), "CA100", "booked")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
