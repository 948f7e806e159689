package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var apptCols = []string{
	"id", "patient_id", "appointment_date", "appointment_time",
	"start_time_utc", "end_time_utc", "duration_minutes", "status",
	"patient_name", "patient_phone", "reason", "notes", "call_sid",
	"session_id", "created_at", "updated_at",
}

func apptRow(id, patientID uuid.UUID, date, clock string, start time.Time, status Status) []any {
	return []any{
		id, patientID, date, clock,
		start, start.Add(30 * time.Minute), 30, status,
		"Jane Doe", "+18185551234", "cleaning", "", "CA100",
		"sess-1", time.Now(), time.Now(),
	}
}

func TestRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	patientID := uuid.New()
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID:              id,
		PatientID:       patientID,
		Date:            "2026-03-02",
		Clock:           "10:00",
		StartUTC:        start,
		EndUTC:          start.Add(30 * time.Minute),
		DurationMinutes: 30,
		Status:          StatusScheduled,
		PatientName:     "Jane Doe",
		PatientPhone:    "+18185551234",
		Reason:          "cleaning",
		CallSID:         "CA100",
		SessionID:       "sess-1",
	}

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(id, patientID, "2026-03-02", "10:00", start, start.Add(30*time.Minute),
			30, StatusScheduled, "Jane Doe", "+18185551234", "cleaning", "", "CA100", "sess-1").
		WillReturnRows(pgxmock.NewRows(apptCols).
			AddRow(apptRow(id, patientID, "2026-03-02", "10:00", start, StatusScheduled)...))

	repo := NewPostgresRepository(mock)
	stored, err := repo.Create(context.Background(), appt)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stored.ID != id || stored.Status != StatusScheduled {
		t.Fatalf("unexpected appointment: %+v", stored)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	start := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptCols).
			AddRow(apptRow(id, uuid.New(), "2026-03-02", "10:00", start, StatusConfirmed)...))

	repo := NewPostgresRepository(mock)
	got, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Status != StatusConfirmed || got.Date != "2026-03-02" {
		t.Fatalf("unexpected appointment: %+v", got)
	}
	if got.StartUTC.Location() != time.UTC {
		t.Fatal("start time not normalized to UTC")
	}
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptCols))

	repo := NewPostgresRepository(mock)
	if _, err := repo.GetByID(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	start := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	appt := &Appointment{
		ID:              id,
		Date:            "2026-03-02",
		Clock:           "10:30",
		StartUTC:        start,
		EndUTC:          start.Add(30 * time.Minute),
		DurationMinutes: 30,
		Status:          StatusConfirmed,
		Reason:          "cleaning",
		Notes:           "moved by caller",
	}

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "2026-03-02", "10:30", start, start.Add(30*time.Minute),
			30, StatusConfirmed, "cleaning", "moved by caller").
		WillReturnRows(pgxmock.NewRows(apptCols).
			AddRow(apptRow(id, uuid.New(), "2026-03-02", "10:30", start, StatusConfirmed)...))

	repo := NewPostgresRepository(mock)
	stored, err := repo.Update(context.Background(), appt)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if stored.Clock != "10:30" {
		t.Fatalf("unexpected appointment: %+v", stored)
	}
}

func TestRepositoryFindOverlappingPadsWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	buffer := 15 * time.Minute
	existingID := uuid.New()

	// The query window is the requested range padded by the buffer on both ends.
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(start.Add(-buffer), end.Add(buffer), uuid.Nil).
		WillReturnRows(pgxmock.NewRows(apptCols).
			AddRow(apptRow(existingID, uuid.New(), "2026-03-02", "14:00", start.Add(-20*time.Minute), StatusScheduled)...))

	repo := NewPostgresRepository(mock)
	overlapping, err := repo.FindOverlapping(context.Background(), start, end, buffer, uuid.Nil)
	if err != nil {
		t.Fatalf("find overlapping: %v", err)
	}
	if len(overlapping) != 1 || overlapping[0].ID != existingID {
		t.Fatalf("unexpected overlaps: %+v", overlapping)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRepositoryListByDateStatusFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs("2026-03-02", []string{"scheduled", "confirmed"}).
		WillReturnRows(pgxmock.NewRows(apptCols).
			AddRow(apptRow(uuid.New(), uuid.New(), "2026-03-02", "09:00", start, StatusScheduled)...).
			AddRow(apptRow(uuid.New(), uuid.New(), "2026-03-02", "10:00", start.Add(time.Hour), StatusConfirmed)...))

	repo := NewPostgresRepository(mock)
	appts, err := repo.ListByDate(context.Background(), "2026-03-02", []Status{StatusScheduled, StatusConfirmed})
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
}

func TestRepositoryListByPatientStorageError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	patientID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(patientID, []string{}).
		WillReturnError(errors.New("connection reset"))

	repo := NewPostgresRepository(mock)
	if _, err := repo.ListByPatient(context.Background(), patientID, nil); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
