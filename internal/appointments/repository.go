package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool surface the repository uses; pgxmock satisfies it in
// tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the appointment persistence boundary. The service is the
// only writer; handlers read through the service.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]*Appointment, error)
	ListByDate(ctx context.Context, date string, statuses []Status) ([]*Appointment, error)

	// FindOverlapping returns every non-cancelled appointment whose stored
	// [start,end] intersects [start-buffer, end+buffer]. excludeID skips the
	// appointment being edited; pass uuid.Nil otherwise.
	FindOverlapping(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID uuid.UUID) ([]*Appointment, error)
}
