package patients

import (
	"context"

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

// Repository is the patient persistence boundary consumed by the
// appointment service and the webhook handlers.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByPhone(ctx context.Context, phone string) (*Patient, error)
	FindOrCreateByPhone(ctx context.Context, phone, name string) (*Patient, error)
	CreateAnonymous(ctx context.Context, callSID string) (*Patient, error)
	IncrementAppointments(ctx context.Context, id uuid.UUID) error
	TouchLastCall(ctx context.Context, id uuid.UUID) error
}
