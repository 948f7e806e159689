package patients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const patientColumns = `id, phone, name, email, total_appointments, last_call_at, metadata, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var metadata []byte
	err := row.Scan(
		&p.ID,
		&p.Phone,
		&p.Name,
		&p.Email,
		&p.TotalAppointments,
		&p.LastCallAt,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("patients: decode metadata: %w", err)
		}
	}
	return &p, nil
}

// GetByID fetches a patient by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("patients: select by id: %w", err)
	}
	return p, nil
}

// FindByPhone fetches a patient by canonical phone.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE phone = $1
	`, phone)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("patients: select by phone: %w", err)
	}
	return p, nil
}

// FindOrCreateByPhone upserts the patient row keyed by canonical phone. A
// non-empty name fills in a blank stored name but never overwrites one the
// patient already gave us.
func (r *PostgresRepository) FindOrCreateByPhone(ctx context.Context, phone, name string) (*Patient, error) {
	if phone == "" {
		return nil, ErrMissingPhone
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, phone, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO UPDATE
		SET name = CASE WHEN patients.name = '' THEN EXCLUDED.name ELSE patients.name END,
		    updated_at = now()
		RETURNING `+patientColumns+`
	`, uuid.New(), phone, name)
	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("patients: upsert by phone: %w", err)
	}
	return p, nil
}

// CreateAnonymous inserts a synthetic per-call identity for a withheld
// caller ID. The originating call SID is kept in metadata so the row can be
// traced back to its call log entry.
func (r *PostgresRepository) CreateAnonymous(ctx context.Context, callSID string) (*Patient, error) {
	metadata, err := json.Marshal(map[string]string{"call_sid": callSID, "anonymous": "true"})
	if err != nil {
		return nil, fmt.Errorf("patients: encode metadata: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, phone, name, metadata)
		VALUES ($1, NULL, '', $2)
		RETURNING `+patientColumns+`
	`, uuid.New(), metadata)
	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("patients: insert anonymous: %w", err)
	}
	return p, nil
}

// IncrementAppointments bumps the booking counter atomically.
func (r *PostgresRepository) IncrementAppointments(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET total_appointments = total_appointments + 1,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("patients: increment appointments: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastCall records the most recent inbound call from this patient.
func (r *PostgresRepository) TouchLastCall(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients
		SET last_call_at = now(),
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("patients: touch last call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
