package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, appointment_date, appointment_time,
	start_time_utc, end_time_utc, duration_minutes, status, patient_name,
	patient_phone, reason, notes, call_sid, session_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Date,
		&a.Clock,
		&a.StartUTC,
		&a.EndUTC,
		&a.DurationMinutes,
		&a.Status,
		&a.PatientName,
		&a.PatientPhone,
		&a.Reason,
		&a.Notes,
		&a.CallSID,
		&a.SessionID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.StartUTC = a.StartUTC.UTC()
	a.EndUTC = a.EndUTC.UTC()
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts a new appointment row and returns the stored record.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, appointment_date, appointment_time,
			start_time_utc, end_time_utc, duration_minutes, status,
			patient_name, patient_phone, reason, notes, call_sid, session_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+appointmentColumns+`
	`,
		appt.ID,
		appt.PatientID,
		appt.Date,
		appt.Clock,
		appt.StartUTC,
		appt.EndUTC,
		appt.DurationMinutes,
		appt.Status,
		appt.PatientName,
		appt.PatientPhone,
		appt.Reason,
		appt.Notes,
		appt.CallSID,
		appt.SessionID,
	)
	stored, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("%w: insert: %v", ErrStorage, err)
	}
	return stored, nil
}

// GetByID fetches one appointment.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: select by id: %v", ErrStorage, err)
	}
	return a, nil
}

// Update rewrites the mutable columns of an existing row.
func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    start_time_utc = $4,
		    end_time_utc = $5,
		    duration_minutes = $6,
		    status = $7,
		    reason = $8,
		    notes = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`,
		appt.ID,
		appt.Date,
		appt.Clock,
		appt.StartUTC,
		appt.EndUTC,
		appt.DurationMinutes,
		appt.Status,
		appt.Reason,
		appt.Notes,
	)
	stored, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update: %v", ErrStorage, err)
	}
	return stored, nil
}

// ListByPatient returns a patient's appointments, optionally filtered by
// status, most recent first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, statuses []Status) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY start_time_utc DESC
	`, patientID, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("%w: list by patient: %v", ErrStorage, err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list by patient: %v", ErrStorage, err)
	}
	return out, nil
}

// ListByDate returns appointments on a civil date, optionally filtered by
// status, in start order.
func (r *PostgresRepository) ListByDate(ctx context.Context, date string, statuses []Status) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY start_time_utc ASC
	`, date, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("%w: list by date: %v", ErrStorage, err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list by date: %v", ErrStorage, err)
	}
	return out, nil
}

// FindOverlapping runs the buffered UTC-range overlap query. The padding is
// applied to the stored rows' side, matching schedule.HasConflict.
func (r *PostgresRepository) FindOverlapping(ctx context.Context, start, end time.Time, buffer time.Duration, excludeID uuid.UUID) ([]*Appointment, error) {
	windowStart := start.Add(-buffer)
	windowEnd := end.Add(buffer)
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
		  AND start_time_utc < $2
		  AND end_time_utc > $1
		  AND id <> $3
		ORDER BY start_time_utc ASC
	`, windowStart, windowEnd, excludeID)
	if err != nil {
		return nil, fmt.Errorf("%w: find overlapping: %v", ErrStorage, err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: find overlapping: %v", ErrStorage, err)
	}
	return out, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
