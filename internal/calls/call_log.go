package calls

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

// PgxPool is the subset of pgxpool.Pool the call log uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CallLogEntry is one telephony call's durable record.
type CallLogEntry struct {
	ID          uuid.UUID  `json:"id"`
	CallSID     string     `json:"call_sid"`
	SessionID   string     `json:"session_id"`
	CallerPhone string     `json:"caller_phone"`
	Status      string     `json:"status"`
	Outcome     string     `json:"outcome"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CallLogStore writes call records to Postgres. Every write is best-effort:
// failures are logged and swallowed so a dead analytics table can never take
// down live call handling.
type CallLogStore struct {
	pool   PgxPool
	logger *logging.Logger
}

// NewCallLogStore creates a call log backed by Postgres.
func NewCallLogStore(pool PgxPool, logger *logging.Logger) *CallLogStore {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CallLogStore{pool: pool, logger: logger}
}

// Record inserts a row for a newly answered call. Re-recording the same call
// SID updates the session correlation instead of duplicating the row.
func (s *CallLogStore) Record(ctx context.Context, entry CallLogEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_logs (id, call_sid, session_id, caller_phone, status, outcome, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (call_sid) DO UPDATE
		SET session_id = EXCLUDED.session_id,
		    status = EXCLUDED.status,
		    updated_at = now()
	`, entry.ID, entry.CallSID, entry.SessionID, entry.CallerPhone, entry.Status, entry.Outcome, entry.StartedAt)
	if err != nil {
		s.logger.Warn("call log insert failed", "call_sid", entry.CallSID, "error", err)
	}
}

// UpdateStatus advances a call's lifecycle status from the telephony status
// callback. Terminal statuses also stamp ended_at.
func (s *CallLogStore) UpdateStatus(ctx context.Context, callSID, status string) {
	terminal := status == "completed" || status == "failed" || status == "busy" || status == "no-answer"
	var err error
	if terminal {
		_, err = s.pool.Exec(ctx, `
			UPDATE call_logs
			SET status = $2, ended_at = now(), updated_at = now()
			WHERE call_sid = $1
		`, callSID, status)
	} else {
		_, err = s.pool.Exec(ctx, `
			UPDATE call_logs
			SET status = $2, updated_at = now()
			WHERE call_sid = $1
		`, callSID, status)
	}
	if err != nil {
		s.logger.Warn("call log status update failed", "call_sid", callSID, "status", status, "error", err)
	}
}

// SetOutcome records how the conversation ended (booked, transferred,
// ended_by_agent and the like).
func (s *CallLogStore) SetOutcome(ctx context.Context, callSID, outcome string) {
	_, err := s.pool.Exec(ctx, `
		UPDATE call_logs
		SET outcome = $2, updated_at = now()
		WHERE call_sid = $1
	`, callSID, outcome)
	if err != nil {
		s.logger.Warn("call log outcome update failed", "call_sid", callSID, "outcome", outcome, "error", err)
	}
}
