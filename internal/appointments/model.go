package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is a scheduled patient visit. The civil date/clock fields are
// the caller-facing representation; StartUTC/EndUTC are authoritative for
// conflict detection.
type Appointment struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"appointment_date"`
	Clock           string    `json:"appointment_time"`
	StartUTC        time.Time `json:"start_time_utc"`
	EndUTC          time.Time `json:"end_time_utc"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	PatientName     string    `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CallSID         string    `json:"call_sid,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateInput carries a booking request into the service. Date and Clock
// must already be in canonical form; the webhook router normalizes free text
// before it reaches this layer.
type CreateInput struct {
	PatientName     string
	PatientPhone    string
	Date            string
	Clock           string
	DurationMinutes int
	Reason          string
	CallSID         string
	SessionID       string
}

// UpdateInput carries a mutation request. Nil fields are left untouched.
type UpdateInput struct {
	Date   *string
	Clock  *string
	Status *Status
	Reason *string
	Notes  *string
}
