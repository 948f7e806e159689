package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a caller identity keyed by canonical phone number. Anonymous
// callers get a synthetic per-call row with a nil phone instead.
type Patient struct {
	ID                uuid.UUID         `json:"id"`
	Phone             *string           `json:"phone,omitempty"`
	Name              string            `json:"name,omitempty"`
	Email             string            `json:"email,omitempty"`
	TotalAppointments int               `json:"total_appointments"`
	LastCallAt        *time.Time        `json:"last_call_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Anonymous reports whether this patient has no canonical phone key.
func (p *Patient) Anonymous() bool {
	return p.Phone == nil || *p.Phone == ""
}
