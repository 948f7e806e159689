package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brightline-clinics/voice-scheduler/internal/appointments"
	"github.com/brightline-clinics/voice-scheduler/internal/schedule"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

type appointmentLister interface {
	ListByDate(ctx context.Context, date string, statuses []appointments.Status) ([]*appointments.Appointment, error)
}

// AdminAppointmentsHandler serves the front desk's read-only day view.
type AdminAppointmentsHandler struct {
	repo   appointmentLister
	logger *logging.Logger
}

func NewAdminAppointmentsHandler(repo appointmentLister, logger *logging.Logger) *AdminAppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAppointmentsHandler{repo: repo, logger: logger}
}

// HandleList processes GET /admin/appointments?date=YYYY-MM-DD&status=...
func (h *AdminAppointmentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(schedule.DateLayout)
	}
	if _, err := time.Parse(schedule.DateLayout, date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	var statuses []appointments.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status := appointments.Status(s)
		if !status.Valid() {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		statuses = append(statuses, status)
	}

	appts, err := h.repo.ListByDate(r.Context(), date, statuses)
	if err != nil {
		h.logger.Error("admin appointment list failed", "date", date, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if appts == nil {
		appts = []*appointments.Appointment{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"date":         date,
		"appointments": appts,
	})
}
