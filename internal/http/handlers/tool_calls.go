package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-clinics/voice-scheduler/internal/appointments"
	"github.com/brightline-clinics/voice-scheduler/internal/calls"
	"github.com/brightline-clinics/voice-scheduler/internal/observability/metrics"
	"github.com/brightline-clinics/voice-scheduler/internal/schedule"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

type appointmentService interface {
	Create(ctx context.Context, input appointments.CreateInput, callerPhone string) (*appointments.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, input appointments.UpdateInput) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointments.Appointment, error)
	AvailableSlots(ctx context.Context, date string, durationMinutes int) ([]string, error)
	FindOpenByPhoneAndDate(ctx context.Context, rawPhone, date string) (*appointments.Appointment, error)
}

// ToolCallHandler serves the AI agent's six tool callbacks. Every response is
// HTTP 200 with the outcome encoded in the body: the agent needs a speakable
// message, and a 5xx would make the provider retry mid-conversation.
type ToolCallHandler struct {
	service        appointmentService
	sessions       sessionStore
	callLog        callLog
	hours          *schedule.BusinessHours
	transferNumber string
	logger         *logging.Logger
	metrics        *metrics.SchedulingMetrics
	now            func() time.Time
}

type ToolCallConfig struct {
	Service        appointmentService
	Sessions       sessionStore
	CallLog        callLog
	Hours          *schedule.BusinessHours
	TransferNumber string
	Logger         *logging.Logger
	Metrics        *metrics.SchedulingMetrics
}

func NewToolCallHandler(cfg ToolCallConfig) *ToolCallHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Service == nil {
		panic("handlers: appointment service required")
	}
	if cfg.Hours == nil {
		panic("handlers: business hours required")
	}
	return &ToolCallHandler{
		service:        cfg.Service,
		sessions:       cfg.Sessions,
		callLog:        cfg.CallLog,
		hours:          cfg.Hours,
		transferNumber: cfg.TransferNumber,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

type toolResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	errInvalidRequest      = "invalid_request"
	errBookingFailed       = "booking_failed"
	errAppointmentNotFound = "appointment_not_found"
	errUpdateFailed        = "update_failed"
	errCancelFailed        = "cancel_failed"
	errTransferFailed      = "transfer_failed"
	errServerError         = "server_error"
)

type createRequest struct {
	SessionID       string `json:"session_id"`
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	PreferredDate   string `json:"preferred_date"`
	PreferredTime   string `json:"preferred_time"`
	ReasonForVisit  string `json:"reason_for_visit"`
	DurationMinutes int    `json:"duration_minutes"`
}

// HandleCreate processes POST /webhooks/tools/create-appointment.
func (h *ToolCallHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, "create", &req) {
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		h.fail(w, "create", errInvalidRequest, "I need the patient's full name to book an appointment.")
		return
	}
	date, ok := h.normalizeDate(w, "create", req.PreferredDate)
	if !ok {
		return
	}
	clock, err := schedule.NormalizeClock(req.PreferredTime)
	if err != nil {
		h.fail(w, "create", errInvalidRequest,
			fmt.Sprintf("I couldn't understand the time %q. Could you give it like 2:30 PM?", req.PreferredTime))
		return
	}

	sess := h.lookupSession(r.Context(), req.SessionID)
	callerPhone := ""
	callSID := ""
	if sess != nil {
		callerPhone = sess.CallerPhone
		callSID = sess.CallSID
	}
	appt, err := h.service.Create(r.Context(), appointments.CreateInput{
		PatientName:     req.FullName,
		PatientPhone:    req.PhoneNumber,
		Date:            date,
		Clock:           clock,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.ReasonForVisit,
		CallSID:         callSID,
		SessionID:       req.SessionID,
	}, callerPhone)
	if err != nil {
		h.failFromError(r.Context(), w, "create", errBookingFailed, err, date)
		return
	}
	if h.callLog != nil && appt.CallSID != "" {
		h.callLog.SetOutcome(r.Context(), appt.CallSID, "booked")
	}
	h.succeed(w, "create",
		fmt.Sprintf("You're all set. I've booked %s for %s at %s.", appt.PatientName, appt.Date, appt.Clock),
		map[string]any{
			"appointment_id": appt.ID,
			"date":           appt.Date,
			"time":           appt.Clock,
			"patient_name":   appt.PatientName,
		})
}

type checkRequest struct {
	PreferredDate   string `json:"preferred_date"`
	DurationMinutes int    `json:"duration_minutes"`
}

// HandleCheck processes POST /webhooks/tools/check-availability.
func (h *ToolCallHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, "check", &req) {
		return
	}
	date, ok := h.normalizeDate(w, "check", req.PreferredDate)
	if !ok {
		return
	}
	slots, err := h.service.AvailableSlots(r.Context(), date, req.DurationMinutes)
	if err != nil {
		h.failFromError(r.Context(), w, "check", errServerError, err, date)
		return
	}
	msg := fmt.Sprintf("We have %d open times on %s.", len(slots), date)
	if len(slots) == 0 {
		msg = fmt.Sprintf("I'm sorry, we're fully booked or closed on %s. Would another day work?", date)
	}
	h.succeed(w, "check", msg, map[string]any{
		"date":            date,
		"available_slots": slots,
	})
}

type editRequest struct {
	PhoneNumber     string `json:"phone_number"`
	AppointmentDate string `json:"appointment_date"`
	NewDate         string `json:"new_date"`
	NewTime         string `json:"new_time"`
}

// HandleEdit processes POST /webhooks/tools/edit-appointment. The agent does
// not retain appointment IDs across turns, so the record is located by
// canonical phone plus exact date.
func (h *ToolCallHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !h.decode(w, r, "edit", &req) {
		return
	}
	if req.NewDate == "" && req.NewTime == "" {
		h.fail(w, "edit", errInvalidRequest, "What would you like to change the appointment to?")
		return
	}
	date, ok := h.normalizeDate(w, "edit", req.AppointmentDate)
	if !ok {
		return
	}
	appt, err := h.service.FindOpenByPhoneAndDate(r.Context(), req.PhoneNumber, date)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			h.fail(w, "edit", errAppointmentNotFound,
				fmt.Sprintf("I couldn't find an open appointment on %s for that phone number.", date))
			return
		}
		h.failFromError(r.Context(), w, "edit", errUpdateFailed, err, date)
		return
	}

	input := appointments.UpdateInput{}
	if req.NewDate != "" {
		newDate, ok := h.normalizeDate(w, "edit", req.NewDate)
		if !ok {
			return
		}
		input.Date = &newDate
	}
	if req.NewTime != "" {
		newClock, err := schedule.NormalizeClock(req.NewTime)
		if err != nil {
			h.fail(w, "edit", errInvalidRequest,
				fmt.Sprintf("I couldn't understand the time %q. Could you give it like 2:30 PM?", req.NewTime))
			return
		}
		input.Clock = &newClock
	}

	updated, err := h.service.Update(r.Context(), appt.ID, input)
	if err != nil {
		h.failFromError(r.Context(), w, "edit", errUpdateFailed, err, date)
		return
	}
	h.succeed(w, "edit",
		fmt.Sprintf("Done. Your appointment is now on %s at %s.", updated.Date, updated.Clock),
		map[string]any{
			"appointment_id": updated.ID,
			"date":           updated.Date,
			"time":           updated.Clock,
		})
}

type cancelRequest struct {
	PhoneNumber     string `json:"phone_number"`
	AppointmentDate string `json:"appointment_date"`
	Reason          string `json:"reason"`
}

// HandleCancel processes POST /webhooks/tools/cancel-appointment.
func (h *ToolCallHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decode(w, r, "cancel", &req) {
		return
	}
	date, ok := h.normalizeDate(w, "cancel", req.AppointmentDate)
	if !ok {
		return
	}
	appt, err := h.service.FindOpenByPhoneAndDate(r.Context(), req.PhoneNumber, date)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			h.fail(w, "cancel", errAppointmentNotFound,
				fmt.Sprintf("I couldn't find an open appointment on %s for that phone number.", date))
			return
		}
		h.failFromError(r.Context(), w, "cancel", errCancelFailed, err, date)
		return
	}
	cancelled, err := h.service.Cancel(r.Context(), appt.ID, req.Reason)
	if err != nil {
		h.failFromError(r.Context(), w, "cancel", errCancelFailed, err, date)
		return
	}
	h.succeed(w, "cancel",
		fmt.Sprintf("Your appointment on %s at %s has been cancelled.", cancelled.Date, cancelled.Clock),
		map[string]any{"appointment_id": cancelled.ID})
}

type transferRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// HandleTransfer processes POST /webhooks/tools/transfer-call.
func (h *ToolCallHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, "transfer", &req) {
		return
	}
	if h.transferNumber == "" {
		h.fail(w, "transfer", errTransferFailed,
			"I'm sorry, transferring isn't available right now. Can I help you with scheduling instead?")
		return
	}
	if sess := h.lookupSession(r.Context(), req.SessionID); sess != nil && h.callLog != nil {
		h.callLog.SetOutcome(r.Context(), sess.CallSID, "transferred")
	}
	h.succeed(w, "transfer", "Transferring you to our front desk now.", map[string]any{
		"transfer_number": h.transferNumber,
	})
}

type endRequest struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
}

// HandleEnd processes POST /webhooks/tools/end-call.
func (h *ToolCallHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if !h.decode(w, r, "end", &req) {
		return
	}
	if req.SessionID == "" {
		h.fail(w, "end", errInvalidRequest, "Missing session identifier.")
		return
	}
	outcome := req.Outcome
	if outcome == "" {
		outcome = "ended_by_agent"
	}
	sess := h.lookupSession(r.Context(), req.SessionID)
	if h.sessions != nil {
		if err := h.sessions.End(r.Context(), req.SessionID, outcome); err != nil {
			h.logger.Warn("session end failed", "session_id", req.SessionID, "error", err)
		}
	}
	if sess != nil && h.callLog != nil {
		h.callLog.SetOutcome(r.Context(), sess.CallSID, outcome)
	}
	h.succeed(w, "end", "Thanks for calling. Goodbye.", nil)
}

// ----- shared plumbing -----

func (h *ToolCallHandler) decode(w http.ResponseWriter, r *http.Request, action string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.fail(w, action, errInvalidRequest, "I'm sorry, I didn't catch that. Could you repeat it?")
		return false
	}
	return true
}

func (h *ToolCallHandler) normalizeDate(w http.ResponseWriter, action, raw string) (string, bool) {
	date, err := schedule.NormalizeDate(raw, h.hours.Location(), h.now())
	if err != nil {
		h.fail(w, action, errInvalidRequest,
			fmt.Sprintf("I couldn't understand the date %q. Could you give it like March 2nd or 2026-03-02?", raw))
		return "", false
	}
	return date, true
}

// lookupSession recovers the call correlation for a tool call. A missing or
// expired session is not fatal; the booking just loses its caller fallback.
func (h *ToolCallHandler) lookupSession(ctx context.Context, sessionID string) *calls.Session {
	if sessionID == "" || h.sessions == nil {
		return nil
	}
	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		h.logger.Warn("session lookup failed", "session_id", sessionID, "error", err)
		return nil
	}
	return sess
}

// failFromError translates domain errors into speakable body-level failures.
func (h *ToolCallHandler) failFromError(ctx context.Context, w http.ResponseWriter, action, fallbackCode string, err error, date string) {
	var valErr *appointments.ValidationError
	var ruleErr *appointments.BusinessRuleError
	var conflict *appointments.ConflictError
	switch {
	case errors.As(err, &valErr):
		h.fail(w, action, errInvalidRequest, valErr.Message)
	case errors.As(err, &conflict):
		slots, serr := h.service.AvailableSlots(ctx, date, 0)
		msg := "That time is already taken."
		if serr == nil && len(slots) > 0 {
			msg = fmt.Sprintf("That time is already taken. On %s we still have %s available.", date, strings.Join(slots, ", "))
		}
		h.fail(w, action, fallbackCode, msg)
	case errors.As(err, &ruleErr):
		h.fail(w, action, fallbackCode, ruleErr.Message)
	case errors.Is(err, appointments.ErrNotFound):
		h.fail(w, action, errAppointmentNotFound, "I couldn't find that appointment.")
	default:
		h.logger.Error("tool call failed", "action", action, "error", err)
		h.fail(w, action, errServerError, "Something went wrong on our end. Please try again in a moment.")
	}
}

func (h *ToolCallHandler) succeed(w http.ResponseWriter, action, message string, data any) {
	h.metrics.ObserveToolCall(action, "success")
	writeToolJSON(w, toolResponse{Success: true, Message: message, Data: data})
}

func (h *ToolCallHandler) fail(w http.ResponseWriter, action, code, message string) {
	h.metrics.ObserveToolCall(action, "failure")
	writeToolJSON(w, toolResponse{Success: false, Message: message, Error: code})
}

func writeToolJSON(w http.ResponseWriter, resp toolResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
