package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/brightline-clinics/voice-scheduler/internal/appointments"
	"github.com/brightline-clinics/voice-scheduler/internal/calls"
	"github.com/brightline-clinics/voice-scheduler/internal/schedule"
)

// ----- fakes -----

type fakeService struct {
	created     *appointments.Appointment
	createErr   error
	updated     *appointments.Appointment
	updateErr   error
	cancelled   *appointments.Appointment
	cancelErr   error
	slots       []string
	slotsErr    error
	found       *appointments.Appointment
	findErr     error
	lastCaller  string
	lastInput   appointments.CreateInput
	cancelCalls int
}

func (f *fakeService) Create(_ context.Context, input appointments.CreateInput, callerPhone string) (*appointments.Appointment, error) {
	f.lastInput = input
	f.lastCaller = callerPhone
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeService) Update(_ context.Context, _ uuid.UUID, _ appointments.UpdateInput) (*appointments.Appointment, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updated, nil
}

func (f *fakeService) Cancel(_ context.Context, _ uuid.UUID, _ string) (*appointments.Appointment, error) {
	f.cancelCalls++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return f.cancelled, nil
}

func (f *fakeService) AvailableSlots(_ context.Context, _ string, _ int) ([]string, error) {
	return f.slots, f.slotsErr
}

func (f *fakeService) FindOpenByPhoneAndDate(_ context.Context, _, _ string) (*appointments.Appointment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.found, nil
}

type fakeSessions struct {
	sessions map[string]*calls.Session
	ended    map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*calls.Session{}, ended: map[string]string{}}
}

func (f *fakeSessions) Save(_ context.Context, sess *calls.Session) error {
	f.sessions[sess.SessionID] = sess
	return nil
}

func (f *fakeSessions) Get(_ context.Context, sessionID string) (*calls.Session, error) {
	return f.sessions[sessionID], nil
}

func (f *fakeSessions) End(_ context.Context, sessionID, outcome string) error {
	f.ended[sessionID] = outcome
	return nil
}

type fakeCallLog struct {
	recorded []calls.CallLogEntry
	statuses map[string]string
	outcomes map[string]string
}

func newFakeCallLog() *fakeCallLog {
	return &fakeCallLog{statuses: map[string]string{}, outcomes: map[string]string{}}
}

func (f *fakeCallLog) Record(_ context.Context, entry calls.CallLogEntry) {
	f.recorded = append(f.recorded, entry)
}

func (f *fakeCallLog) UpdateStatus(_ context.Context, callSID, status string) {
	f.statuses[callSID] = status
}

func (f *fakeCallLog) SetOutcome(_ context.Context, callSID, outcome string) {
	f.outcomes[callSID] = outcome
}

// ----- helpers -----

func testHours(t *testing.T) *schedule.BusinessHours {
	t.Helper()
	hours, err := schedule.ParseBusinessHours("Mon-Fri=09:00-18:00", "UTC")
	if err != nil {
		t.Fatalf("parse hours: %v", err)
	}
	return hours
}

func newToolHandler(t *testing.T, svc *fakeService, sessions *fakeSessions, log *fakeCallLog) *ToolCallHandler {
	t.Helper()
	return NewToolCallHandler(ToolCallConfig{
		Service:        svc,
		Sessions:       sessions,
		CallLog:        log,
		Hours:          testHours(t),
		TransferNumber: "+18185550000",
	})
}

func postTool(t *testing.T, handler http.HandlerFunc, body any) (*httptest.ResponseRecorder, toolResponse) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tools/x", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)

	var resp toolResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return rec, resp
}

func sampleAppointment() *appointments.Appointment {
	return &appointments.Appointment{
		ID:          uuid.New(),
		Date:        "2026-03-02",
		Clock:       "10:00",
		Status:      appointments.StatusScheduled,
		PatientName: "Jane Doe",
		CallSID:     "CA100",
	}
}

// ----- tests -----

func TestCreateToolHappyPath(t *testing.T) {
	svc := &fakeService{created: sampleAppointment()}
	sessions := newFakeSessions()
	sessions.sessions["sess-1"] = &calls.Session{SessionID: "sess-1", CallSID: "CA100", CallerPhone: "+18185551234"}
	log := newFakeCallLog()
	h := newToolHandler(t, svc, sessions, log)

	rec, resp := postTool(t, h.HandleCreate, map[string]any{
		"session_id":       "sess-1",
		"full_name":        "Jane Doe",
		"phone_number":     "818 555 1234",
		"preferred_date":   "2026-03-02",
		"preferred_time":   "10:00 AM",
		"reason_for_visit": "cleaning",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if svc.lastInput.Clock != "10:00" {
		t.Fatalf("time not normalized: %q", svc.lastInput.Clock)
	}
	if svc.lastCaller != "+18185551234" {
		t.Fatalf("caller phone not recovered from session: %q", svc.lastCaller)
	}
	if svc.lastInput.CallSID != "CA100" {
		t.Fatalf("call sid not recovered from session: %q", svc.lastInput.CallSID)
	}
	if log.outcomes["CA100"] != "booked" {
		t.Fatalf("booking outcome not recorded: %+v", log.outcomes)
	}
	data := resp.Data.(map[string]any)
	if data["date"] != "2026-03-02" || data["time"] != "10:00" {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestCreateToolNormalizesFreeTextDate(t *testing.T) {
	svc := &fakeService{created: sampleAppointment()}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCreate, map[string]any{
		"full_name":      "Jane Doe",
		"preferred_date": "March 2, 2026",
		"preferred_time": "2:30 PM",
	})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if svc.lastInput.Date != "2026-03-02" {
		t.Fatalf("date not normalized: %q", svc.lastInput.Date)
	}
	if svc.lastInput.Clock != "14:30" {
		t.Fatalf("time not normalized: %q", svc.lastInput.Clock)
	}
}

func TestCreateToolRejectsGarbageTime(t *testing.T) {
	svc := &fakeService{created: sampleAppointment()}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	rec, resp := postTool(t, h.HandleCreate, map[string]any{
		"full_name":      "Jane Doe",
		"preferred_date": "2026-03-02",
		"preferred_time": "whenever",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validation failures must still be 200, got %d", rec.Code)
	}
	if resp.Success || resp.Error != errInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", resp)
	}
}

func TestCreateToolRequiresName(t *testing.T) {
	h := newToolHandler(t, &fakeService{}, newFakeSessions(), newFakeCallLog())
	_, resp := postTool(t, h.HandleCreate, map[string]any{
		"preferred_date": "2026-03-02",
		"preferred_time": "10:00",
	})
	if resp.Success || resp.Error != errInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", resp)
	}
}

func TestCreateToolConflictSuggestsSlots(t *testing.T) {
	svc := &fakeService{
		createErr: &appointments.ConflictError{IDs: []uuid.UUID{uuid.New()}},
		slots:     []string{"11:00", "11:15"},
	}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	rec, resp := postTool(t, h.HandleCreate, map[string]any{
		"full_name":      "Jane Doe",
		"preferred_date": "2026-03-02",
		"preferred_time": "10:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("conflicts must still be 200, got %d", rec.Code)
	}
	if resp.Success || resp.Error != errBookingFailed {
		t.Fatalf("expected booking_failed, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "11:00") {
		t.Fatalf("expected alternative slots in message, got %q", resp.Message)
	}
}

func TestCreateToolBusinessRuleFailure(t *testing.T) {
	svc := &fakeService{
		createErr: &appointments.BusinessRuleError{Rule: "past_datetime", Message: "2026-03-02 10:00 is in the past"},
	}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCreate, map[string]any{
		"full_name":      "Jane Doe",
		"preferred_date": "2026-03-02",
		"preferred_time": "10:00",
	})
	if resp.Success || resp.Error != errBookingFailed {
		t.Fatalf("expected booking_failed, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "in the past") {
		t.Fatalf("expected rule message, got %q", resp.Message)
	}
}

func TestCheckToolReturnsSlots(t *testing.T) {
	svc := &fakeService{slots: []string{"09:00", "09:15", "09:30"}}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCheck, map[string]any{"preferred_date": "2026-03-02"})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	data := resp.Data.(map[string]any)
	slots := data["available_slots"].([]any)
	if len(slots) != 3 || slots[0] != "09:00" {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

func TestCheckToolEmptyDay(t *testing.T) {
	svc := &fakeService{slots: []string{}}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCheck, map[string]any{"preferred_date": "2026-03-08"})
	if !resp.Success {
		t.Fatalf("an empty day is still a successful lookup, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "fully booked or closed") {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestEditToolNotFound(t *testing.T) {
	svc := &fakeService{findErr: appointments.ErrNotFound}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	rec, resp := postTool(t, h.HandleEdit, map[string]any{
		"phone_number":     "8185551234",
		"appointment_date": "2026-03-02",
		"new_time":         "11:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("not-found must still be 200, got %d", rec.Code)
	}
	if resp.Success || resp.Error != errAppointmentNotFound {
		t.Fatalf("expected appointment_not_found, got %+v", resp)
	}
}

func TestEditToolReschedules(t *testing.T) {
	updated := sampleAppointment()
	updated.Clock = "11:00"
	svc := &fakeService{found: sampleAppointment(), updated: updated}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleEdit, map[string]any{
		"phone_number":     "8185551234",
		"appointment_date": "2026-03-02",
		"new_time":         "11:00 AM",
	})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "11:00") {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestEditToolRequiresChange(t *testing.T) {
	h := newToolHandler(t, &fakeService{}, newFakeSessions(), newFakeCallLog())
	_, resp := postTool(t, h.HandleEdit, map[string]any{
		"phone_number":     "8185551234",
		"appointment_date": "2026-03-02",
	})
	if resp.Success || resp.Error != errInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", resp)
	}
}

func TestCancelTool(t *testing.T) {
	cancelled := sampleAppointment()
	cancelled.Status = appointments.StatusCancelled
	svc := &fakeService{found: sampleAppointment(), cancelled: cancelled}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCancel, map[string]any{
		"phone_number":     "8185551234",
		"appointment_date": "2026-03-02",
		"reason":           "feeling better",
	})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", svc.cancelCalls)
	}
}

func TestCancelToolTerminal(t *testing.T) {
	svc := &fakeService{
		found:     sampleAppointment(),
		cancelErr: &appointments.BusinessRuleError{Rule: "terminal_status", Message: "appointment is already cancelled and cannot be cancelled"},
	}
	h := newToolHandler(t, svc, newFakeSessions(), newFakeCallLog())

	_, resp := postTool(t, h.HandleCancel, map[string]any{
		"phone_number":     "8185551234",
		"appointment_date": "2026-03-02",
	})
	if resp.Success || resp.Error != errCancelFailed {
		t.Fatalf("expected cancel_failed, got %+v", resp)
	}
}

func TestTransferTool(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["sess-1"] = &calls.Session{SessionID: "sess-1", CallSID: "CA100"}
	log := newFakeCallLog()
	h := newToolHandler(t, &fakeService{}, sessions, log)

	_, resp := postTool(t, h.HandleTransfer, map[string]any{"session_id": "sess-1"})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	data := resp.Data.(map[string]any)
	if data["transfer_number"] != "+18185550000" {
		t.Fatalf("unexpected transfer number: %+v", data)
	}
	if log.outcomes["CA100"] != "transferred" {
		t.Fatalf("transfer outcome not recorded: %+v", log.outcomes)
	}
}

func TestTransferToolUnconfigured(t *testing.T) {
	h := NewToolCallHandler(ToolCallConfig{
		Service:  &fakeService{},
		Sessions: newFakeSessions(),
		Hours:    testHours(t),
	})
	_, resp := postTool(t, h.HandleTransfer, map[string]any{})
	if resp.Success || resp.Error != errTransferFailed {
		t.Fatalf("expected transfer_failed, got %+v", resp)
	}
}

func TestEndCallTool(t *testing.T) {
	sessions := newFakeSessions()
	sessions.sessions["sess-1"] = &calls.Session{SessionID: "sess-1", CallSID: "CA100"}
	log := newFakeCallLog()
	h := newToolHandler(t, &fakeService{}, sessions, log)

	_, resp := postTool(t, h.HandleEnd, map[string]any{"session_id": "sess-1", "outcome": "booked"})
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if sessions.ended["sess-1"] != "booked" {
		t.Fatalf("session not ended: %+v", sessions.ended)
	}
	if log.outcomes["CA100"] != "booked" {
		t.Fatalf("outcome not recorded: %+v", log.outcomes)
	}
}

func TestToolMalformedJSON(t *testing.T) {
	h := newToolHandler(t, &fakeService{}, newFakeSessions(), newFakeCallLog())
	req := httptest.NewRequest(http.MethodPost, "/webhooks/tools/create-appointment", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("malformed bodies must still be 200, got %d", rec.Code)
	}
	var resp toolResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || resp.Error != errInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", resp)
	}
}
