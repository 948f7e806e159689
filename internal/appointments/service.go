package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-clinics/voice-scheduler/internal/observability/metrics"
	"github.com/brightline-clinics/voice-scheduler/internal/patients"
	"github.com/brightline-clinics/voice-scheduler/internal/phone"
	"github.com/brightline-clinics/voice-scheduler/internal/schedule"
	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

// Locker serializes booking writes for a given key. The Redis implementation
// lives in internal/calls; a nil Locker skips locking entirely.
//
// The lock is a mitigation only. Two instances can still race past the
// application-level conflict check; the exclusion constraint in migration
// 0002 is what actually prevents a double booking from being stored.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ServiceConfig carries the scheduling policy knobs.
type ServiceConfig struct {
	Hours              *schedule.BusinessHours
	DefaultDurationMin int
	BufferMinutes      int
	SlotStepMinutes    int
	DialPrefix         string
}

// Service is the single authority on whether an appointment write is legal.
type Service struct {
	repo     Repository
	patients patients.Repository
	locker   Locker
	cfg      ServiceConfig
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
	now      func() time.Time
}

// NewService wires the appointment service.
func NewService(repo Repository, patientRepo patients.Repository, cfg ServiceConfig, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if patientRepo == nil {
		panic("appointments: patient repository required")
	}
	if cfg.Hours == nil {
		panic("appointments: business hours required")
	}
	if cfg.DefaultDurationMin <= 0 {
		cfg.DefaultDurationMin = 30
	}
	if cfg.SlotStepMinutes <= 0 {
		cfg.SlotStepMinutes = 15
	}
	if cfg.DialPrefix == "" {
		cfg.DialPrefix = phone.DefaultDialPrefix
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		patients: patientRepo,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption customizes optional service collaborators.
type ServiceOption func(*Service)

// WithLocker enables best-effort booking serialization.
func WithLocker(l Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

// WithMetrics wires prometheus counters.
func WithMetrics(m *metrics.SchedulingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func (s *Service) buffer() time.Duration {
	return time.Duration(s.cfg.BufferMinutes) * time.Minute
}

// Create validates and persists a booking request.
//
// The caller's own phone backs a patient phone that fails to canonicalize
// (extension-qualified numbers and the like); if both are anonymous, the
// booking is keyed to a synthetic per-call patient.
func (s *Service) Create(ctx context.Context, input CreateInput, callerPhone string) (*Appointment, error) {
	if input.PatientName == "" {
		return nil, &ValidationError{Field: "patient_name", Message: "required"}
	}
	if input.Date == "" || input.Clock == "" {
		return nil, &ValidationError{Field: "date/time", Message: "required"}
	}
	duration := input.DurationMinutes
	if duration <= 0 {
		duration = s.cfg.DefaultDurationMin
	}

	canonical := phone.Normalize(input.PatientPhone, s.cfg.DialPrefix)
	if canonical == "" {
		canonical = phone.Normalize(callerPhone, s.cfg.DialPrefix)
	}

	var patient *patients.Patient
	var err error
	if canonical != "" {
		patient, err = s.patients.FindOrCreateByPhone(ctx, canonical, input.PatientName)
	} else {
		patient, err = s.patients.CreateAnonymous(ctx, input.CallSID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve patient: %v", ErrStorage, err)
	}

	if err := s.validateSlot(input.Date, input.Clock); err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}

	start, err := schedule.LocalToUTC(input.Date, input.Clock, s.cfg.Hours.Location())
	if err != nil {
		return nil, &ValidationError{Field: "date/time", Message: err.Error()}
	}
	end := schedule.EndTime(start, duration)

	appt := &Appointment{
		ID:              uuid.New(),
		PatientID:       patient.ID,
		Date:            input.Date,
		Clock:           input.Clock,
		StartUTC:        start,
		EndUTC:          end,
		DurationMinutes: duration,
		Status:          StatusScheduled,
		PatientName:     input.PatientName,
		PatientPhone:    canonical,
		Reason:          input.Reason,
		CallSID:         input.CallSID,
		SessionID:       input.SessionID,
	}

	var stored *Appointment
	write := func(ctx context.Context) error {
		if err := s.checkConflicts(ctx, start, end, uuid.Nil); err != nil {
			return err
		}
		var err error
		stored, err = s.repo.Create(ctx, appt)
		return err
	}
	if err := s.withBookingLock(ctx, input.Date, write); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.metrics.ObserveBooking("conflict")
		}
		return nil, err
	}

	// Counter bookkeeping is best-effort: losing an increment is acceptable,
	// failing a confirmed booking is not.
	if err := s.patients.IncrementAppointments(ctx, patient.ID); err != nil {
		s.logger.Warn("appointment counter increment failed",
			"patient_id", patient.ID, "error", err)
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment created",
		"appointment_id", stored.ID,
		"patient_id", patient.ID,
		"date", stored.Date,
		"time", stored.Clock,
	)
	return stored, nil
}

// Update applies a mutation to an existing appointment: a status transition,
// a reschedule to a new date/time, or both.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Status != nil && *input.Status != appt.Status {
		if err := CheckTransition(appt.Status, *input.Status); err != nil {
			return nil, err
		}
		appt.Status = *input.Status
	}

	newDate := appt.Date
	newClock := appt.Clock
	if input.Date != nil {
		newDate = *input.Date
	}
	if input.Clock != nil {
		newClock = *input.Clock
	}
	timeChanged := newDate != appt.Date || newClock != appt.Clock

	if timeChanged {
		if err := s.validateSlot(newDate, newClock); err != nil {
			return nil, err
		}
		start, err := schedule.LocalToUTC(newDate, newClock, s.cfg.Hours.Location())
		if err != nil {
			return nil, &ValidationError{Field: "date/time", Message: err.Error()}
		}
		appt.Date = newDate
		appt.Clock = newClock
		appt.StartUTC = start
		appt.EndUTC = schedule.EndTime(start, appt.DurationMinutes)
	}

	if input.Reason != nil {
		appt.Reason = *input.Reason
	}
	if input.Notes != nil {
		appt.Notes = *input.Notes
	}

	var stored *Appointment
	write := func(ctx context.Context) error {
		if timeChanged {
			if err := s.checkConflicts(ctx, appt.StartUTC, appt.EndUTC, appt.ID); err != nil {
				return err
			}
		}
		var err error
		stored, err = s.repo.Update(ctx, appt)
		return err
	}
	if err := s.withBookingLock(ctx, newDate, write); err != nil {
		return nil, err
	}

	s.logger.Info("appointment updated",
		"appointment_id", stored.ID,
		"status", stored.Status,
		"date", stored.Date,
		"time", stored.Clock,
	)
	return stored, nil
}

// Cancel soft-deletes an appointment. Cancelled and completed are terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled || appt.Status == StatusCompleted {
		return nil, &BusinessRuleError{
			Rule:    "terminal_status",
			Message: fmt.Sprintf("appointment is already %s and cannot be cancelled", appt.Status),
		}
	}

	appt.Status = StatusCancelled
	if reason != "" {
		note := "Cancelled: " + reason
		if appt.Notes != "" {
			note = appt.Notes + "\n" + note
		}
		appt.Notes = note
	}

	stored, err := s.repo.Update(ctx, appt)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveBooking("cancelled")
	s.logger.Info("appointment cancelled", "appointment_id", stored.ID, "reason", reason)
	return stored, nil
}

// AvailableSlots enumerates open start times on a civil date for the given
// duration. A bounded linear scan: a business day holds at most ~100
// candidates at 15-minute granularity.
func (s *Service) AvailableSlots(ctx context.Context, date string, durationMinutes int) ([]string, error) {
	if durationMinutes <= 0 {
		durationMinutes = s.cfg.DefaultDurationMin
	}
	day, err := time.ParseInLocation(schedule.DateLayout, date, s.cfg.Hours.Location())
	if err != nil {
		return nil, &ValidationError{Field: "date", Message: fmt.Sprintf("unrecognized date %q", date)}
	}
	window, open := s.cfg.Hours.WindowFor(day.Weekday())
	if !open {
		return []string{}, nil
	}

	booked, err := s.repo.ListByDate(ctx, date, []Status{StatusScheduled, StatusConfirmed})
	if err != nil {
		return nil, err
	}

	now := s.now()
	buffer := s.buffer()
	slots := []string{}
	for minutes := window.OpenMinutes; minutes+durationMinutes <= window.CloseMinutes; minutes += s.cfg.SlotStepMinutes {
		clock := fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
		start, err := schedule.LocalToUTC(date, clock, s.cfg.Hours.Location())
		if err != nil {
			return nil, err
		}
		if start.Before(now) {
			continue
		}
		end := schedule.EndTime(start, durationMinutes)
		conflicted := false
		for _, b := range booked {
			if schedule.HasConflict(start, end, b.StartUTC, b.EndUTC, buffer) {
				conflicted = true
				break
			}
		}
		if !conflicted {
			slots = append(slots, clock)
		}
	}
	return slots, nil
}

// FindByPhone lists a caller's appointments. An unparseable phone simply has
// no appointments; it is never an error.
func (s *Service) FindByPhone(ctx context.Context, rawPhone string, statuses []Status) ([]*Appointment, error) {
	canonical := phone.Normalize(rawPhone, s.cfg.DialPrefix)
	if canonical == "" {
		return []*Appointment{}, nil
	}
	patient, err := s.patients.FindByPhone(ctx, canonical)
	if err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			return []*Appointment{}, nil
		}
		return nil, fmt.Errorf("%w: find patient: %v", ErrStorage, err)
	}
	return s.repo.ListByPatient(ctx, patient.ID, statuses)
}

// FindOpenByPhoneAndDate locates the caller's scheduled or confirmed
// appointment on an exact date. The AI agent does not retain appointment IDs
// across conversation turns, so edit and cancel route through this lookup.
func (s *Service) FindOpenByPhoneAndDate(ctx context.Context, rawPhone, date string) (*Appointment, error) {
	open, err := s.FindByPhone(ctx, rawPhone, []Status{StatusScheduled, StatusConfirmed})
	if err != nil {
		return nil, err
	}
	for _, appt := range open {
		if appt.Date == date {
			return appt, nil
		}
	}
	return nil, ErrNotFound
}

// validateSlot runs the past-date and business-hours rules.
func (s *Service) validateSlot(date, clock string) error {
	past, err := schedule.IsPast(date, clock, s.cfg.Hours.Location(), s.now())
	if err != nil {
		return &ValidationError{Field: "date/time", Message: err.Error()}
	}
	if past {
		return &BusinessRuleError{
			Rule:    "past_datetime",
			Message: fmt.Sprintf("%s %s is in the past", date, clock),
		}
	}
	within, err := s.cfg.Hours.Within(date, clock)
	if err != nil {
		return &ValidationError{Field: "date/time", Message: err.Error()}
	}
	if !within {
		return &BusinessRuleError{
			Rule:    "outside_business_hours",
			Message: fmt.Sprintf("%s %s is outside business hours", date, clock),
		}
	}
	return nil
}

// checkConflicts rejects the write when the buffered window already holds a
// non-cancelled appointment.
func (s *Service) checkConflicts(ctx context.Context, start, end time.Time, excludeID uuid.UUID) error {
	overlapping, err := s.repo.FindOverlapping(ctx, start, end, s.buffer(), excludeID)
	if err != nil {
		return err
	}
	if len(overlapping) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(overlapping))
	for i, appt := range overlapping {
		ids[i] = appt.ID
	}
	return &ConflictError{IDs: ids}
}

func (s *Service) withBookingLock(ctx context.Context, date string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, "booking:"+date, fn)
}
