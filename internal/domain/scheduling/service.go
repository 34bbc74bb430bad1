package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/internal/domain/directory"
	"github.com/clinic/booking/internal/platform/lock"
	"github.com/clinic/booking/internal/platform/metrics"
)

var tracer = otel.Tracer("booking/scheduling")

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	DefaultWindowDays        int
	DefaultMinutesPerPatient int
	MaxRetries               int
	// Location is the clinic time zone used to decide what "today" is.
	Location *time.Location
	Now      func() time.Time
	Locker   lock.Locker
	Metrics  *metrics.BookingMetrics
	Logger   zerolog.Logger
}

// Service is the booking entry point: window check, session resolution,
// allocation and status transitions.
type Service struct {
	resolver     *Resolver
	window       *WindowPolicy
	allocator    *Allocator
	ledger       *Ledger
	appointments AppointmentRepository
	directory    Directory
	metrics      *metrics.BookingMetrics
	logger       zerolog.Logger
	location     *time.Location
	now          func() time.Time
}

func NewService(rules RuleSource, exceptions ExceptionSource, appts AppointmentRepository, dir Directory, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		resolver:     NewResolver(rules, exceptions, opts.DefaultMinutesPerPatient),
		window:       NewWindowPolicy(dir, opts.DefaultWindowDays),
		allocator:    NewAllocator(appts, opts.Locker, opts.Metrics, opts.Logger, opts.MaxRetries),
		ledger:       NewLedger(appts, opts.Metrics, opts.Logger, opts.MaxRetries),
		appointments: appts,
		directory:    dir,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		location:     opts.Location,
		now:          opts.Now,
	}
}

// Today is the current civil date in the configured time zone.
func (s *Service) Today() time.Time {
	y, m, d := s.now().In(s.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResolveSessions returns the bookable sessions for the date. It reads only
// and does not consult the booking window.
func (s *Service) ResolveSessions(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]ResolvedSession, error) {
	ctx, span := tracer.Start(ctx, "scheduling.resolve_sessions")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", doctorID.String()),
		attribute.String("clinic_id", clinicID.String()),
		attribute.String("date", availability.DateOf(date).Format(availability.DateLayout)),
	)
	sessions, err := s.resolver.Resolve(ctx, doctorID, clinicID, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	return sessions, nil
}

// SessionAvailability is ResolveSessions plus the live booking count of each
// session.
func (s *Service) SessionAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]SessionAvailability, error) {
	sessions, err := s.ResolveSessions(ctx, doctorID, clinicID, date)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(sessions))
	for i, sess := range sessions {
		keys[i] = sess.Key
	}
	tallies, err := s.appointments.TallySessions(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("tally sessions: %w", err)
	}
	out := make([]SessionAvailability, len(sessions))
	for i, sess := range sessions {
		t := tallies[sess.Key]
		remaining := sess.EffectiveMaxPatients - int(t.Active)
		if remaining < 0 {
			remaining = 0
		}
		out[i] = SessionAvailability{
			ResolvedSession: sess,
			Booked:          int(t.Active),
			Remaining:       remaining,
			NextNumber:      int(t.LastNumber) + 1,
		}
	}
	return out, nil
}

// CheckBookingWindow fails with ErrDateNotBookable when date cannot be
// booked today.
func (s *Service) CheckBookingWindow(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) (BookingWindow, error) {
	return s.window.Check(ctx, doctorID, clinicID, date, s.Today())
}

// BookingWindow returns today's bookable range without checking a date.
func (s *Service) BookingWindow(ctx context.Context, doctorID, clinicID uuid.UUID) (BookingWindow, error) {
	return s.window.Window(ctx, doctorID, clinicID, s.Today())
}

// AllocateAppointment books the next number in the session named by the
// request. The session is re-resolved here so a late exception is honored.
func (s *Service) AllocateAppointment(ctx context.Context, req BookingRequest) (alloc *Allocation, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.allocate")
	defer span.End()
	span.SetAttributes(attribute.String("session_key", req.SessionKey))
	started := time.Now()
	defer func() { s.observe(started, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := ParseSessionKey(req.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, req.SessionKey)
	}
	if _, err := s.CheckBookingWindow(ctx, key.DoctorID, key.ClinicID, key.Date); err != nil {
		return nil, err
	}
	session, err := s.resolver.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	fees, err := s.fees(ctx, key.DoctorID, key.ClinicID)
	if err != nil {
		return nil, err
	}

	alloc, err = s.allocator.Allocate(ctx, session, req.Patient, fees, req.Notes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logAllocation(alloc)
	span.SetAttributes(attribute.Int("appointment_number", alloc.Appointment.AppointmentNumber))
	return alloc, nil
}

// AllocateNext books into the earliest session on the date that still has
// room.
func (s *Service) AllocateNext(ctx context.Context, req NextBookingRequest) (alloc *Allocation, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.allocate_next")
	defer span.End()
	started := time.Now()
	defer func() { s.observe(started, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.CheckBookingWindow(ctx, req.DoctorID, req.ClinicID, req.Date); err != nil {
		return nil, err
	}
	sessions, err := s.resolver.Resolve(ctx, req.DoctorID, req.ClinicID, req.Date)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSessionAvailable, availability.DateOf(req.Date).Format(availability.DateLayout))
	}
	fees, err := s.fees(ctx, req.DoctorID, req.ClinicID)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		alloc, err = s.allocator.Allocate(ctx, session, req.Patient, fees, req.Notes)
		if errors.Is(err, ErrSessionFull) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		s.logAllocation(alloc)
		span.SetAttributes(attribute.String("session_key", session.Key))
		return alloc, nil
	}
	return nil, fmt.Errorf("%w: every session on %s is booked", ErrSessionFull, availability.DateOf(req.Date).Format(availability.DateLayout))
}

// TransitionStatus moves an appointment through the ledger state machine.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.transition_status")
	defer span.End()
	span.SetAttributes(attribute.String("appointment_id", id.String()), attribute.String("to", string(to)))
	appt, err := s.ledger.Transition(ctx, id, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListSessionAppointments(ctx context.Context, sessionKey string) ([]*Appointment, error) {
	if _, err := ParseSessionKey(sessionKey); err != nil {
		return nil, err
	}
	return s.appointments.ListBySession(ctx, sessionKey)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) fees(ctx context.Context, doctorID, clinicID uuid.UUID) (FeeSnapshot, error) {
	cfg, err := s.directory.GetFeeConfig(ctx, doctorID, clinicID)
	if errors.Is(err, directory.ErrNotFound) {
		return FeeSnapshot{}, fmt.Errorf("%w: doctor %s clinic %s", ErrFeeConfigMissing, doctorID, clinicID)
	}
	if err != nil {
		return FeeSnapshot{}, fmt.Errorf("get fee config: %w", err)
	}
	return SnapshotFees(cfg), nil
}

func (s *Service) logAllocation(a *Allocation) {
	s.logger.Info().
		Str("appointment_id", a.Appointment.ID.String()).
		Str("session_key", a.Session.Key).
		Int("appointment_number", a.Appointment.AppointmentNumber).
		Str("estimated_time", a.Appointment.EstimatedTime.String()).
		Bool("exceeds_session_end", a.ExceedsSessionEnd).
		Msg("appointment allocated")
}

func (s *Service) observe(started time.Time, err error) {
	s.metrics.ObserveAllocation(Outcome(err), time.Since(started).Seconds())
}

// Outcome names an allocation result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrNoSessionAvailable):
		return "no_session"
	case errors.Is(err, ErrDateNotBookable):
		return "date_not_bookable"
	case errors.Is(err, ErrFeeConfigMissing):
		return "fee_config_missing"
	case errors.Is(err, ErrAllocationConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}
