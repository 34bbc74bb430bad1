package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalid marks a rule or exception rejected by validation.
var ErrInvalid = errors.New("invalid availability")

// maxExceptionRange bounds ListExceptions queries.
const maxExceptionRange = 366 * 24 * time.Hour

type Service struct {
	rules      RuleRepository
	exceptions ExceptionRepository
	logger     zerolog.Logger
}

func NewService(rules RuleRepository, exceptions ExceptionRepository, logger zerolog.Logger) *Service {
	return &Service{rules: rules, exceptions: exceptions, logger: logger}
}

// -- Recurring rules --

func (s *Service) CreateRule(ctx context.Context, r *RecurringRule) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.rules.Create(ctx, r); err != nil {
		return err
	}
	evt := s.logger.Info()
	if r.Overcommitted() {
		evt = s.logger.Warn().Bool("overcommitted", true)
	}
	evt.Str("rule_id", r.ID.String()).
		Str("doctor_id", r.DoctorID.String()).
		Str("clinic_id", r.ClinicID.String()).
		Int("day_of_week", r.DayOfWeek).
		Msg("recurring rule created")
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*RecurringRule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("rule_id", id.String()).Msg("recurring rule deleted")
	return nil
}

func (s *Service) ListRules(ctx context.Context, doctorID, clinicID uuid.UUID) ([]*RecurringRule, error) {
	return s.rules.ListByDoctorClinic(ctx, doctorID, clinicID)
}

// -- Exceptions --

func (s *Service) CreateException(ctx context.Context, e *Exception) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.exceptions.Create(ctx, e); err != nil {
		return err
	}
	s.logger.Info().
		Str("exception_id", e.ID.String()).
		Str("doctor_id", e.DoctorID.String()).
		Str("clinic_id", e.ClinicID.String()).
		Str("date", e.Date.Format(DateLayout)).
		Bool("modified_session", e.IsModifiedSession).
		Msg("exception created")
	return nil
}

func (s *Service) GetException(ctx context.Context, id uuid.UUID) (*Exception, error) {
	return s.exceptions.GetByID(ctx, id)
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	if err := s.exceptions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("exception_id", id.String()).Msg("exception deleted")
	return nil
}

func (s *Service) ListExceptions(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]*Exception, error) {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrInvalid)
	}
	if to.Sub(from) > maxExceptionRange {
		return nil, fmt.Errorf("%w: date range is limited to one year", ErrInvalid)
	}
	return s.exceptions.ListBetween(ctx, doctorID, clinicID, from, to)
}
