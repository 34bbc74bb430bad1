package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRuleNotFound      = errors.New("recurring rule not found")
	ErrExceptionNotFound = errors.New("exception not found")
)

// RuleRepository stores weekly recurring rules. Lookups that match nothing
// return an empty slice, not an error.
type RuleRepository interface {
	Create(ctx context.Context, r *RecurringRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*RecurringRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListRulesFor(ctx context.Context, doctorID, clinicID uuid.UUID, weekday time.Weekday) ([]*RecurringRule, error)
	ListByDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) ([]*RecurringRule, error)
}

// ExceptionRepository stores date-specific overrides. Exceptions are never
// updated in place; an edit is a delete followed by a create.
type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exception, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListExceptionsFor(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]*Exception, error)
	ListBetween(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]*Exception, error)
}
