package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/metrics"
)

// Ledger applies status transitions. Each transition is a compare-and-swap
// on the stored status, so two concurrent writers cannot both succeed from
// the same starting state.
type Ledger struct {
	repo       AppointmentRepository
	metrics    *metrics.BookingMetrics
	logger     zerolog.Logger
	maxRetries int
}

func NewLedger(repo AppointmentRepository, m *metrics.BookingMetrics, logger zerolog.Logger, maxRetries int) *Ledger {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Ledger{repo: repo, metrics: m, logger: logger, maxRetries: maxRetries}
}

// Transition moves appointment id to status to. A status change that races
// with another writer is re-validated against the fresh status.
func (l *Ledger) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		appt, err := l.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		from := appt.Status
		if IsTerminal(from) {
			l.metrics.ObserveTransition(string(to), "invalid")
			return nil, fmt.Errorf("%w: appointment is already %s", ErrInvalidTransition, from)
		}
		if !CanTransition(from, to) {
			l.metrics.ObserveTransition(string(to), "invalid")
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		appt.Status = to
		err = l.repo.UpdateStatus(ctx, appt, from)
		if errors.Is(err, errStatusConflict) {
			l.logger.Debug().Str("appointment_id", id.String()).Int("attempt", attempt+1).Msg("status changed underneath, re-reading")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
		l.metrics.ObserveTransition(string(to), "success")
		l.logger.Info().
			Str("appointment_id", id.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("appointment status changed")
		return appt, nil
	}
	l.metrics.ObserveTransition(string(to), "conflict")
	return nil, fmt.Errorf("%w: appointment %s kept changing", ErrAllocationConflict, id)
}
