package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/lock"
	"github.com/clinic/booking/internal/platform/metrics"
)

// Allocator hands out appointment numbers inside one resolved session.
//
// Two mechanisms keep numbers unique and capacity intact. The Locker
// serializes allocators for the same session key (in-process or across
// instances via Redis). Underneath it, every insert is a compare-and-swap
// against the session tally, so a lost lease or a Noop locker degrades to
// retries, never to an overbooked session.
type Allocator struct {
	ledger     AppointmentRepository
	locker     lock.Locker
	metrics    *metrics.BookingMetrics
	logger     zerolog.Logger
	maxRetries int
}

func NewAllocator(ledger AppointmentRepository, locker lock.Locker, m *metrics.BookingMetrics, logger zerolog.Logger, maxRetries int) *Allocator {
	if locker == nil {
		locker = lock.Noop{}
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Allocator{ledger: ledger, locker: locker, metrics: m, logger: logger, maxRetries: maxRetries}
}

// Allocate books the next number in session. The session must have been
// resolved by the caller just before; nothing slow happens while the
// session lock is held.
func (a *Allocator) Allocate(ctx context.Context, session ResolvedSession, patient PatientInfo, fees FeeSnapshot, notes string) (*Allocation, error) {
	waitStart := time.Now()
	unlock, err := a.locker.Lock(ctx, session.Key)
	if err != nil {
		return nil, fmt.Errorf("lock session %s: %w", session.Key, err)
	}
	a.metrics.ObserveLockWait(time.Since(waitStart).Seconds())
	defer func() {
		if err := unlock(); err != nil {
			a.logger.Warn().Err(err).Str("session_key", session.Key).Msg("session lock released late")
		}
	}()

	for attempt := 0; attempt < a.maxRetries; attempt++ {
		tally, err := a.ledger.Tally(ctx, session.Key)
		if err != nil {
			return nil, fmt.Errorf("read tally: %w", err)
		}
		if tally.Active >= int64(session.EffectiveMaxPatients) {
			return nil, fmt.Errorf("%w: %d of %d booked", ErrSessionFull, tally.Active, session.EffectiveMaxPatients)
		}

		number := int(tally.LastNumber) + 1
		appt := &Appointment{
			SessionKey:        session.Key,
			DoctorID:          session.DoctorID,
			ClinicID:          session.ClinicID,
			Date:              session.Date,
			AppointmentNumber: number,
			EstimatedTime:     session.EstimatedTime(number),
			Status:            StatusScheduled,
			Patient:           patient,
			Fees:              fees,
			Notes:             notes,
		}
		err = a.ledger.Insert(ctx, appt, tally)
		if errors.Is(err, errTallyConflict) {
			a.metrics.IncConflict()
			a.logger.Debug().Str("session_key", session.Key).Int("attempt", attempt+1).Msg("tally conflict, retrying")
			if err := backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert appointment: %w", err)
		}

		overrun := session.Overruns(number)
		if overrun {
			a.metrics.IncOverrun()
			a.logger.Warn().
				Str("session_key", session.Key).
				Int("appointment_number", number).
				Str("estimated_time", appt.EstimatedTime.String()).
				Str("session_end", session.EndTime.String()).
				Msg("estimated time is past session end")
		}
		return &Allocation{Appointment: appt, Session: session, ExceedsSessionEnd: overrun}, nil
	}
	return nil, fmt.Errorf("%w: session %s after %d attempts", ErrAllocationConflict, session.Key, a.maxRetries)
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt+1) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
