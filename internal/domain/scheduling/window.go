package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/internal/domain/directory"
)

// BookingWindow is the range of dates open for booking, both ends inclusive.
type BookingWindow struct {
	Today       time.Time `json:"today"`
	LastDate    time.Time `json:"last_date"`
	VisibleDays int       `json:"visible_days"`
}

// Contains reports whether date falls inside the window.
func (w BookingWindow) Contains(date time.Time) bool {
	d := availability.DateOf(date)
	return !d.Before(w.Today) && !d.After(w.LastDate)
}

// WindowPolicy decides how far ahead a doctor can be booked at a clinic. The
// stricter of the doctor's and the clinic's limits applies; when neither is
// set the default does.
type WindowPolicy struct {
	directory   Directory
	defaultDays int
}

func NewWindowPolicy(dir Directory, defaultDays int) *WindowPolicy {
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &WindowPolicy{directory: dir, defaultDays: defaultDays}
}

// Window returns the bookable range starting at today.
func (p *WindowPolicy) Window(ctx context.Context, doctorID, clinicID uuid.UUID, today time.Time) (BookingWindow, error) {
	doctorDays, err := p.doctorDays(ctx, doctorID)
	if err != nil {
		return BookingWindow{}, err
	}
	clinicDays, err := p.clinicDays(ctx, clinicID)
	if err != nil {
		return BookingWindow{}, err
	}

	days := p.defaultDays
	switch {
	case doctorDays != nil && clinicDays != nil:
		days = min(*doctorDays, *clinicDays)
	case doctorDays != nil:
		days = *doctorDays
	case clinicDays != nil:
		days = *clinicDays
	}
	if days < 0 {
		days = 0
	}

	start := availability.DateOf(today)
	return BookingWindow{Today: start, LastDate: start.AddDate(0, 0, days), VisibleDays: days}, nil
}

// Check fails with ErrDateNotBookable when date is in the past or beyond the
// window.
func (p *WindowPolicy) Check(ctx context.Context, doctorID, clinicID uuid.UUID, date, today time.Time) (BookingWindow, error) {
	w, err := p.Window(ctx, doctorID, clinicID, today)
	if err != nil {
		return BookingWindow{}, err
	}
	if !w.Contains(date) {
		return w, fmt.Errorf("%w: %s not in %s..%s", ErrDateNotBookable,
			availability.DateOf(date).Format(availability.DateLayout),
			w.Today.Format(availability.DateLayout), w.LastDate.Format(availability.DateLayout))
	}
	return w, nil
}

func (p *WindowPolicy) doctorDays(ctx context.Context, id uuid.UUID) (*int, error) {
	d, err := p.directory.GetDoctor(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d.BookingVisibleDays, nil
}

func (p *WindowPolicy) clinicDays(ctx context.Context, id uuid.UUID) (*int, error) {
	c, err := p.directory.GetClinic(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return c.BookingVisibleDays, nil
}
