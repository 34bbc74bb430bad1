package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/domain/availability"
)

// RuleSource is the read side of the recurring availability store.
type RuleSource interface {
	ListRulesFor(ctx context.Context, doctorID, clinicID uuid.UUID, weekday time.Weekday) ([]*availability.RecurringRule, error)
}

// ExceptionSource is the read side of the exception store.
type ExceptionSource interface {
	ListExceptionsFor(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]*availability.Exception, error)
}

// Resolver merges weekly rules with same-date exceptions into the concrete
// sessions bookable on one date. It holds no state and is safe for
// concurrent use.
//
// Overlap policy, per rule:
//   - an absence covering the rule drops it;
//   - a modified session covering the rule replaces its capacity (the most
//     recently created one wins; absences beat modified sessions);
//   - any partial overlap, absence or modified, drops the rule session;
//   - a modified session that covers no surviving rule is a standalone
//     session.
type Resolver struct {
	rules                    RuleSource
	exceptions               ExceptionSource
	defaultMinutesPerPatient int
}

func NewResolver(rules RuleSource, exceptions ExceptionSource, defaultMinutesPerPatient int) *Resolver {
	if defaultMinutesPerPatient <= 0 {
		defaultMinutesPerPatient = 15
	}
	return &Resolver{rules: rules, exceptions: exceptions, defaultMinutesPerPatient: defaultMinutesPerPatient}
}

// Resolve returns the sessions for doctor at clinic on date, ordered by start
// time. An empty result means the doctor is not available there that day.
func (r *Resolver) Resolve(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]ResolvedSession, error) {
	day := availability.DateOf(date)

	rules, err := r.rules.ListRulesFor(ctx, doctorID, clinicID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	exceptions, err := r.exceptions.ListExceptionsFor(ctx, doctorID, clinicID, day)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}

	sessions := make([]ResolvedSession, 0, len(rules))
	coversRule := make(map[uuid.UUID]bool)
	overlappedRule := make(map[uuid.UUID]*availability.RecurringRule)

	for _, rule := range rules {
		var replacement *availability.Exception
		var covering []*availability.Exception
		drop := false
		for _, exc := range exceptions {
			ri, ei := rule.Interval(), exc.Interval()
			switch {
			case !ei.Overlaps(ri):
				continue
			case !ei.Covers(ri):
				drop = true
				if exc.IsModifiedSession {
					if _, seen := overlappedRule[exc.ID]; !seen {
						overlappedRule[exc.ID] = rule
					}
				}
			case exc.IsAbsence():
				drop = true
			default:
				covering = append(covering, exc)
				if replacement == nil || !exc.CreatedAt.Before(replacement.CreatedAt) {
					replacement = exc
				}
			}
		}
		if drop {
			// Covering modified sessions of a dropped rule stand alone.
			for _, exc := range covering {
				if _, seen := overlappedRule[exc.ID]; !seen {
					overlappedRule[exc.ID] = rule
				}
			}
			continue
		}
		for _, exc := range covering {
			coversRule[exc.ID] = true
		}
		sessions = append(sessions, r.fromRule(day, rule, replacement))
	}

	for _, exc := range exceptions {
		if !exc.IsModifiedSession || coversRule[exc.ID] {
			continue
		}
		if blockedByAbsence(exc, exceptions) {
			continue
		}
		minutes := r.defaultMinutesPerPatient
		if exc.MinutesPerPatient != nil {
			minutes = *exc.MinutesPerPatient
		} else if rule, ok := overlappedRule[exc.ID]; ok {
			minutes = rule.MinutesPerPatient
		}
		sessions = append(sessions, r.fromException(day, exc, minutes))
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartTime != sessions[j].StartTime {
			return sessions[i].StartTime < sessions[j].StartTime
		}
		return sessions[i].Key < sessions[j].Key
	})
	return sessions, nil
}

// Find resolves the date named by key and returns the session it identifies.
func (r *Resolver) Find(ctx context.Context, key SessionKey) (ResolvedSession, error) {
	sessions, err := r.Resolve(ctx, key.DoctorID, key.ClinicID, key.Date)
	if err != nil {
		return ResolvedSession{}, err
	}
	want := key.String()
	for _, s := range sessions {
		if s.Key == want {
			return s, nil
		}
	}
	return ResolvedSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, want)
}

func (r *Resolver) fromRule(day time.Time, rule *availability.RecurringRule, replacement *availability.Exception) ResolvedSession {
	ruleID := rule.ID
	s := ResolvedSession{
		Key: SessionKey{
			DoctorID: rule.DoctorID, ClinicID: rule.ClinicID, Date: day,
			Kind: SourceRule, SourceID: rule.ID,
		}.String(),
		DoctorID:             rule.DoctorID,
		ClinicID:             rule.ClinicID,
		Date:                 day,
		StartTime:            rule.StartTime,
		EndTime:              rule.EndTime,
		EffectiveMaxPatients: rule.MaxPatients,
		MinutesPerPatient:    rule.MinutesPerPatient,
		SourceRuleID:         &ruleID,
	}
	if replacement != nil {
		excID := replacement.ID
		s.EffectiveMaxPatients = *replacement.MaxPatients
		s.SourceExceptionID = &excID
		s.Modified = true
	}
	s.Overcommitted = s.EffectiveMaxPatients*s.MinutesPerPatient > s.interval().Minutes()
	return s
}

func (r *Resolver) fromException(day time.Time, exc *availability.Exception, minutes int) ResolvedSession {
	excID := exc.ID
	s := ResolvedSession{
		Key: SessionKey{
			DoctorID: exc.DoctorID, ClinicID: exc.ClinicID, Date: day,
			Kind: SourceException, SourceID: exc.ID,
		}.String(),
		DoctorID:             exc.DoctorID,
		ClinicID:             exc.ClinicID,
		Date:                 day,
		StartTime:            exc.StartTime,
		EndTime:              exc.EndTime,
		EffectiveMaxPatients: *exc.MaxPatients,
		MinutesPerPatient:    minutes,
		SourceExceptionID:    &excID,
		Modified:             true,
	}
	s.Overcommitted = s.EffectiveMaxPatients*s.MinutesPerPatient > s.interval().Minutes()
	return s
}

// blockedByAbsence reports whether an absence on the same date overlaps a
// standalone modified session.
func blockedByAbsence(exc *availability.Exception, all []*availability.Exception) bool {
	for _, other := range all {
		if other.IsAbsence() && other.Interval().Overlaps(exc.Interval()) {
			return true
		}
	}
	return false
}
