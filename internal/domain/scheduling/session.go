package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/domain/availability"
)

// SourceKind says what a session was resolved from.
type SourceKind string

const (
	SourceRule      SourceKind = "rule"
	SourceException SourceKind = "exception"
)

// SessionKey identifies one resolved session: doctor, clinic, date and the
// rule or standalone exception it came from.
type SessionKey struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Date     time.Time
	Kind     SourceKind
	SourceID uuid.UUID
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", k.DoctorID, k.ClinicID,
		k.Date.Format(availability.DateLayout), k.Kind, k.SourceID)
}

// ParseSessionKey is the inverse of SessionKey.String.
func ParseSessionKey(s string) (SessionKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return SessionKey{}, fmt.Errorf("%w: malformed session key %q", ErrInvalidInput, s)
	}
	var k SessionKey
	var err error
	if k.DoctorID, err = uuid.Parse(parts[0]); err != nil {
		return SessionKey{}, fmt.Errorf("%w: session key doctor: %v", ErrInvalidInput, err)
	}
	if k.ClinicID, err = uuid.Parse(parts[1]); err != nil {
		return SessionKey{}, fmt.Errorf("%w: session key clinic: %v", ErrInvalidInput, err)
	}
	if k.Date, err = availability.ParseDate(parts[2]); err != nil {
		return SessionKey{}, fmt.Errorf("%w: session key: %v", ErrInvalidInput, err)
	}
	k.Kind = SourceKind(parts[3])
	if k.Kind != SourceRule && k.Kind != SourceException {
		return SessionKey{}, fmt.Errorf("%w: session key source %q", ErrInvalidInput, parts[3])
	}
	if k.SourceID, err = uuid.Parse(parts[4]); err != nil {
		return SessionKey{}, fmt.Errorf("%w: session key source id: %v", ErrInvalidInput, err)
	}
	return k, nil
}

// ResolvedSession is a concrete bookable window on one date. It is derived
// on every request and never stored.
type ResolvedSession struct {
	Key                  string                 `json:"session_key"`
	DoctorID             uuid.UUID              `json:"doctor_id"`
	ClinicID             uuid.UUID              `json:"clinic_id"`
	Date                 time.Time              `json:"date"`
	StartTime            availability.TimeOfDay `json:"start_time"`
	EndTime              availability.TimeOfDay `json:"end_time"`
	EffectiveMaxPatients int                    `json:"max_patients"`
	MinutesPerPatient    int                    `json:"minutes_per_patient"`
	SourceRuleID         *uuid.UUID             `json:"source_rule_id,omitempty"`
	SourceExceptionID    *uuid.UUID             `json:"source_exception_id,omitempty"`
	Modified             bool                   `json:"modified"`
	Overcommitted        bool                   `json:"overcommitted"`
}

func (s ResolvedSession) MarshalJSON() ([]byte, error) {
	type plain ResolvedSession
	return json.Marshal(struct {
		plain
		Date availability.CivilDate `json:"date"`
	}{plain(s), availability.CivilDate(s.Date)})
}

func (s *ResolvedSession) UnmarshalJSON(b []byte) error {
	type plain ResolvedSession
	aux := struct {
		*plain
		Date availability.CivilDate `json:"date"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Date = time.Time(aux.Date)
	return nil
}

// EstimatedTime is when the holder of the given 1-based number is expected
// to be seen.
func (s ResolvedSession) EstimatedTime(number int) availability.TimeOfDay {
	return s.StartTime.Add((number - 1) * s.MinutesPerPatient)
}

// Overruns reports whether the given number is estimated at or after the
// session end. Capacity, not the window, is the binding limit, so this is a
// warning only.
func (s ResolvedSession) Overruns(number int) bool {
	return s.EstimatedTime(number) >= s.EndTime
}

func (s ResolvedSession) interval() availability.Interval {
	return availability.Interval{Start: s.StartTime, End: s.EndTime}
}

// SessionAvailability is a resolved session with its current booking tally.
type SessionAvailability struct {
	ResolvedSession
	Booked     int `json:"booked"`
	Remaining  int `json:"remaining"`
	NextNumber int `json:"next_number"`
}

// SessionAvailability flattens the session and its tally into one object.
// Both methods are needed to shadow the ones promoted from ResolvedSession.
func (a SessionAvailability) MarshalJSON() ([]byte, error) {
	type plain ResolvedSession
	return json.Marshal(struct {
		plain
		Date       availability.CivilDate `json:"date"`
		Booked     int                    `json:"booked"`
		Remaining  int                    `json:"remaining"`
		NextNumber int                    `json:"next_number"`
	}{plain(a.ResolvedSession), availability.CivilDate(a.Date), a.Booked, a.Remaining, a.NextNumber})
}

func (a *SessionAvailability) UnmarshalJSON(b []byte) error {
	type plain ResolvedSession
	aux := struct {
		*plain
		Date       availability.CivilDate `json:"date"`
		Booked     int                    `json:"booked"`
		Remaining  int                    `json:"remaining"`
		NextNumber int                    `json:"next_number"`
	}{plain: (*plain)(&a.ResolvedSession)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	a.Date = time.Time(aux.Date)
	a.Booked, a.Remaining, a.NextNumber = aux.Booked, aux.Remaining, aux.NextNumber
	return nil
}
