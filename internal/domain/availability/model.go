package availability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// TimeOfDay is a clinic-local wall-clock time in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "15:04" or "15:04:05". Seconds are dropped.
// "24:00" is accepted as the end of the day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return minutesPerDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns t shifted by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

// On places t on the given calendar date.
func (t TimeOfDay) On(date time.Time) time.Time {
	d := DateOf(date)
	return d.Add(time.Duration(t) * time.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DateOf truncates t to its calendar date at UTC midnight. Dates are civil
// dates; the location of t decides which day it falls on.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a "2006-01-02" calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// CivilDate is the "2006-01-02" JSON form of a calendar date. The zero date
// encodes as null.
type CivilDate time.Time

func (d CivilDate) MarshalJSON() ([]byte, error) {
	t := time.Time(d)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(DateLayout))
}

func (d *CivilDate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = CivilDate{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = CivilDate(t)
	return nil
}

// Interval is a half-open [Start, End) range of wall-clock minutes.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Covers reports whether i contains o entirely.
func (i Interval) Covers(o Interval) bool {
	return i.Start <= o.Start && o.End <= i.End
}

// Overlaps reports whether i and o share at least one minute.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Minutes is the length of the interval.
func (i Interval) Minutes() int { return int(i.End - i.Start) }

// RecurringRule is one weekly-repeating bookable window for a doctor at a clinic.
type RecurringRule struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DoctorID          uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ClinicID          uuid.UUID `db:"clinic_id" json:"clinic_id"`
	DayOfWeek         int       `db:"day_of_week" json:"day_of_week"`
	StartTime         TimeOfDay `db:"start_minute" json:"start_time"`
	EndTime           TimeOfDay `db:"end_minute" json:"end_time"`
	MaxPatients       int       `db:"max_patients" json:"max_patients"`
	MinutesPerPatient int       `db:"minutes_per_patient" json:"minutes_per_patient"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

func (r *RecurringRule) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// Overcommitted reports whether the rule admits more patients than its window
// can seat at minutes_per_patient. This is allowed but worth surfacing.
func (r *RecurringRule) Overcommitted() bool {
	return r.MaxPatients*r.MinutesPerPatient > r.Interval().Minutes()
}

// Validate checks the rule's invariants.
func (r *RecurringRule) Validate() error {
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if r.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week must be between 0 (Sunday) and 6 (Saturday), got %d", r.DayOfWeek)
	}
	if err := validateWindow(r.StartTime, r.EndTime); err != nil {
		return err
	}
	if r.MaxPatients <= 0 {
		return fmt.Errorf("max_patients must be positive")
	}
	if r.MinutesPerPatient <= 0 {
		return fmt.Errorf("minutes_per_patient must be positive")
	}
	return nil
}

// Exception overrides the recurring schedule on one date. An absence
// (IsModifiedSession=false) blocks its time range; a modified session
// replaces capacity for it, or adds an ad-hoc session when no rule is there.
type Exception struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DoctorID          uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ClinicID          uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Date              time.Time `db:"exception_date" json:"date"`
	StartTime         TimeOfDay `db:"start_minute" json:"start_time"`
	EndTime           TimeOfDay `db:"end_minute" json:"end_time"`
	Reason            string    `db:"reason" json:"reason"`
	IsModifiedSession bool      `db:"is_modified_session" json:"is_modified_session"`
	MaxPatients       *int      `db:"max_patients" json:"max_patients,omitempty"`
	MinutesPerPatient *int      `db:"minutes_per_patient" json:"minutes_per_patient,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

func (e Exception) MarshalJSON() ([]byte, error) {
	type plain Exception
	return json.Marshal(struct {
		plain
		Date CivilDate `json:"date"`
	}{plain(e), CivilDate(e.Date)})
}

func (e *Exception) UnmarshalJSON(b []byte) error {
	type plain Exception
	aux := struct {
		*plain
		Date CivilDate `json:"date"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Date = time.Time(aux.Date)
	return nil
}

func (e *Exception) Interval() Interval {
	return Interval{Start: e.StartTime, End: e.EndTime}
}

// IsAbsence reports whether the exception blocks its time range.
func (e *Exception) IsAbsence() bool { return !e.IsModifiedSession }

// Validate checks the exception's invariants.
func (e *Exception) Validate() error {
	if e.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if e.ClinicID == uuid.Nil {
		return fmt.Errorf("clinic_id is required")
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if err := validateWindow(e.StartTime, e.EndTime); err != nil {
		return err
	}
	if e.IsModifiedSession {
		if e.MaxPatients == nil || *e.MaxPatients <= 0 {
			return fmt.Errorf("max_patients must be positive for a modified session")
		}
		if e.MinutesPerPatient != nil && *e.MinutesPerPatient <= 0 {
			return fmt.Errorf("minutes_per_patient must be positive")
		}
		return nil
	}
	if e.MaxPatients != nil || e.MinutesPerPatient != nil {
		return fmt.Errorf("max_patients and minutes_per_patient apply only to modified sessions")
	}
	return nil
}

const minutesPerDay = 24 * 60

func validateWindow(start, end TimeOfDay) error {
	if start < 0 || end > minutesPerDay {
		return fmt.Errorf("times must fall within 00:00 and 24:00")
	}
	if start >= end {
		return fmt.Errorf("start_time %s must be before end_time %s", start, end)
	}
	return nil
}
