package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/domain/availability"
	"github.com/clinic/booking/internal/domain/directory"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// PatientInfo is the patient data captured at booking time.
type PatientInfo struct {
	ID    *uuid.UUID `json:"id,omitempty"`
	Name  string     `json:"name"`
	Phone string     `json:"phone,omitempty"`
	Email string     `json:"email,omitempty"`
}

// FeeSnapshot copies the fee configuration in effect when the appointment was
// made. Later fee changes never touch it.
type FeeSnapshot struct {
	DoctorFee  int64  `json:"doctor_fee"`
	ClinicFee  int64  `json:"clinic_fee"`
	OnlineFee  int64  `json:"online_fee"`
	PartnerFee *int64 `json:"partner_fee,omitempty"`
}

func SnapshotFees(cfg *directory.FeeConfig) FeeSnapshot {
	snap := FeeSnapshot{DoctorFee: cfg.DoctorFee, ClinicFee: cfg.ClinicFee, OnlineFee: cfg.OnlineFee}
	if cfg.PartnerFee != nil {
		p := *cfg.PartnerFee
		snap.PartnerFee = &p
	}
	return snap
}

// Total is the amount billed to the patient.
func (f FeeSnapshot) Total() int64 {
	total := f.DoctorFee + f.ClinicFee + f.OnlineFee
	if f.PartnerFee != nil {
		total += *f.PartnerFee
	}
	return total
}

// Appointment is one booking in the ledger.
type Appointment struct {
	ID                uuid.UUID              `json:"id"`
	SessionKey        string                 `json:"session_key"`
	DoctorID          uuid.UUID              `json:"doctor_id"`
	ClinicID          uuid.UUID              `json:"clinic_id"`
	Date              time.Time              `json:"date"`
	AppointmentNumber int                    `json:"appointment_number"`
	EstimatedTime     availability.TimeOfDay `json:"estimated_time"`
	Status            Status                 `json:"status"`
	Patient           PatientInfo            `json:"patient"`
	Fees              FeeSnapshot            `json:"fees"`
	Notes             string                 `json:"notes,omitempty"`
	Version           int64                  `json:"version"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	return json.Marshal(struct {
		plain
		Date availability.CivilDate `json:"date"`
	}{plain(a), availability.CivilDate(a.Date)})
}

func (a *Appointment) UnmarshalJSON(b []byte) error {
	type plain Appointment
	aux := struct {
		*plain
		Date availability.CivilDate `json:"date"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	a.Date = time.Time(aux.Date)
	return nil
}

// CountsTowardCapacity is false only for cancelled appointments.
func (a *Appointment) CountsTowardCapacity() bool {
	return a.Status != StatusCancelled
}

// SessionTally is the per-session counter the allocator compares and swaps.
// Active excludes cancelled appointments; LastNumber is the highest number
// ever issued, so cancelled numbers are never handed out again.
type SessionTally struct {
	Active     int64 `json:"active"`
	LastNumber int64 `json:"last_number"`
	Version    int64 `json:"version"`
}

// Allocation is the result of a successful booking.
type Allocation struct {
	Appointment       *Appointment    `json:"appointment"`
	Session           ResolvedSession `json:"session"`
	ExceedsSessionEnd bool            `json:"exceeds_session_end"`
}

// BookingRequest asks for the next number in one resolved session.
type BookingRequest struct {
	SessionKey string
	Patient    PatientInfo
	Notes      string
}

func (r *BookingRequest) Validate() error {
	if strings.TrimSpace(r.SessionKey) == "" {
		return fmt.Errorf("%w: session_key is required", ErrInvalidInput)
	}
	return validatePatient(r.Patient)
}

// NextBookingRequest asks for the earliest session on a date that still has
// room.
type NextBookingRequest struct {
	DoctorID uuid.UUID
	ClinicID uuid.UUID
	Date     time.Time
	Patient  PatientInfo
	Notes    string
}

func (r *NextBookingRequest) Validate() error {
	if r.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrInvalidInput)
	}
	if r.ClinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic_id is required", ErrInvalidInput)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	return validatePatient(r.Patient)
}

func validatePatient(p PatientInfo) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: patient name is required", ErrInvalidInput)
	}
	if p.Phone == "" && p.Email == "" && p.ID == nil {
		return fmt.Errorf("%w: patient needs an id, phone or email", ErrInvalidInput)
	}
	return nil
}
