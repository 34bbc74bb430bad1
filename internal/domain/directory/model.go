// Package directory reads the doctor, clinic and fee records owned by the
// management side of the system. The booking engine consumes them and never
// writes them.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("directory record not found")

// Doctor carries the booking-relevant doctor settings.
type Doctor struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	BookingVisibleDays *int      `db:"booking_visible_days" json:"booking_visible_days,omitempty"`
}

// Clinic carries the booking-relevant clinic settings.
type Clinic struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	BookingVisibleDays *int      `db:"booking_visible_days" json:"booking_visible_days,omitempty"`
}

// FeeConfig is the fee schedule for one doctor at one clinic, in minor
// currency units.
type FeeConfig struct {
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctor_id"`
	ClinicID   uuid.UUID `db:"clinic_id" json:"clinic_id"`
	DoctorFee  int64     `db:"doctor_fee" json:"doctor_fee"`
	ClinicFee  int64     `db:"clinic_fee" json:"clinic_fee"`
	OnlineFee  int64     `db:"online_fee" json:"online_fee"`
	PartnerFee *int64    `db:"partner_fee" json:"partner_fee,omitempty"`
}

// Repository is the read side of the doctor/clinic/fee directory.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetFeeConfig(ctx context.Context, doctorID, clinicID uuid.UUID) (*FeeConfig, error)
}
