package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repoPG struct{ db rowQuerier }

// NewRepoPG reads the directory tables maintained by the management service.
func NewRepoPG(db rowQuerier) Repository { return &repoPG{db: db} }

func (r *repoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.db.QueryRow(ctx, `SELECT id, name, booking_visible_days FROM doctor WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.BookingVisibleDays)
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	return &d, nil
}

func (r *repoPG) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	var c Clinic
	err := r.db.QueryRow(ctx, `SELECT id, name, booking_visible_days FROM clinic WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.BookingVisibleDays)
	if err != nil {
		return nil, notFound(err, "clinic")
	}
	return &c, nil
}

func (r *repoPG) GetFeeConfig(ctx context.Context, doctorID, clinicID uuid.UUID) (*FeeConfig, error) {
	var f FeeConfig
	err := r.db.QueryRow(ctx, `
		SELECT doctor_id, clinic_id, doctor_fee, clinic_fee, online_fee, partner_fee
		FROM fee_config WHERE doctor_id = $1 AND clinic_id = $2`, doctorID, clinicID).
		Scan(&f.DoctorID, &f.ClinicID, &f.DoctorFee, &f.ClinicFee, &f.OnlineFee, &f.PartnerFee)
	if err != nil {
		return nil, notFound(err, "fee config")
	}
	return &f, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
