package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/booking/internal/domain/availability"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type txBeginner interface {
	queryable
	Begin(ctx context.Context) (pgx.Tx, error)
}

const pgUniqueViolation = "23505"

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ db txBeginner }

// NewAppointmentRepoPG stores the ledger in the appointment and session_tally
// tables. The tally row is the compare-and-swap point for allocation; the
// unique (session_key, appointment_number) index backs it up.
func NewAppointmentRepoPG(db txBeginner) AppointmentRepository {
	return &appointmentRepoPG{db: db}
}

const apptCols = `id, session_key, doctor_id, clinic_id, appointment_date, appointment_number,
	estimated_minute, status, patient_id, patient_name, patient_phone, patient_email,
	doctor_fee, clinic_fee, online_fee, partner_fee, notes, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var estimated int
	var status string
	err := row.Scan(&a.ID, &a.SessionKey, &a.DoctorID, &a.ClinicID, &a.Date, &a.AppointmentNumber,
		&estimated, &status, &a.Patient.ID, &a.Patient.Name, &a.Patient.Phone, &a.Patient.Email,
		&a.Fees.DoctorFee, &a.Fees.ClinicFee, &a.Fees.OnlineFee, &a.Fees.PartnerFee,
		&a.Notes, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.EstimatedTime = availability.TimeOfDay(estimated)
	a.Status = Status(status)
	return &a, nil
}

func (r *appointmentRepoPG) Tally(ctx context.Context, sessionKey string) (SessionTally, error) {
	var t SessionTally
	err := r.db.QueryRow(ctx, `
		SELECT active_count, last_number, version FROM session_tally WHERE session_key = $1`,
		sessionKey).Scan(&t.Active, &t.LastNumber, &t.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionTally{}, nil
	}
	if err != nil {
		return SessionTally{}, fmt.Errorf("read session tally: %w", err)
	}
	return t, nil
}

func (r *appointmentRepoPG) TallySessions(ctx context.Context, sessionKeys []string) (map[string]SessionTally, error) {
	out := make(map[string]SessionTally, len(sessionKeys))
	if len(sessionKeys) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT session_key, active_count, last_number, version
		FROM session_tally WHERE session_key = ANY($1)`, sessionKeys)
	if err != nil {
		return nil, fmt.Errorf("query session tallies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var t SessionTally
		if err := rows.Scan(&key, &t.Active, &t.LastNumber, &t.Version); err != nil {
			return nil, err
		}
		out[key] = t
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Insert(ctx context.Context, appt *Appointment, expected SessionTally) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var tag pgconn.CommandTag
	if expected.Version == 0 {
		tag, err = tx.Exec(ctx, `
			INSERT INTO session_tally (session_key, active_count, last_number, version)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (session_key) DO NOTHING`,
			appt.SessionKey, expected.Active+1, appt.AppointmentNumber)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE session_tally SET active_count = $2, last_number = $3,
				version = version + 1, updated_at = NOW()
			WHERE session_key = $1 AND version = $4`,
			appt.SessionKey, expected.Active+1, appt.AppointmentNumber, expected.Version)
	}
	if err != nil {
		return fmt.Errorf("advance session tally: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errTallyConflict
	}

	appt.ID = uuid.New()
	appt.Version = 1
	err = tx.QueryRow(ctx, `
		INSERT INTO appointment (id, session_key, doctor_id, clinic_id, appointment_date, appointment_number,
			estimated_minute, status, patient_id, patient_name, patient_phone, patient_email,
			doctor_fee, clinic_fee, online_fee, partner_fee, notes, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		appt.ID, appt.SessionKey, appt.DoctorID, appt.ClinicID, appt.Date, appt.AppointmentNumber,
		int(appt.EstimatedTime), string(appt.Status), appt.Patient.ID, appt.Patient.Name,
		appt.Patient.Phone, appt.Patient.Email, appt.Fees.DoctorFee, appt.Fees.ClinicFee,
		appt.Fees.OnlineFee, appt.Fees.PartnerFee, appt.Notes, appt.Version,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return errTallyConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, appt *Appointment, from Status) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE appointment SET status = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING version, updated_at`,
		appt.ID, string(appt.Status), string(from)).Scan(&appt.Version, &appt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return errStatusConflict
	}
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}

	if from != StatusCancelled && !appt.CountsTowardCapacity() {
		if _, err := tx.Exec(ctx, `
			UPDATE session_tally SET active_count = active_count - 1,
				version = version + 1, updated_at = NOW()
			WHERE session_key = $1`, appt.SessionKey); err != nil {
			return fmt.Errorf("release session capacity: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *appointmentRepoPG) ListBySession(ctx context.Context, sessionKey string) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE session_key = $1 ORDER BY appointment_number`, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("query session appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patient appointments: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1 ORDER BY appointment_date DESC, estimated_minute DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query patient appointments: %w", err)
	}
	defer rows.Close()
	items, err := collectAppointments(rows)
	return items, total, err
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	items := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
