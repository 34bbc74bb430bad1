package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// =========== Rule Repository ===========

type ruleRepoPG struct{ db queryable }

// NewRuleRepoPG returns a RuleRepository backed by a pgx pool (or anything
// that speaks the same query methods).
func NewRuleRepoPG(db queryable) RuleRepository { return &ruleRepoPG{db: db} }

const ruleCols = `id, doctor_id, clinic_id, day_of_week, start_minute, end_minute,
	max_patients, minutes_per_patient, created_at`

func scanRule(row pgx.Row) (*RecurringRule, error) {
	var r RecurringRule
	var start, end int
	err := row.Scan(&r.ID, &r.DoctorID, &r.ClinicID, &r.DayOfWeek, &start, &end,
		&r.MaxPatients, &r.MinutesPerPatient, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.StartTime, r.EndTime = TimeOfDay(start), TimeOfDay(end)
	return &r, nil
}

func (r *ruleRepoPG) Create(ctx context.Context, rule *RecurringRule) error {
	rule.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO recurring_rule (id, doctor_id, clinic_id, day_of_week, start_minute, end_minute,
			max_patients, minutes_per_patient)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		rule.ID, rule.DoctorID, rule.ClinicID, rule.DayOfWeek, int(rule.StartTime), int(rule.EndTime),
		rule.MaxPatients, rule.MinutesPerPatient).Scan(&rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recurring rule: %w", err)
	}
	return nil
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RecurringRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx, `SELECT `+ruleCols+` FROM recurring_rule WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	return rule, err
}

func (r *ruleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM recurring_rule WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *ruleRepoPG) ListRulesFor(ctx context.Context, doctorID, clinicID uuid.UUID, weekday time.Weekday) ([]*RecurringRule, error) {
	return r.list(ctx, `SELECT `+ruleCols+` FROM recurring_rule
		WHERE doctor_id = $1 AND clinic_id = $2 AND day_of_week = $3
		ORDER BY start_minute, id`, doctorID, clinicID, int(weekday))
}

func (r *ruleRepoPG) ListByDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) ([]*RecurringRule, error) {
	return r.list(ctx, `SELECT `+ruleCols+` FROM recurring_rule
		WHERE doctor_id = $1 AND clinic_id = $2
		ORDER BY day_of_week, start_minute, id`, doctorID, clinicID)
}

func (r *ruleRepoPG) list(ctx context.Context, query string, args ...any) ([]*RecurringRule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring rules: %w", err)
	}
	defer rows.Close()
	items := []*RecurringRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ db queryable }

// NewExceptionRepoPG returns an ExceptionRepository backed by PostgreSQL.
func NewExceptionRepoPG(db queryable) ExceptionRepository { return &exceptionRepoPG{db: db} }

const exceptionCols = `id, doctor_id, clinic_id, exception_date, start_minute, end_minute,
	reason, is_modified_session, max_patients, minutes_per_patient, created_at`

func scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	var start, end int
	err := row.Scan(&e.ID, &e.DoctorID, &e.ClinicID, &e.Date, &start, &end,
		&e.Reason, &e.IsModifiedSession, &e.MaxPatients, &e.MinutesPerPatient, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.StartTime, e.EndTime = TimeOfDay(start), TimeOfDay(end)
	e.Date = DateOf(e.Date)
	return &e, nil
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *Exception) error {
	e.ID = uuid.New()
	e.Date = DateOf(e.Date)
	err := r.db.QueryRow(ctx, `
		INSERT INTO availability_exception (id, doctor_id, clinic_id, exception_date, start_minute, end_minute,
			reason, is_modified_session, max_patients, minutes_per_patient)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		e.ID, e.DoctorID, e.ClinicID, e.Date, int(e.StartTime), int(e.EndTime),
		e.Reason, e.IsModifiedSession, e.MaxPatients, e.MinutesPerPatient).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

func (r *exceptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exception, error) {
	e, err := scanException(r.db.QueryRow(ctx, `SELECT `+exceptionCols+` FROM availability_exception WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	return e, err
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM availability_exception WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func (r *exceptionRepoPG) ListExceptionsFor(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) ([]*Exception, error) {
	return r.list(ctx, `SELECT `+exceptionCols+` FROM availability_exception
		WHERE doctor_id = $1 AND clinic_id = $2 AND exception_date = $3
		ORDER BY start_minute, created_at, id`, doctorID, clinicID, DateOf(date))
}

func (r *exceptionRepoPG) ListBetween(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]*Exception, error) {
	return r.list(ctx, `SELECT `+exceptionCols+` FROM availability_exception
		WHERE doctor_id = $1 AND clinic_id = $2 AND exception_date BETWEEN $3 AND $4
		ORDER BY exception_date, start_minute, id`, doctorID, clinicID, DateOf(from), DateOf(to))
}

func (r *exceptionRepoPG) list(ctx context.Context, query string, args ...any) ([]*Exception, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()
	items := []*Exception{}
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
