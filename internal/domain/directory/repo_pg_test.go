package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoPG_GetDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepoPG(mock)
	id := uuid.New()
	days := 15

	mock.ExpectQuery("SELECT id, name, booking_visible_days FROM doctor").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "booking_visible_days"}).AddRow(id, "Dr. Rao", &days))

	d, err := repo.GetDoctor(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", d.Name)
	assert.Equal(t, 15, *d.BookingVisibleDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepoPG(mock)

	mock.ExpectQuery("FROM clinic").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetClinic(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("FROM fee_config").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetFeeConfig(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoPG_StoreError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepoPG(mock)
	boom := errors.New("connection refused")

	mock.ExpectQuery("FROM doctor").WillReturnError(boom)
	_, err = repo.GetDoctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}
