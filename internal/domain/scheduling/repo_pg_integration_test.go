//go:build integration

package scheduling

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/booking/internal/platform/db"
	"github.com/clinic/booking/internal/platform/lock"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/domain/scheduling/
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url, 20, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.NewMigrator(pool, db.Migrations, "migrations").Up(ctx)
	require.NoError(t, err)
	return pool
}

func TestPostgres_ConcurrentAllocationWithoutLock(t *testing.T) {
	const n, k = 30, 6
	pool := newTestPool(t)
	repo := NewAppointmentRepoPG(pool)
	a := NewAllocator(repo, lock.Noop{}, nil, zerolog.Nop(), k+1)
	session := capacitySession(k)

	numbers, errs := runConcurrent(t, a, session, n)
	assertExactlyK(t, numbers, errs, k, n)

	tally, err := repo.Tally(context.Background(), session.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(k), tally.Active)
	assert.Equal(t, int64(k), tally.LastNumber)
}

func TestPostgres_CancelThenRebook(t *testing.T) {
	pool := newTestPool(t)
	repo := NewAppointmentRepoPG(pool)
	ledger := NewLedger(repo, nil, zerolog.Nop(), 3)
	a := NewAllocator(repo, lock.NewKeyedMutex(), nil, zerolog.Nop(), 3)
	session := capacitySession(1)
	ctx := context.Background()

	first, err := a.Allocate(ctx, session, patient("A"), FeeSnapshot{DoctorFee: 500}, "")
	require.NoError(t, err)
	_, err = a.Allocate(ctx, session, patient("B"), FeeSnapshot{}, "")
	require.ErrorIs(t, err, ErrSessionFull)

	_, err = ledger.Transition(ctx, first.Appointment.ID, StatusCancelled)
	require.NoError(t, err)

	second, err := a.Allocate(ctx, session, patient("B"), FeeSnapshot{}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Appointment.AppointmentNumber)

	listed, err := repo.ListBySession(ctx, session.Key)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	stored, err := repo.GetByID(ctx, first.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
	assert.Equal(t, int64(500), stored.Fees.DoctorFee)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
