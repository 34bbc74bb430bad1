package scheduling

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusCheckedIn, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusCheckedIn, StatusCompleted, true},
		{StatusCheckedIn, StatusNoShow, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusScheduled, StatusScheduled, false},
		{StatusCheckedIn, StatusCancelled, false},
		{StatusCheckedIn, StatusScheduled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusNoShow, StatusCheckedIn, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
	for _, to := range []Status{StatusScheduled, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.False(t, CanTransition(StatusCancelled, to), "cancelled -> %s", to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.True(t, IsTerminal(StatusNoShow))
	assert.False(t, IsTerminal(StatusScheduled))
	assert.False(t, IsTerminal(StatusCheckedIn))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Checked_In ")
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, s)

	_, err = ParseStatus("rescheduled")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func seedAppointment(t *testing.T, repo *MemoryLedger, session ResolvedSession) *Appointment {
	t.Helper()
	a := NewAllocator(repo, nil, nil, zerolog.Nop(), 3)
	alloc, err := a.Allocate(context.Background(), session, patient("P"), FeeSnapshot{}, "")
	require.NoError(t, err)
	return alloc.Appointment
}

func TestLedger_HappyPath(t *testing.T) {
	repo := NewMemoryLedger()
	l := NewLedger(repo, nil, zerolog.Nop(), 3)
	appt := seedAppointment(t, repo, capacitySession(5))
	ctx := context.Background()

	got, err := l.Transition(ctx, appt.ID, StatusCheckedIn)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, got.Status)
	assert.Equal(t, int64(2), got.Version)

	got, err = l.Transition(ctx, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	_, err = l.Transition(ctx, appt.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorContains(t, err, "already completed")
}

func TestLedger_SkipCheckInRejected(t *testing.T) {
	repo := NewMemoryLedger()
	l := NewLedger(repo, nil, zerolog.Nop(), 3)
	appt := seedAppointment(t, repo, capacitySession(5))

	_, err := l.Transition(context.Background(), appt.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
}

func TestLedger_NotFound(t *testing.T) {
	l := NewLedger(NewMemoryLedger(), nil, zerolog.Nop(), 3)
	_, err := l.Transition(context.Background(), uuid.New(), StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestLedger_CancelReleasesCapacityOnce(t *testing.T) {
	repo := NewMemoryLedger()
	l := NewLedger(repo, nil, zerolog.Nop(), 3)
	session := capacitySession(5)
	appt := seedAppointment(t, repo, session)
	ctx := context.Background()

	_, err := l.Transition(ctx, appt.ID, StatusCancelled)
	require.NoError(t, err)
	_, err = l.Transition(ctx, appt.ID, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	tally, err := repo.Tally(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tally.Active)
	assert.Equal(t, int64(1), tally.LastNumber)
}

func TestLedger_NoShowKeepsCapacity(t *testing.T) {
	repo := NewMemoryLedger()
	l := NewLedger(repo, nil, zerolog.Nop(), 3)
	session := capacitySession(5)
	appt := seedAppointment(t, repo, session)

	_, err := l.Transition(context.Background(), appt.ID, StatusNoShow)
	require.NoError(t, err)

	tally, err := repo.Tally(context.Background(), session.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tally.Active)
}

// Writers racing on one appointment never overwrite each other; losers
// re-read the new status and are rejected when the move is no longer legal.
func TestLedger_ConcurrentTransitionsSerialize(t *testing.T) {
	repo := NewMemoryLedger()
	l := NewLedger(repo, nil, zerolog.Nop(), 10)
	appt := seedAppointment(t, repo, capacitySession(5))

	targets := []Status{StatusCancelled, StatusCheckedIn, StatusNoShow, StatusCancelled, StatusCheckedIn}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     []Status
		rejected int
	)
	for _, to := range targets {
		wg.Add(1)
		go func(to Status) {
			defer wg.Done()
			_, err := l.Transition(context.Background(), appt.ID, to)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins = append(wins, to)
				return
			}
			if assert.ErrorIs(t, err, ErrInvalidTransition) {
				rejected++
			}
		}(to)
	}
	wg.Wait()

	stored, err := repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, len(targets), len(wins)+rejected)
	assert.Contains(t, wins, stored.Status)
	// The only legal chain longer than one step here is checked_in -> no_show.
	switch len(wins) {
	case 1:
	case 2:
		assert.ElementsMatch(t, []Status{StatusCheckedIn, StatusNoShow}, wins)
		assert.Equal(t, StatusNoShow, stored.Status)
	default:
		t.Fatalf("unexpected winners %v", wins)
	}
}
