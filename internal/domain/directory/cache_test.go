package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo counts source lookups.
type countingRepo struct {
	*MemoryRepo
	doctorCalls int
}

func (c *countingRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	c.doctorCalls++
	return c.MemoryRepo.GetDoctor(ctx, id)
}

func newCached(t *testing.T) (*CachedRepo, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	src := &countingRepo{MemoryRepo: NewMemoryRepo()}
	return NewCachedRepo(src, client, time.Minute, zerolog.Nop()), src, mr
}

func TestCachedRepo_ReadThrough(t *testing.T) {
	cached, src, mr := newCached(t)
	ctx := context.Background()
	days := 15
	id := uuid.New()
	src.PutDoctor(Doctor{ID: id, Name: "Dr. Rao", BookingVisibleDays: &days})

	for i := 0; i < 3; i++ {
		d, err := cached.GetDoctor(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 15, *d.BookingVisibleDays)
	}
	assert.Equal(t, 1, src.doctorCalls)
	assert.True(t, mr.Exists("booking:directory:doctor:"+id.String()))

	mr.FastForward(2 * time.Minute)
	_, err := cached.GetDoctor(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, src.doctorCalls)
}

func TestCachedRepo_NotFoundIsNotCached(t *testing.T) {
	cached, src, mr := newCached(t)
	id := uuid.New()

	_, err := cached.GetDoctor(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("booking:directory:doctor:"+id.String()))

	src.PutDoctor(Doctor{ID: id})
	_, err = cached.GetDoctor(context.Background(), id)
	assert.NoError(t, err)
}

func TestCachedRepo_FeeConfigAlwaysFromSource(t *testing.T) {
	cached, src, mr := newCached(t)
	ctx := context.Background()
	doctor, clinic := uuid.New(), uuid.New()
	partner := int64(300)
	src.PutFeeConfig(FeeConfig{DoctorID: doctor, ClinicID: clinic, DoctorFee: 1000, PartnerFee: &partner})

	f, err := cached.GetFeeConfig(ctx, doctor, clinic)
	require.NoError(t, err)
	assert.Equal(t, int64(300), *f.PartnerFee)
	assert.Empty(t, mr.Keys())

	src.PutFeeConfig(FeeConfig{DoctorID: doctor, ClinicID: clinic, DoctorFee: 2000})
	f, err = cached.GetFeeConfig(ctx, doctor, clinic)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), f.DoctorFee)
}

func TestCachedRepo_RedisDownFallsBack(t *testing.T) {
	cached, src, mr := newCached(t)
	id := uuid.New()
	src.PutClinic(Clinic{ID: id, Name: "Central"})
	mr.Close()

	c, err := cached.GetClinic(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Central", c.Name)
}
