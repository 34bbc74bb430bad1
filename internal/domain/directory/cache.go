package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedRepo is a read-through Redis cache for doctor and clinic records in
// front of another Repository. Fee configs are never cached: every booking
// snapshots the fee in effect at that moment. Redis failures fall back to the
// source; not-found results are not cached.
type CachedRepo struct {
	source Repository
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

func NewCachedRepo(source Repository, client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedRepo {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedRepo{source: source, client: client, ttl: ttl, prefix: "booking:directory:", logger: logger}
}

func (c *CachedRepo) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return readThrough(ctx, c, "doctor:"+id.String(), func() (*Doctor, error) {
		return c.source.GetDoctor(ctx, id)
	})
}

func (c *CachedRepo) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return readThrough(ctx, c, "clinic:"+id.String(), func() (*Clinic, error) {
		return c.source.GetClinic(ctx, id)
	})
}

func (c *CachedRepo) GetFeeConfig(ctx context.Context, doctorID, clinicID uuid.UUID) (*FeeConfig, error) {
	return c.source.GetFeeConfig(ctx, doctorID, clinicID)
}

func readThrough[T any](ctx context.Context, c *CachedRepo, key string, load func() (*T, error)) (*T, error) {
	key = c.prefix + key
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable directory cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("directory cache read failed")
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("directory cache write failed")
		}
	}
	return v, nil
}
