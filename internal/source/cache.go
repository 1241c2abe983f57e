package source

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"spxreplay/internal/model"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores encoded batches.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisOptions configure the Redis batch cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials lazily; the first command establishes the connection.
func NewRedisCache(opts RedisOptions) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Ping verifies connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connections.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Cached serves batches from a cache and falls through to the wrapped source
// on a miss. Cache errors are logged and never fail a fetch.
type Cached struct {
	inner  Source
	cache  Cache
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps inner with a cache entry stored under prefix + inner.Name().
func NewCached(inner Source, cache Cache, prefix string, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		key:    prefix + inner.Name(),
		ttl:    ttl,
		logger: logger.With().Str("component", "batch_cache").Str("key", prefix+inner.Name()).Logger(),
	}
}

func (c *Cached) Name() string { return c.inner.Name() }

// Fetch returns the cached batch when present, otherwise fetches and stores it.
func (c *Cached) Fetch(ctx context.Context) (model.Batch, error) {
	data, err := c.cache.Get(ctx, c.key)
	switch {
	case err == nil:
		batch, decodeErr := DecodeBatch(data)
		if decodeErr == nil {
			c.logger.Debug().Int("records", len(batch)).Msg("cache hit")
			return batch, nil
		}
		c.logger.Warn().Err(decodeErr).Msg("discarding undecodable cache entry")
	case errors.Is(err, ErrCacheMiss):
	default:
		c.logger.Warn().Err(err).Msg("cache read failed")
	}

	batch, err := c.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := EncodeBatch(batch)
	if err != nil {
		c.logger.Warn().Err(err).Msg("batch not cacheable")
		return batch, nil
	}
	if err := c.cache.Set(ctx, c.key, encoded, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
	return batch, nil
}

var (
	_ Source = (*Cached)(nil)
	_ Cache  = (*RedisCache)(nil)
)
