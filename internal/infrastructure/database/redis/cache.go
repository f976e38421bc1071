package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

var (
	ErrCacheMiss = errors.New(errors.ErrCodeNotFound, "fingerprint cache miss")
)

// absentMarker records that the toolkit produced no fingerprint for a
// molecule, so wildcard structures are not re-parsed on every lookup.
const absentMarker = "__absent__"

// FingerprintCache stores computed fingerprints keyed by settings key and
// canonical molecule text. Entries are the fingerprint's binary form.
type FingerprintCache struct {
	client    *Client
	logger    logging.Logger
	prefix    string
	ttl       time.Duration
	absentTTL time.Duration
	jitter    float64
	group     singleflight.Group
}

type CacheOption func(*FingerprintCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *FingerprintCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *FingerprintCache) { c.ttl = ttl }
}

func WithAbsentTTL(ttl time.Duration) CacheOption {
	return func(c *FingerprintCache) { c.absentTTL = ttl }
}

// WithJitter spreads expirations by +/- fraction of the TTL. Zero disables it.
func WithJitter(fraction float64) CacheOption {
	return func(c *FingerprintCache) { c.jitter = fraction }
}

func NewFingerprintCache(client *Client, log logging.Logger, opts ...CacheOption) *FingerprintCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &FingerprintCache{
		client:    client,
		logger:    log.Named("fpcache"),
		prefix:    "fpindex:fp:",
		ttl:       24 * time.Hour,
		absentTTL: 10 * time.Minute,
		jitter:    0.1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FingerprintCache) key(s fingerprint.Settings, canonical string) string {
	return c.prefix + s.Key() + ":" + canonical
}

func (c *FingerprintCache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || c.jitter <= 0 {
		return ttl
	}
	delta := float64(ttl) * c.jitter * (rand.Float64()*2 - 1)
	return ttl + time.Duration(delta)
}

// Get returns the cached fingerprint. A cached absent result yields
// fingerprint.ErrAbsentFingerprint, nothing cached yields ErrCacheMiss.
func (c *FingerprintCache) Get(ctx context.Context, s fingerprint.Settings, canonical string) (*fingerprint.Fingerprint, error) {
	data, err := c.client.Get(ctx, c.key(s, canonical)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read fingerprint cache")
	}
	return decodeEntry(data, s)
}

func decodeEntry(data []byte, s fingerprint.Settings) (*fingerprint.Fingerprint, error) {
	if string(data) == absentMarker {
		return nil, fingerprint.ErrAbsentFingerprint
	}
	fp := &fingerprint.Fingerprint{}
	if err := fp.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "corrupt fingerprint cache entry")
	}
	if fp.NumBits() != s.NumBits() {
		return nil, ErrCacheMiss
	}
	return fp, nil
}

func (c *FingerprintCache) encodeEntry(fp *fingerprint.Fingerprint) (interface{}, time.Duration, error) {
	if fp == nil {
		return absentMarker, c.jitterTTL(c.absentTTL), nil
	}
	data, err := fp.MarshalBinary()
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode fingerprint")
	}
	return data, c.jitterTTL(c.ttl), nil
}

// Put stores fp. A nil fp records an absent result.
func (c *FingerprintCache) Put(ctx context.Context, s fingerprint.Settings, canonical string, fp *fingerprint.Fingerprint) error {
	value, ttl, err := c.encodeEntry(fp)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(s, canonical), value, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write fingerprint cache")
	}
	return nil
}

// GetMany looks up several molecules in one round trip. The result holds
// only hits; an absent result maps to a nil fingerprint.
func (c *FingerprintCache) GetMany(ctx context.Context, s fingerprint.Settings, canonicals []string) (map[string]*fingerprint.Fingerprint, error) {
	if len(canonicals) == 0 {
		return map[string]*fingerprint.Fingerprint{}, nil
	}
	keys := make([]string, len(canonicals))
	for i, cn := range canonicals {
		keys[i] = c.key(s, cn)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read fingerprint cache")
	}

	out := make(map[string]*fingerprint.Fingerprint, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		fp, err := decodeEntry([]byte(str), s)
		switch {
		case err == nil:
			out[canonicals[i]] = fp
		case errors.Is(err, fingerprint.ErrAbsentFingerprint):
			out[canonicals[i]] = nil
		default:
			c.logger.Warn("skipping unreadable cache entry", logging.String("key", keys[i]), logging.Err(err))
		}
	}
	return out, nil
}

// PutMany writes entries in one pipeline.
func (c *FingerprintCache) PutMany(ctx context.Context, s fingerprint.Settings, entries map[string]*fingerprint.Fingerprint) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for cn, fp := range entries {
		value, ttl, err := c.encodeEntry(fp)
		if err != nil {
			return err
		}
		pipe.Set(ctx, c.key(s, cn), value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write fingerprint cache")
	}
	return nil
}

// GetOrCompute returns the cached fingerprint or computes, stores and
// returns it. Concurrent callers for the same key share one computation.
// Read and write failures of the cache itself are logged and bypassed.
func (c *FingerprintCache) GetOrCompute(ctx context.Context, s fingerprint.Settings, canonical string,
	compute func(ctx context.Context) (*fingerprint.Fingerprint, error)) (*fingerprint.Fingerprint, error) {

	fp, err := c.Get(ctx, s, canonical)
	switch {
	case err == nil:
		return fp, nil
	case errors.Is(err, fingerprint.ErrAbsentFingerprint):
		return nil, err
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("fingerprint cache read failed", logging.Err(err))
	}

	key := c.key(s, canonical)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		computed, err := compute(ctx)
		if err != nil && !errors.Is(err, fingerprint.ErrAbsentFingerprint) {
			return nil, err
		}
		if putErr := c.Put(ctx, s, canonical, computed); putErr != nil {
			c.logger.Warn("fingerprint cache write failed", logging.String("key", key), logging.Err(putErr))
		}
		return computed, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*fingerprint.Fingerprint), nil
}

// Invalidate removes every entry computed with s.
func (c *FingerprintCache) Invalidate(ctx context.Context, s fingerprint.Settings) (int64, error) {
	var deleted int64
	var cursor uint64
	match := c.prefix + s.Key() + ":*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to scan fingerprint cache")
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete cache entries")
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("fingerprint cache invalidated", logging.String("settings", s.Key()), logging.Int64("deleted", deleted))
	return deleted, nil
}

func (c *FingerprintCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

//Personal.AI order the ending
