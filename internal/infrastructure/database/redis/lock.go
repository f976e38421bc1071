package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

// Lease is a named mutex shared by every process talking to the same Redis.
// Index writers hold one while rebuilding so two workers never write the same
// index concurrently.
type Lease struct {
	client *Client
	key    string
	value  string
	config leaseConfig
	logger logging.Logger

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

type LeaseOption func(*leaseConfig)

func WithLeaseTTL(ttl time.Duration) LeaseOption {
	return func(c *leaseConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LeaseOption {
	return func(c *leaseConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LeaseOption {
	return func(c *leaseConfig) { c.retryCount = count }
}

// WithWatchdog keeps extending the lease until Release.
func WithWatchdog(enabled bool) LeaseOption {
	return func(c *leaseConfig) { c.watchdogEnabled = enabled }
}

type leaseConfig struct {
	ttl              time.Duration
	retryDelay       time.Duration
	retryCount       int
	watchdogEnabled  bool
	watchdogInterval time.Duration
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func NewLease(client *Client, name string, log logging.Logger, opts ...LeaseOption) *Lease {
	cfg := leaseConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.watchdogInterval = cfg.ttl / 3
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Lease{
		client: client,
		key:    LeaseKey(name),
		value:  uuid.New().String(),
		config: cfg,
		logger: log,
	}
}

// LeaseKey is the Redis key guarding name.
func LeaseKey(name string) string {
	return "fpindex:lease:" + name
}

// Acquire retries until the lease is held, the retries run out or ctx ends.
func (l *Lease) Acquire(ctx context.Context) error {
	for i := 0; i < l.config.retryCount; i++ {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.config.retryDelay):
		}
	}
	return ErrLockNotAcquired.WithDetailf("key=%s", l.key)
}

func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.config.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lease")
	}
	if ok && l.config.watchdogEnabled {
		l.startWatchdog()
	}
	return ok, nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.stopWatchdog()
	res, err := releaseScript.Run(ctx, l.client.Scripter(), []string{l.key}, l.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lease")
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetailf("key=%s", l.key)
	}
	return nil
}

func (l *Lease) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, l.client.Scripter(), []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *Lease) TTL(ctx context.Context) (time.Duration, error) {
	return l.client.PTTL(ctx, l.key).Result()
}

func (l *Lease) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	l.watchdogCancel = cancel
	l.watchdogDone = make(chan struct{})
	go l.runWatchdog(ctx)
}

func (l *Lease) stopWatchdog() {
	if l.watchdogCancel != nil {
		l.watchdogCancel()
		<-l.watchdogDone
		l.watchdogCancel = nil
	}
}

func (l *Lease) runWatchdog(ctx context.Context) {
	defer close(l.watchdogDone)
	ticker := time.NewTicker(l.config.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Extend(ctx, l.config.ttl)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Error("lease watchdog failed to extend", logging.String("key", l.key), logging.Err(err))
				}
				return
			}
			if !ok {
				l.logger.Warn("lease lost", logging.String("key", l.key))
				return
			}
		}
	}
}

//Personal.AI order the ending
