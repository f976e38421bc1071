package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

var (
	ErrClientClosed     = errors.New(errors.ErrCodeInternal, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "redis connection failed")
)

const (
	ModeStandalone = "standalone"
	ModeSentinel   = "sentinel"
	ModeCluster    = "cluster"

	defaultDialTimeout = 5 * time.Second
)

// RedisConfig selects one of the standalone, sentinel or cluster topologies.
// Zero pool, timeout and retry values fall back to go-redis defaults.
type RedisConfig struct {
	Mode            string        `mapstructure:"mode"`
	Addr            string        `mapstructure:"addr"`
	MasterName      string        `mapstructure:"master_name"`
	SentinelAddrs   []string      `mapstructure:"sentinel_addrs"`
	ClusterAddrs    []string      `mapstructure:"cluster_addrs"`
	Password        string        `mapstructure:"password"`
	Username        string        `mapstructure:"username"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	MaxIdleTime     time.Duration `mapstructure:"max_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	TLSEnabled      bool          `mapstructure:"tls_enabled"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	TLSCAFile       string        `mapstructure:"tls_ca_file"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// addrs returns the seed addresses of the configured topology.
func (c *RedisConfig) addrs() []string {
	switch c.Mode {
	case ModeCluster:
		return c.ClusterAddrs
	case ModeSentinel:
		return c.SentinelAddrs
	default:
		if c.Addr == "" {
			return nil
		}
		return []string{c.Addr}
	}
}

func (c *RedisConfig) validate() error {
	switch c.Mode {
	case "", ModeStandalone, ModeCluster:
	case ModeSentinel:
		if c.MasterName == "" {
			return errors.InvalidParam("redis sentinel mode needs master_name")
		}
	default:
		return errors.InvalidParam("unknown redis mode").WithDetailf("mode=%q", c.Mode)
	}
	if len(c.addrs()) == 0 {
		return errors.InvalidParam("redis address is required").WithDetailf("mode=%q", c.Mode)
	}
	return nil
}

func (c *RedisConfig) universalOptions(tlsConfig *tls.Config) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:           c.addrs(),
		MasterName:      c.MasterName,
		DB:              c.DB,
		Username:        c.Username,
		Password:        c.Password,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxIdleTime: c.MaxIdleTime,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		TLSConfig:       tlsConfig,
		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: c.MinRetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,
	}
}

// Client wraps a go-redis client for the fingerprint cache and the rebuild
// lease. Once closed, every command fails with ErrClientClosed.
type Client struct {
	rdb    redis.UniversalClient
	logger logging.Logger
	closed atomic.Bool
}

func NewClient(cfg *RedisConfig, log logging.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("redis config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	opts := cfg.universalOptions(tlsConfig)
	var rdb redis.UniversalClient
	switch cfg.Mode {
	case ModeCluster:
		rdb = redis.NewClusterClient(opts.Cluster())
	case ModeSentinel:
		rdb = redis.NewFailoverClient(opts.Failover())
	default:
		rdb = redis.NewClient(opts.Simple())
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	log.Info("redis client connected",
		logging.String("mode", cfg.Mode),
		logging.Strings("addrs", opts.Addrs))
	return &Client{rdb: rdb, logger: log.Named("redis")}, nil
}

func buildTLSConfig(cfg *RedisConfig) (*tls.Config, error) {
	if !cfg.TLSEnabled {
		return nil, nil
	}
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.TLSInsecure}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load tls keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if cfg.TLSCAFile != "" {
		caCert, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Close is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close redis client", logging.Err(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

// open returns the underlying client, or nil once Close was called.
func (c *Client) open() redis.UniversalClient {
	if c.closed.Load() {
		return nil
	}
	return c.rdb
}

// refuse fails cmd with ErrClientClosed.
func refuse[C interface{ SetErr(error) }](cmd C) C {
	cmd.SetErr(ErrClientClosed)
	return cmd
}

// Scripter is the client lease scripts run against.
func (c *Client) Scripter() redis.Scripter {
	return c.rdb
}

func (c *Client) Ping(ctx context.Context) error {
	rdb := c.open()
	if rdb == nil {
		return ErrClientClosed
	}
	return rdb.Ping(ctx).Err()
}

// Pipeline queues commands for one round trip. Exec fails once closed.
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.Get(ctx, key)
	}
	return refuse(redis.NewStringCmd(ctx))
}

func (c *Client) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.MGet(ctx, keys...)
	}
	return refuse(redis.NewSliceCmd(ctx))
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.Set(ctx, key, value, expiration)
	}
	return refuse(redis.NewStatusCmd(ctx))
}

func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.SetNX(ctx, key, value, expiration)
	}
	return refuse(redis.NewBoolCmd(ctx))
}

func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.Del(ctx, keys...)
	}
	return refuse(redis.NewIntCmd(ctx))
}

func (c *Client) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.PTTL(ctx, key)
	}
	return refuse(redis.NewDurationCmd(ctx, time.Millisecond))
}

func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	if rdb := c.open(); rdb != nil {
		return rdb.Scan(ctx, cursor, match, count)
	}
	return refuse(redis.NewScanCmd(ctx, nil))
}

//Personal.AI order the ending
