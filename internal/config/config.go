// Package config defines all configuration structures for the KeyIP-FPIndex
// service.  No I/O or parsing logic lives here — only plain data types and
// validation.
package config

import (
	"time"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// Index backends.
const (
	BackendLocal      = "local"
	BackendOpenSearch = "opensearch"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKeys guard the mutating endpoints. Empty leaves them open.
	APIKeys   []string        `mapstructure:"api_keys"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds the request rate per client address.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AlgorithmConfig names a fingerprint algorithm and its parameters. A nil
// parameter is left to the algorithm's default.
type AlgorithmConfig struct {
	Algorithm         string `mapstructure:"algorithm"`
	NumBits           *int   `mapstructure:"num_bits"`
	Radius            *int   `mapstructure:"radius"`
	TorsionPathLength *int   `mapstructure:"torsion_path_length"`
	MinPath           *int   `mapstructure:"min_path"`
	MaxPath           *int   `mapstructure:"max_path"`
	LayerFlags        *int   `mapstructure:"layer_flags"`
}

// Raw converts the configured parameters into the registry's parameter bag.
func (a AlgorithmConfig) Raw() fingerprint.RawParameters {
	val := func(p *int) int {
		if p == nil {
			return fingerprint.Unset
		}
		return *p
	}
	return fingerprint.RawParameters{
		NumBits:           val(a.NumBits),
		Radius:            val(a.Radius),
		TorsionPathLength: val(a.TorsionPathLength),
		MinPath:           val(a.MinPath),
		MaxPath:           val(a.MaxPath),
		LayerFlags:        val(a.LayerFlags),
	}
}

// Settings resolves a through reg.
func (a AlgorithmConfig) Settings(reg *fingerprint.Registry) (fingerprint.Settings, error) {
	return reg.Specify(a.Algorithm, a.Raw())
}

// FingerprintConfig selects the structure and query fingerprint settings.
type FingerprintConfig struct {
	Structure AlgorithmConfig `mapstructure:"structure"`
	Query     AlgorithmConfig `mapstructure:"query"`
	Delimiter string          `mapstructure:"delimiter"`
	Sanitize  *bool           `mapstructure:"sanitize"`
	MaxAtoms  int             `mapstructure:"max_atoms"`
}

// SanitizeInput reports whether structures are sanitized before
// fingerprinting. It defaults to true.
func (f FingerprintConfig) SanitizeInput() bool {
	return f.Sanitize == nil || *f.Sanitize
}

// IndexConfig selects and tunes the index backend.
type IndexConfig struct {
	Backend        string `mapstructure:"backend"` // "local" | "opensearch"
	Dir            string `mapstructure:"dir"`
	BatchSize      int    `mapstructure:"batch_size"`
	FlushThreshold int    `mapstructure:"flush_threshold"`
	Workers        int    `mapstructure:"workers"`
	MaxHits        int    `mapstructure:"max_hits"`
	DefaultHits    int    `mapstructure:"default_hits"`
}

// OpenSearchConfig holds the remote index connection and index layout.
type OpenSearchConfig struct {
	opensearch.ClientConfig `mapstructure:",squash"`
	Index                   opensearch.IndexConfig `mapstructure:"index"`
}

// CacheConfig tunes the Redis fingerprint cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	AbsentTTL time.Duration `mapstructure:"absent_ttl"`
	Jitter    float64       `mapstructure:"jitter"`
}

// LeaseConfig tunes the distributed rebuild lease.
type LeaseConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Name       string        `mapstructure:"name"`
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RetryCount int           `mapstructure:"retry_count"`
}

// Neo4jConfig holds the molecule source connection and node layout.
type Neo4jConfig struct {
	neo4j.Neo4jConfig `mapstructure:",squash"`
	// Enabled wires the graph as the molecule source for rebuilds and
	// verification.
	Enabled  bool               `mapstructure:"enabled"`
	Source   neo4j.SourceConfig `mapstructure:"source"`
	PageSize int                `mapstructure:"page_size"`
}

// PostgresConfig holds the relational molecule source. At most one of neo4j
// and postgres may be enabled.
type PostgresConfig struct {
	postgres.PostgresConfig `mapstructure:",squash"`
	Enabled                 bool `mapstructure:"enabled"`
	// Migrate applies the embedded schema migrations on startup.
	Migrate  bool                  `mapstructure:"migrate"`
	Source   postgres.SourceConfig `mapstructure:"source"`
	PageSize int                   `mapstructure:"page_size"`
}

// KafkaConfig holds the molecule event pipeline settings.
type KafkaConfig struct {
	Enabled          bool                 `mapstructure:"enabled"`
	Brokers          []string             `mapstructure:"brokers"`
	AutoCreateTopics bool                 `mapstructure:"auto_create_topics"`
	Partitions       int                  `mapstructure:"partitions"`
	Replication      int                  `mapstructure:"replication"`
	Producer         kafka.ProducerConfig `mapstructure:"producer"`
	Consumer         kafka.ConsumerConfig `mapstructure:"consumer"`
}

// SnapshotConfig holds the MinIO snapshot store settings.
type SnapshotConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Keep     int               `mapstructure:"keep"`
	Interval time.Duration     `mapstructure:"interval"`
	MinIO    minio.MinIOConfig `mapstructure:"minio"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	prometheus.CollectorConfig `mapstructure:",squash"`
	Enabled                    bool   `mapstructure:"enabled"`
	Path                       string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.  It is populated by Load /
// LoadFromEnv and must be validated via Validate() before use.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         logging.LogConfig `mapstructure:"log"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint"`
	Index       IndexConfig       `mapstructure:"index"`
	OpenSearch  OpenSearchConfig  `mapstructure:"opensearch"`
	Redis       redis.RedisConfig `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Lease       LeaseConfig       `mapstructure:"lease"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// FingerprintSettings resolves the structure and query settings through reg.
// The query may narrow path or radius parameters but keeps the structure's
// algorithm and length.
func (c *Config) FingerprintSettings(reg *fingerprint.Registry) (structure, query fingerprint.Settings, err error) {
	structure, err = c.Fingerprint.Structure.Settings(reg)
	if err != nil {
		return structure, query, errors.Wrap(err, errors.CodeInvalidSettings, "config: fingerprint.structure")
	}
	query, err = c.Fingerprint.Query.Settings(reg)
	if err != nil {
		return structure, query, errors.Wrap(err, errors.CodeInvalidSettings, "config: fingerprint.query")
	}
	if !structure.SharesBitSpace(query) {
		return structure, query, errors.New(errors.CodeIncompatibleSettings,
			"config: fingerprint.query must use the algorithm and num_bits of fingerprint.structure").
			WithDetailf("structure=%s query=%s", structure.Key(), query.Key())
	}
	return structure, query, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeValidation, "config: "+format, args...)
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerSecond <= 0 || rl.Burst < 1) {
		return invalid("server.rate_limit needs a positive requests_per_second and burst")
	}

	// Fingerprint
	if _, _, err := c.FingerprintSettings(fingerprint.DefaultRegistry()); err != nil {
		return err
	}
	if err := fingerprint.ValidateDelimiter(c.Fingerprint.Delimiter); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "config: fingerprint.delimiter")
	}

	// Index
	switch c.Index.Backend {
	case BackendLocal:
		if c.Index.Dir == "" {
			return invalid("index.dir is required for the local backend")
		}
	case BackendOpenSearch:
		if len(c.OpenSearch.Addresses) == 0 {
			return invalid("opensearch.addresses must contain at least one address")
		}
	default:
		return invalid("index.backend %q is invalid; expected local|opensearch", c.Index.Backend)
	}
	if c.Index.BatchSize < 1 {
		return invalid("index.batch_size must be ≥ 1, got %d", c.Index.BatchSize)
	}
	if c.Index.Workers < 1 {
		return invalid("index.workers must be ≥ 1, got %d", c.Index.Workers)
	}
	if c.Index.MaxHits < 1 {
		return invalid("index.max_hits must be ≥ 1, got %d", c.Index.MaxHits)
	}
	if c.Index.DefaultHits < 1 || c.Index.DefaultHits > c.Index.MaxHits {
		return invalid("index.default_hits %d is out of range [1, %d]", c.Index.DefaultHits, c.Index.MaxHits)
	}

	// Cache
	if c.Cache.Enabled {
		if c.Redis.Addr == "" && len(c.Redis.ClusterAddrs) == 0 && len(c.Redis.SentinelAddrs) == 0 {
			return invalid("redis.addr is required when cache.enabled is set")
		}
		if c.Cache.TTL <= 0 {
			return invalid("cache.ttl must be positive, got %s", c.Cache.TTL)
		}
		if c.Cache.Jitter < 0 || c.Cache.Jitter >= 1 {
			return invalid("cache.jitter %v is out of range [0, 1)", c.Cache.Jitter)
		}
	}

	// Lease
	if c.Lease.Enabled && c.Lease.TTL <= 0 {
		return invalid("lease.ttl must be positive, got %s", c.Lease.TTL)
	}

	// Molecule source
	if c.Neo4j.Enabled && c.Postgres.Enabled {
		return invalid("neo4j.enabled and postgres.enabled are mutually exclusive")
	}
	if c.Neo4j.Enabled && c.Neo4j.PageSize < 1 {
		return invalid("neo4j.page_size must be ≥ 1, got %d", c.Neo4j.PageSize)
	}
	if c.Postgres.Enabled {
		if c.Postgres.Database == "" {
			return invalid("postgres.database is required")
		}
		if c.Postgres.PageSize < 1 {
			return invalid("postgres.page_size must be ≥ 1, got %d", c.Postgres.PageSize)
		}
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Consumer.Brokers) == 0 {
			return invalid("kafka.consumer.brokers must contain at least one broker address")
		}
		if c.Kafka.Consumer.GroupID == "" {
			return invalid("kafka.consumer.group_id is required")
		}
	}

	// Snapshot
	if c.Snapshot.Enabled {
		if c.Index.Backend != BackendLocal {
			return invalid("snapshot.enabled requires the local index backend")
		}
		if c.Snapshot.MinIO.Endpoint == "" {
			return invalid("snapshot.minio.endpoint is required")
		}
		if c.Snapshot.Keep < 1 {
			return invalid("snapshot.keep must be ≥ 1, got %d", c.Snapshot.Keep)
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return invalid("metrics.namespace is required")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
