package config

import (
	"time"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/messaging/kafka"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 60 * time.Second
	DefaultServerMaxBodySize     = 32 << 20
	DefaultServerShutdownTimeout = 15 * time.Second
	DefaultRateLimitRPS          = 50
	DefaultRateLimitBurst        = 100

	DefaultStructureAlgorithm = string(fingerprint.AlgorithmPattern)
	DefaultMaxAtoms           = 256

	DefaultIndexBackend   = BackendLocal
	DefaultIndexDir       = "./data/index"
	DefaultBatchSize      = 10000
	DefaultFlushThreshold = 50000
	DefaultIndexWorkers   = 8
	DefaultMaxHits        = 10000
	DefaultHits           = 100

	DefaultOpenSearchAddr = "http://localhost:9200"

	DefaultRedisAddr      = "localhost:6379"
	DefaultCachePrefix    = "fp:"
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCacheAbsentTTL = 10 * time.Minute

	DefaultLeaseName       = "fpindex:rebuild"
	DefaultLeaseTTL        = 30 * time.Second
	DefaultLeaseRetryDelay = 500 * time.Millisecond

	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultNeo4jPageSize = 5000

	DefaultPostgresHost     = "localhost"
	DefaultPostgresPort     = 5432
	DefaultPostgresPageSize = 5000

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "fpindex-indexer"
	DefaultKafkaPartitions  = 6
	DefaultKafkaReplication = 1

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultSnapshotKeep  = 7

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "fpindex"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the service default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	// ── Fingerprint ───────────────────────────────────────────────────────────
	if cfg.Fingerprint.Structure.Algorithm == "" {
		cfg.Fingerprint.Structure.Algorithm = DefaultStructureAlgorithm
	}
	// The query side mirrors the structure side unless configured.
	if cfg.Fingerprint.Query.Algorithm == "" {
		cfg.Fingerprint.Query = cfg.Fingerprint.Structure
	}
	if cfg.Fingerprint.Delimiter == "" {
		cfg.Fingerprint.Delimiter = fingerprint.DefaultDelimiter
	}
	if cfg.Fingerprint.MaxAtoms == 0 {
		cfg.Fingerprint.MaxAtoms = DefaultMaxAtoms
	}

	// ── Index ─────────────────────────────────────────────────────────────────
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = DefaultIndexBackend
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = DefaultIndexDir
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = DefaultBatchSize
	}
	if cfg.Index.FlushThreshold == 0 {
		cfg.Index.FlushThreshold = DefaultFlushThreshold
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = DefaultIndexWorkers
	}
	if cfg.Index.MaxHits == 0 {
		cfg.Index.MaxHits = DefaultMaxHits
	}
	if cfg.Index.DefaultHits == 0 {
		cfg.Index.DefaultHits = DefaultHits
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if cfg.Index.Backend == BackendOpenSearch && len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}

	// ── Redis / Cache ─────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = DefaultCachePrefix
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.AbsentTTL == 0 {
		cfg.Cache.AbsentTTL = DefaultCacheAbsentTTL
	}

	// ── Lease ─────────────────────────────────────────────────────────────────
	if cfg.Lease.Name == "" {
		cfg.Lease.Name = DefaultLeaseName
	}
	if cfg.Lease.TTL == 0 {
		cfg.Lease.TTL = DefaultLeaseTTL
	}
	if cfg.Lease.RetryDelay == 0 {
		cfg.Lease.RetryDelay = DefaultLeaseRetryDelay
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.PageSize == 0 {
		cfg.Neo4j.PageSize = DefaultNeo4jPageSize
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = DefaultPostgresHost
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPostgresPort
	}
	if cfg.Postgres.PageSize == 0 {
		cfg.Postgres.PageSize = DefaultPostgresPageSize
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if len(cfg.Kafka.Producer.Brokers) == 0 {
		cfg.Kafka.Producer.Brokers = cfg.Kafka.Brokers
	}
	if len(cfg.Kafka.Consumer.Brokers) == 0 {
		cfg.Kafka.Consumer.Brokers = cfg.Kafka.Brokers
	}
	if cfg.Kafka.Consumer.GroupID == "" {
		cfg.Kafka.Consumer.GroupID = DefaultKafkaGroupID
	}
	if len(cfg.Kafka.Consumer.Topics) == 0 {
		cfg.Kafka.Consumer.Topics = []string{kafka.TopicMoleculeEvents}
	}
	if cfg.Kafka.Consumer.AutoOffsetReset == "" {
		cfg.Kafka.Consumer.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.Consumer.Retry.DeadLetterTopic == "" {
		cfg.Kafka.Consumer.Retry.DeadLetterTopic = kafka.TopicDeadLetterMolecule
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = DefaultKafkaPartitions
	}
	if cfg.Kafka.Replication == 0 {
		cfg.Kafka.Replication = DefaultKafkaReplication
	}

	// ── Snapshot ──────────────────────────────────────────────────────────────
	if cfg.Snapshot.MinIO.Endpoint == "" {
		cfg.Snapshot.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.Snapshot.Keep == 0 {
		cfg.Snapshot.Keep = DefaultSnapshotKeep
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// KafkaTopics returns the molecule topics sized by the configured partition
// count and replication factor.
func (c *Config) KafkaTopics() []kafka.TopicConfig {
	topics := kafka.DefaultTopics()
	for i := range topics {
		topics[i].NumPartitions = c.Kafka.Partitions
		topics[i].ReplicationFactor = c.Kafka.Replication
	}
	return topics
}

//Personal.AI order the ending
