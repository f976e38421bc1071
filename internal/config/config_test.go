package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// validConfig returns a Config that passes Validate() with defaults applied.
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func intPtr(v int) *int { return &v }

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"port zero", func(c *config.Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"unknown algorithm", func(c *config.Config) { c.Fingerprint.Structure.Algorithm = "maccs" }, "fingerprint.structure"},
		{"non-positive bits", func(c *config.Config) { c.Fingerprint.Query.NumBits = intPtr(0) }, "fingerprint.query"},
		{"morgan radius zero", func(c *config.Config) {
			c.Fingerprint.Structure = config.AlgorithmConfig{Algorithm: "morgan", Radius: intPtr(0)}
		}, "fingerprint.structure"},
		{"query length differs", func(c *config.Config) { c.Fingerprint.Query.NumBits = intPtr(1024) }, "fingerprint.query"},
		{"query algorithm differs", func(c *config.Config) {
			c.Fingerprint.Query = config.AlgorithmConfig{Algorithm: "morgan"}
		}, "fingerprint.query"},
		{"digit delimiter", func(c *config.Config) { c.Fingerprint.Delimiter = "1" }, "fingerprint.delimiter"},
		{"unknown backend", func(c *config.Config) { c.Index.Backend = "milvus" }, "index.backend"},
		{"local without dir", func(c *config.Config) { c.Index.Dir = "" }, "index.dir"},
		{"opensearch without addresses", func(c *config.Config) {
			c.Index.Backend = config.BackendOpenSearch
			c.OpenSearch.Addresses = nil
		}, "opensearch.addresses"},
		{"batch size", func(c *config.Config) { c.Index.BatchSize = -1 }, "index.batch_size"},
		{"workers", func(c *config.Config) { c.Index.Workers = -1 }, "index.workers"},
		{"default hits above max", func(c *config.Config) { c.Index.DefaultHits = c.Index.MaxHits + 1 }, "index.default_hits"},
		{"cache ttl", func(c *config.Config) {
			c.Cache.Enabled = true
			c.Cache.TTL = -1
		}, "cache.ttl"},
		{"lease ttl", func(c *config.Config) {
			c.Lease.Enabled = true
			c.Lease.TTL = 0
		}, "lease.ttl"},
		{"cache jitter", func(c *config.Config) {
			c.Cache.Enabled = true
			c.Cache.Jitter = 1
		}, "cache.jitter"},
		{"two molecule sources", func(c *config.Config) {
			c.Neo4j.Enabled = true
			c.Postgres.Enabled = true
			c.Postgres.Database = "chem"
		}, "mutually exclusive"},
		{"postgres database", func(c *config.Config) { c.Postgres.Enabled = true }, "postgres.database"},
		{"postgres page size", func(c *config.Config) {
			c.Postgres.Enabled = true
			c.Postgres.Database = "chem"
			c.Postgres.PageSize = -1
		}, "postgres.page_size"},
		{"neo4j page size", func(c *config.Config) {
			c.Neo4j.Enabled = true
			c.Neo4j.PageSize = -1
		}, "neo4j.page_size"},
		{"kafka group", func(c *config.Config) {
			c.Kafka.Enabled = true
			c.Kafka.Consumer.GroupID = ""
		}, "kafka.consumer.group_id"},
		{"snapshot on opensearch", func(c *config.Config) {
			c.Snapshot.Enabled = true
			c.Index.Backend = config.BackendOpenSearch
			c.OpenSearch.Addresses = []string{"http://localhost:9200"}
		}, "snapshot.enabled"},
		{"snapshot keep", func(c *config.Config) {
			c.Snapshot.Enabled = true
			c.Snapshot.Keep = -1
		}, "snapshot.keep"},
		{"metrics namespace", func(c *config.Config) {
			c.Metrics.Enabled = true
			c.Metrics.Namespace = ""
		}, "metrics.namespace"},
		{"log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "text" }, "log.format"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), err.Error())
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_FingerprintSettings(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Fingerprint.Structure = config.AlgorithmConfig{Algorithm: "morgan", NumBits: intPtr(1024)}
	cfg.Fingerprint.Query = config.AlgorithmConfig{Algorithm: "morgan", NumBits: intPtr(1024), Radius: intPtr(1)}

	structure, query, err := cfg.FingerprintSettings(fingerprint.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, fingerprint.AlgorithmMorgan, structure.Algorithm())
	assert.Equal(t, 1024, structure.NumBits())
	assert.Equal(t, fingerprint.DefaultMorganRadius, structure.Radius())
	assert.Equal(t, fingerprint.DefaultSettings(fingerprint.AlgorithmMorgan).WithNumBits(1024).WithRadius(1), query)
}

func TestConfig_FingerprintSettings_QueryOutsideStructureBitSpace(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Fingerprint.Structure = config.AlgorithmConfig{Algorithm: "pattern", NumBits: intPtr(2048)}
	cfg.Fingerprint.Query = config.AlgorithmConfig{Algorithm: "pattern", NumBits: intPtr(1024)}

	_, _, err := cfg.FingerprintSettings(fingerprint.DefaultRegistry())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeIncompatibleSettings))
	assert.Contains(t, err.Error(), "fingerprint.query")
}

func TestConfig_FingerprintSettings_UnknownAlgorithm(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Fingerprint.Query.Algorithm = "ecfp"
	_, _, err := cfg.FingerprintSettings(fingerprint.DefaultRegistry())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnresolvedAlgorithm))
}

func TestAlgorithmConfig_Raw(t *testing.T) {
	t.Parallel()

	raw := config.AlgorithmConfig{Algorithm: "torsion", NumBits: intPtr(512)}.Raw()
	assert.Equal(t, 512, raw.NumBits)
	assert.Equal(t, fingerprint.Unset, raw.Radius)
	assert.Equal(t, fingerprint.Unset, raw.TorsionPathLength)
}

func TestConfig_KafkaTopics(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Kafka.Partitions = 12
	cfg.Kafka.Replication = 2
	topics := cfg.KafkaTopics()
	require.Len(t, topics, 2)
	for _, topic := range topics {
		assert.Equal(t, 12, topic.NumPartitions)
		assert.Equal(t, 2, topic.ReplicationFactor)
	}
	assert.Equal(t, "compact", topics[0].CleanupPolicy)
}

func TestFingerprintConfig_SanitizeInput(t *testing.T) {
	t.Parallel()

	off := false
	assert.True(t, config.FingerprintConfig{}.SanitizeInput())
	assert.False(t, config.FingerprintConfig{Sanitize: &off}.SanitizeInput())
}

//Personal.AI order the ending
