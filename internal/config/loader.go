// Package config provides configuration loading, defaults, and validation for
// the KeyIP-FPIndex service.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// envPrefix is the environment variable prefix used by all service settings.
const envPrefix = "FPINDEX"

// envKeys are bound explicitly so that Unmarshal sees them even when no
// config file mentions the key.
var envKeys = []string{
	"server.host", "server.port", "server.api_keys", "server.rate_limit.enabled",
	"log.level", "log.format",
	"fingerprint.structure.algorithm", "fingerprint.structure.num_bits",
	"fingerprint.structure.radius", "fingerprint.structure.torsion_path_length",
	"fingerprint.query.algorithm", "fingerprint.query.num_bits",
	"fingerprint.delimiter", "fingerprint.sanitize",
	"index.backend", "index.dir", "index.batch_size", "index.workers",
	"index.max_hits", "index.default_hits",
	"opensearch.addresses", "opensearch.username", "opensearch.password",
	"opensearch.index.index_name",
	"redis.addr", "redis.password", "redis.db",
	"cache.enabled", "cache.ttl", "cache.absent_ttl", "lease.enabled",
	"neo4j.enabled", "neo4j.uri", "neo4j.username", "neo4j.password", "neo4j.database",
	"postgres.enabled", "postgres.host", "postgres.port", "postgres.database",
	"postgres.username", "postgres.password", "postgres.migrate",
	"kafka.enabled", "kafka.brokers", "kafka.consumer.group_id",
	"snapshot.enabled", "snapshot.keep",
	"snapshot.minio.endpoint", "snapshot.minio.access_key_id",
	"snapshot.minio.secret_access_key", "snapshot.minio.bucket",
	"metrics.enabled", "metrics.namespace",
}

// newViper builds a pre-configured Viper instance with the service's standard
// settings: YAML file type, FPINDEX_ env prefix, automatic env binding, and a
// key replacer that maps "." → "_" so that nested keys like "index.dir"
// resolve to "FPINDEX_INDEX_DIR".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges any FPINDEX_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeValidation, "config: failed to read config file %q", configPath)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from FPINDEX_* environment variables,
// with no config file required.
//
// Environment variable naming convention:
//
//	FPINDEX_<SECTION>_<FIELD>   e.g.  FPINDEX_INDEX_DIR, FPINDEX_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "config: failed to unmarshal configuration")
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  Only the log level is
// safe to apply at runtime; index and fingerprint settings require a restart.
//
// If the changed file fails to parse or validate, onChange is NOT called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; callers should call Load first.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad is a convenience wrapper around Load that panics on any error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

//Personal.AI order the ending
