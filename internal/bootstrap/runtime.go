// Package bootstrap assembles the fingerprint index runtime from
// configuration. Both the API server and the event worker start from here.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/search"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/chemistry"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/neo4j"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/index/local"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/handlers"
)

// Runtime holds the wired service and the infrastructure clients behind it.
type Runtime struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.FPMetrics
	Factory   *fingerprint.Factory
	Service   indexing.Service

	// Source is nil unless the graph source is enabled.
	Source molecule.Source
	// LocalIndex is nil for the opensearch backend.
	LocalIndex *local.Index

	checkers []handlers.HealthChecker
	closers  []closer
}

type closer struct {
	name string
	fn   func() error
}

func (r *Runtime) onClose(name string, fn func() error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

func (r *Runtime) check(name string, fn func(ctx context.Context) error) {
	r.checkers = append(r.checkers, handlers.CheckFunc{Component: name, Fn: fn})
}

// HealthCheckers returns one readiness check per wired dependency.
func (r *Runtime) HealthCheckers() []handlers.HealthChecker { return r.checkers }

// Close releases every client in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			r.Logger.Warn("close failed", logging.String("component", c.name), logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	r.closers = nil
	return stderrors.Join(errs...)
}

// New wires the runtime described by cfg. On error every client created so
// far is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Runtime, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	// ── Metrics ──
	r.Collector = prometheus.NopCollector()
	if cfg.Metrics.Enabled {
		r.Collector, err = prometheus.NewMetricsCollector(cfg.Metrics.CollectorConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		r.Metrics = prometheus.NewFPMetrics(r.Collector)
	}

	// ── Fingerprints ──
	reg := fingerprint.DefaultRegistry()
	structure, query, err := cfg.FingerprintSettings(reg)
	if err != nil {
		return nil, err
	}
	tk := chemistry.NewToolkit(logger, chemistry.WithMaxAtoms(cfg.Fingerprint.MaxAtoms))
	r.Factory, err = fingerprint.NewFactory(tk, reg, structure, query)
	if err != nil {
		return nil, err
	}

	opts := []indexing.Option{
		indexing.WithBackend(cfg.Index.Backend),
		indexing.WithBatchSize(cfg.Index.BatchSize),
		indexing.WithWorkers(cfg.Index.Workers),
		indexing.WithHitLimits(cfg.Index.DefaultHits, cfg.Index.MaxHits),
		indexing.WithSanitize(cfg.Fingerprint.SanitizeInput()),
		indexing.WithDelimiter(cfg.Fingerprint.Delimiter),
		indexing.WithMetrics(r.Metrics),
	}

	// ── Index backend ──
	writer, searcher, err := r.openIndex(ctx, structure)
	if err != nil {
		return nil, err
	}
	if r.LocalIndex != nil {
		opts = append(opts, indexing.WithLocalIndex(r.LocalIndex))
	}

	// ── Redis ──
	if cfg.Cache.Enabled || cfg.Lease.Enabled {
		redisOpts, err := r.openRedis()
		if err != nil {
			return nil, err
		}
		opts = append(opts, redisOpts...)
	}

	// ── Molecule source ──
	if cfg.Neo4j.Enabled {
		drv, err := neo4j.NewDriver(cfg.Neo4j.Neo4jConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("neo4j: %w", err)
		}
		r.onClose("neo4j", drv.Close)
		r.check("neo4j", drv.HealthCheck)

		src, err := neo4j.NewMoleculeSource(drv, cfg.Neo4j.Source, logger)
		if err != nil {
			return nil, fmt.Errorf("neo4j source: %w", err)
		}
		r.Source = src
		opts = append(opts,
			indexing.WithVerifier(indexing.NewSourceVerifier(src, r.Factory, cfg.Fingerprint.SanitizeInput(), logger)),
			indexing.WithPageSize(cfg.Neo4j.PageSize),
		)
	} else if cfg.Postgres.Enabled {
		conn, err := postgres.NewConnection(cfg.Postgres.PostgresConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		r.onClose("postgres", conn.Close)
		r.check("postgres", conn.HealthCheck)

		if cfg.Postgres.Migrate {
			if err := conn.Migrate(); err != nil {
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		src, err := postgres.NewMoleculeSource(conn, cfg.Postgres.Source, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres source: %w", err)
		}
		r.Source = src
		opts = append(opts,
			indexing.WithVerifier(indexing.NewSourceVerifier(src, r.Factory, cfg.Fingerprint.SanitizeInput(), logger)),
			indexing.WithPageSize(cfg.Postgres.PageSize),
		)
	}

	// ── Snapshots ──
	if cfg.Snapshot.Enabled {
		mc, err := minio.NewClient(&cfg.Snapshot.MinIO, logger)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		r.onClose("minio", mc.Close)
		r.check("minio", func(ctx context.Context) error {
			st, err := mc.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !st.Healthy {
				return stderrors.New(st.Error)
			}
			return nil
		})
		opts = append(opts, indexing.WithSnapshots(minio.NewSnapshotStore(mc, logger), cfg.Snapshot.Keep))
	}

	r.Service, err = indexing.NewService(r.Factory, writer, searcher, logger, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("runtime initialized",
		logging.String("backend", cfg.Index.Backend),
		logging.String("structure_settings", structure.Key()),
		logging.String("query_settings", query.Key()),
		logging.Bool("cache", cfg.Cache.Enabled),
		logging.Bool("lease", cfg.Lease.Enabled),
		logging.Bool("source", r.Source != nil),
		logging.Bool("snapshots", cfg.Snapshot.Enabled))
	return r, nil
}

func (r *Runtime) openIndex(ctx context.Context, settings fingerprint.Settings) (search.Writer, search.Searcher, error) {
	cfg := r.Config
	switch cfg.Index.Backend {
	case config.BackendOpenSearch:
		client, err := opensearch.NewClient(cfg.OpenSearch.ClientConfig, r.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opensearch: %w", err)
		}
		r.onClose("opensearch", client.Close)
		r.check("opensearch", client.Ping)

		idx := opensearch.NewIndex(client, cfg.OpenSearch.Index, settings, r.Logger)
		r.onClose("opensearch_index", idx.Close)
		if err := idx.EnsureIndex(ctx); err != nil {
			return nil, nil, err
		}
		return idx, idx, nil

	default:
		idx, err := local.Open(cfg.Index.Dir, settings, local.WithLogger(r.Logger))
		if err != nil {
			return nil, nil, err
		}
		r.LocalIndex = idx
		r.onClose("local_index", idx.Close)
		r.check("index", func(ctx context.Context) error {
			_, err := idx.NumDocs(ctx)
			return err
		})
		return idx, idx, nil
	}
}

func (r *Runtime) openRedis() ([]indexing.Option, error) {
	cfg := r.Config
	rc, err := redis.NewClient(&cfg.Redis, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	r.onClose("redis", rc.Close)
	r.check("redis", rc.Ping)

	var opts []indexing.Option
	if cfg.Cache.Enabled {
		cache := redis.NewFingerprintCache(rc, r.Logger,
			redis.WithPrefix(cfg.Cache.Prefix),
			redis.WithTTL(cfg.Cache.TTL),
			redis.WithAbsentTTL(cfg.Cache.AbsentTTL),
			redis.WithJitter(cfg.Cache.Jitter))
		opts = append(opts, indexing.WithCache(cache))
	}
	if cfg.Lease.Enabled {
		lease := redis.NewLease(rc, cfg.Lease.Name, r.Logger,
			redis.WithLeaseTTL(cfg.Lease.TTL),
			redis.WithRetryDelay(cfg.Lease.RetryDelay),
			redis.WithRetryCount(cfg.Lease.RetryCount),
			redis.WithWatchdog(true))
		opts = append(opts, indexing.WithLease(lease))
	}
	return opts, nil
}

// RunSnapshots saves a snapshot every snapshot.interval until ctx is done.
// It returns immediately when snapshots or the interval are not configured.
func (r *Runtime) RunSnapshots(ctx context.Context) {
	interval := r.Config.Snapshot.Interval
	if !r.Config.Snapshot.Enabled || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := r.Service.Snapshot(ctx, "")
			if err != nil {
				r.Logger.Error("scheduled snapshot failed", logging.Err(err))
				continue
			}
			r.Logger.Info("scheduled snapshot saved",
				logging.String("name", snap.Name),
				logging.Uint64("generation", snap.Generation))
		}
	}
}

//Personal.AI order the ending
