// Worker entry point: consumes molecule change events from Kafka and applies
// them to the fingerprint index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/KeyIP-FPIndex/internal/bootstrap"
	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/handlers"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultHealthPort = 8081
	statsInterval     = time.Minute
)

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	healthPort := flag.Int("health-port", defaultHealthPort, "port of the health and metrics endpoints")
	flag.Parse()

	if err := run(*configPath, *healthPort); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled is false; the worker has nothing to consume")
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger = logger.Named("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Error("runtime shutdown", logging.Err(cerr))
		}
	}()

	if cfg.Kafka.AutoCreateTopics {
		tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return err
		}
		err = tm.EnsureTopics(ctx, cfg.KafkaTopics())
		_ = tm.Close()
		if err != nil {
			return err
		}
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka.Consumer, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()
	consumer.Subscribe(kafka.TopicMoleculeEvents, kafka.MoleculeEventHandler(rt.Service.HandleMoleculeEvent))
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	go rt.RunSnapshots(ctx)
	go logConsumerStats(ctx, consumer, logger)

	health := handlers.NewHealthHandler(version, rt.Metrics, rt.HealthCheckers()...)
	r := chi.NewRouter()
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, rt.Collector.Handler())
	}

	logger.Info("worker started",
		logging.String("topic", kafka.TopicMoleculeEvents),
		logging.String("group", cfg.Kafka.Consumer.GroupID),
		logging.Int("health_port", healthPort))

	srv := httpserver.NewServer(httpserver.ServerConfig{Port: healthPort, ShutdownTimeout: cfg.Server.ShutdownTimeout}, r, logger)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("worker stopped", logging.Int64("consumed", consumer.Stats().Consumed))
	return nil
}

func logConsumerStats(ctx context.Context, c *kafka.Consumer, logger logging.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.Stats()
			logger.Info("consumer stats",
				logging.Int64("consumed", st.Consumed),
				logging.Int64("processed", st.Processed),
				logging.Int64("failed", st.Failed),
				logging.Int64("retried", st.Retried),
				logging.Int64("dead_lettered", st.DeadLettered),
				logging.Int64("lag", st.Lag))
		}
	}
}

//Personal.AI order the ending
