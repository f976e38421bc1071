// API server entry point for the fingerprint index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/KeyIP-FPIndex/internal/bootstrap"
	"github.com/turtacn/KeyIP-FPIndex/internal/config"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FPIndex/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger.Info("starting fingerprint index API server",
		logging.String("version", version),
		logging.String("commit", commit),
		logging.String("backend", cfg.Index.Backend),
		logging.Int("port", cfg.Server.Port))

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

	if _, statErr := os.Stat(configPath); statErr == nil {
		config.Watch(configPath, func(next *config.Config) {
			if logging.SetLevel(logger, next.Log.Level) {
				logger.Info("log level reloaded", logging.String("level", next.Log.Level))
			}
		})
	}

	routerCfg := httpserver.RouterConfig{
		SearchHandler: handlers.NewSearchHandler(rt.Service, logger, cfg.Server.MaxBodySize),
		IndexHandler:  handlers.NewIndexHandler(rt.Service, rt.Source, logger, cfg.Server.MaxBodySize),
		HealthHandler: handlers.NewHealthHandler(version, rt.Metrics, rt.HealthCheckers()...),
		APIKeyAuth:    middleware.NewAPIKeyAuth(cfg.Server.APIKeys, logger),
		Logger:        logger,
		Metrics:       rt.Metrics,
	}
	if cfg.Server.RateLimit.Enabled {
		routerCfg.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		})
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = rt.Collector
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	go rt.RunSnapshots(ctx)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, httpserver.NewRouter(routerCfg), logger)

	err = srv.Run(ctx)
	logger.Info("API server stopped")
	return err
}

// loadConfig reads path when it exists and falls back to the environment.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

//Personal.AI order the ending
