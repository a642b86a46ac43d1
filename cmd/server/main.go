// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-deadreckon/pkg/api"
	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/engine"
	"github.com/opd-ai/go-deadreckon/pkg/event"
	"github.com/opd-ai/go-deadreckon/pkg/health"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/metrics"
	"github.com/opd-ai/go-deadreckon/pkg/ratelimit"
	"github.com/opd-ai/go-deadreckon/pkg/sink"
)

// sinkQueueSize bounds the states waiting to be written to Redis.
const sinkQueueSize = 4096

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "deadreckon.yaml", "Path to model configuration file (.yaml or .json)")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", *configPath,
		)
		return
	}

	envConfig, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Invalid environment configuration", err)
		os.Exit(1)
	}

	if envConfig.LogFile != "" {
		fileLogger, closer := logging.NewFileLogger(envConfig.LogFile)
		defer closer.Close()
		logger = fileLogger
	}

	modelConfig, err := loadModelConfig(ctx, logger, *configPath)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err,
			"config_path", *configPath,
		)
		os.Exit(1)
	}

	if err := run(logger, modelConfig, envConfig); err != nil {
		logger.Error(ctx, "Server stopped with error", err)
		os.Exit(1)
	}
}

func loadModelConfig(ctx context.Context, logger *logging.Logger, path string) (*config.ModelConfig, error) {
	var modelConfig *config.ModelConfig

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", path,
		)
		modelConfig = config.DefaultConfig()
	} else {
		modelConfig, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnvironmentOverrides(modelConfig); err != nil {
		return nil, err
	}
	return modelConfig, nil
}

func run(logger *logging.Logger, modelConfig *config.ModelConfig, envConfig *config.EnvironmentConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := event.NewEventBus()
	eng := engine.NewEngine(modelConfig, bus, logger)

	registry := prometheus.NewRegistry()
	var gatherer prometheus.Gatherer
	if envConfig.EnableMetrics {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.NewCollector(registry).Attach(bus)
		gatherer = registry
	}

	healthChecker := health.NewHealthChecker()
	healthChecker.AddCheck(health.NewEngineHealthCheck(eng.Running))
	healthChecker.AddCheck(health.NewMemoryHealthCheck(int64(envConfig.MaxMemoryMB), nil))

	g, gctx := errgroup.WithContext(ctx)

	if envConfig.RedisAddr != "" {
		redisPublisher := sink.NewRedisPublisher(envConfig)
		defer redisPublisher.Close()

		if err := redisPublisher.Ping(ctx); err != nil {
			// The breaker absorbs the outage; readiness reports it.
			logger.Warn(ctx, "Redis not reachable at startup",
				"address", envConfig.RedisAddr,
				"error", err.Error(),
			)
		}

		breaker := sink.NewBreakerPublisher(redisPublisher, envConfig, logger)
		healthChecker.AddCheck(health.NewSinkHealthCheck(breaker.State))

		forwarder := sink.NewForwarder(breaker, logger, sinkQueueSize)
		forwarder.Attach(bus)
		g.Go(func() error {
			err := forwarder.Run(gctx)
			delivered, failed, dropped := forwarder.Stats()
			logger.Info(ctx, "State sink stopped",
				"delivered", delivered,
				"failed", failed,
				"dropped", dropped,
			)
			return err
		})
	}

	limiter := ratelimit.New(envConfig.RateLimitRequests, envConfig.RateLimitWindow)
	defer limiter.Close()

	apiServer := &http.Server{
		Addr: envConfig.ListenAddress(),
		Handler: api.NewServer(eng, api.Options{
			Logger:   logger,
			Limiter:  limiter,
			Gatherer: gatherer,
			Models:   modelConfig,
		}).Handler(),
		ReadTimeout:  envConfig.ReadTimeout,
		WriteTimeout: envConfig.WriteTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", healthChecker.LivenessHandler)
	healthMux.HandleFunc("/ready", healthChecker.ReadinessHandler)
	healthServer := &http.Server{
		Addr:         envConfig.HealthAddress(),
		Handler:      healthMux,
		ReadTimeout:  envConfig.ReadTimeout,
		WriteTimeout: envConfig.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info(ctx, "Starting propagation loop",
			"tick_hz", modelConfig.TickHz,
			"step_seconds", modelConfig.StepSeconds,
			"classes", modelConfig.ClassNames(),
		)
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return serve(gctx, logger, "api", apiServer, envConfig)
	})
	g.Go(func() error {
		return serve(gctx, logger, "health", healthServer, envConfig)
	})

	err := g.Wait()
	logger.Info(ctx, "Server stopped", "ticks", eng.Ticks(), "bodies", len(eng.Bodies()))
	return err
}

// serve runs srv until ctx is done, then shuts it down within the configured
// grace period.
func serve(ctx context.Context, logger *logging.Logger, name string, srv *http.Server, envConfig *config.EnvironmentConfig) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Starting HTTP server", "server", name, "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return logging.WrapError(err, "%s server failed", name)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down HTTP server", "server", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), envConfig.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
