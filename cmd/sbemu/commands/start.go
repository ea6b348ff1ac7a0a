package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/internal/telemetry"
	"github.com/oladejiayo/localzure/pkg/api"
	"github.com/oladejiayo/localzure/pkg/broker"
	"github.com/oladejiayo/localzure/pkg/broker/ratelimit"
	"github.com/oladejiayo/localzure/pkg/config"
	"github.com/oladejiayo/localzure/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/oladejiayo/localzure/pkg/metrics/prometheus"
)

var watchConfig bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the emulator",
	Long: `Start the emulator with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/sbemu/config.yaml. With no config
file at all the emulator runs on built-in defaults.

Examples:
  # Start with defaults
  sbemu start

  # Start with custom config file
  sbemu start --config /etc/sbemu/config.yaml

  # Reload rate limits and log level on config file changes
  sbemu start --watch

  # Start with environment variable overrides
  SBEMU_LOGGING_LEVEL=DEBUG sbemu start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&watchConfig, "watch", false, "Reload log level and rate limits when the config file changes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "sbemu",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Profiling.Enabled,
		ServiceName:    "sbemu",
		ServiceVersion: Version,
		Endpoint:       cfg.Profiling.Endpoint,
		ProfileTypes:   cfg.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Profiling.Endpoint, "profile_types", cfg.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST so the broker picks up a live sink
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	// Create the broker engine
	b := broker.New(
		broker.WithSweepInterval(cfg.Broker.SweepInterval),
		broker.WithMetrics(metrics.NewBrokerMetrics()),
	)
	defer b.Close()
	logger.Info("Broker initialized",
		"namespace", cfg.Broker.Namespace,
		"sweep_interval", cfg.Broker.SweepInterval.String())

	applyRateLimits(b, cfg.RateLimit)

	// Metrics endpoint (if enabled)
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// HTTP server for both the admin and messaging surfaces
	apiServer := api.NewServer(api.APIConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Namespace:    cfg.Broker.Namespace,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, b)

	// Live reload of tunables (if requested and a config file exists)
	if watchConfig {
		if path := configFilePath(); path != "" {
			go func() {
				err := config.Watch(ctx, path, func(next *config.Config) {
					logger.SetLevel(next.Logging.Level)
					applyRateLimits(b, next.RateLimit)
				})
				if err != nil {
					logger.Warn("config watch stopped", "error", err)
				}
			}()
		} else {
			logger.Warn("--watch ignored: no config file to watch")
		}
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Emulator is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	}

	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelShutdown()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("Emulator stopped gracefully")
	return nil
}

// applyRateLimits pushes the configured class rates and per-entity
// overrides into the broker's limiter.
func applyRateLimits(b *broker.Broker, cfg config.RateLimitConfig) {
	l := b.Limiter()
	l.SetClassRate(ratelimit.KindQueue, cfg.Queue)
	l.SetClassRate(ratelimit.KindTopic, cfg.Topic)
	l.SetClassRate(ratelimit.KindSubscription, cfg.Subscription)
	for entity, perSecond := range cfg.Overrides {
		if perSecond > 0 {
			l.SetRate(entity, perSecond)
		}
	}
}

// configFilePath resolves the config file the server was started with,
// or empty when running on built-in defaults.
func configFilePath() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
