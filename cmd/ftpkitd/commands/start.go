package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftpkit/ftpkit/config"
	"github.com/ftpkit/ftpkit/metrics/prometheus"
	"github.com/ftpkit/ftpkit/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the FTP server",
	Long: `Start the FTP server with the given configuration.

Examples:
  # Start with built-in defaults (anonymous access to the working directory)
  ftpkitd start

  # Start with a configuration file
  ftpkitd start --config /etc/ftpkit/config.yaml

  # Override single settings through the environment
  FTPKIT_LISTEN=:2121 ftpkitd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	opts := cfg.ServerOptions()
	opts = append(opts, server.WithLogger(logger))

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		collector := prometheus.NewCollector()
		opts = append(opts, server.WithMetricsCollector(collector))

		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	srv, err := server.NewServer(cfg.Listen, opts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	return srv.Shutdown(ctx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
