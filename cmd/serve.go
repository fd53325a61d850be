package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/decap-oauth/internal/config"
	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/relay"
	"github.com/teemow/decap-oauth/internal/server"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveFlags holds the serve command line flags.
type serveFlags struct {
	debug       bool
	port        int
	addr        string
	origins     string
	tlsCertFile string
	tlsKeyFile  string
	metrics     MetricsConfig
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OAuth relay",
		Long: `Start the OAuth relay for Decap CMS.

Endpoints:
  GET /auth?provider=github[&scope=repo]   redirects to the provider consent page
  GET /callback?provider=github&code=...   exchanges the code and posts the token
                                           back to the CMS window
  GET /healthz, /readyz, /healthz/detailed  health probes

Configuration is read from the environment:
  OAUTH_CLIENT_ID, OAUTH_SECRET (required; CLIENT_ID and SECRET are accepted)
  OAUTH_ORIGINS        comma separated CMS origins allowed to receive tokens
  OAUTH_PROVIDER       provider name (default: github)
  OAUTH_HOSTNAME       provider base URL (default: https://github.com)
  OAUTH_STATE_SECRET   enables signed, expiring state values
  PORT                 listen port (default: 3005)

Flags override the matching environment variables when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			applyFlagOverrides(cmd, flags, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			loadMetricsEnvVars(cmd, &flags.metrics)

			logger := newLogger(os.Stderr, flags.debug)
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg, flags.metrics, logger)
		},
	}

	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging (text format)")
	cmd.Flags().IntVar(&flags.port, "port", config.DefaultPort, "Listen port. Can also use PORT env var.")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (host:port); takes precedence over --port")
	cmd.Flags().StringVar(&flags.origins, "origins", "", "Comma separated CMS origins allowed to receive tokens. Can also use OAUTH_ORIGINS env var.")

	// TLS flags for HTTPS support
	cmd.Flags().StringVar(&flags.tlsCertFile, "tls-cert-file", "", "Path to TLS certificate file (PEM format). If provided with --tls-key-file, enables HTTPS. Can also use TLS_CERT_FILE env var.")
	cmd.Flags().StringVar(&flags.tlsKeyFile, "tls-key-file", "", "Path to TLS private key file (PEM format). If provided with --tls-cert-file, enables HTTPS. Can also use TLS_KEY_FILE env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&flags.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// applyFlagOverrides copies explicitly set flags over the environment configuration.
func applyFlagOverrides(cmd *cobra.Command, flags serveFlags, cfg *config.Configuration) {
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.port
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = flags.addr
	}
	if cmd.Flags().Changed("origins") {
		cfg.AllowedOrigins = config.ParseOrigins(config.ParseCommaSeparatedList(flags.origins))
	}
	if cmd.Flags().Changed("tls-cert-file") {
		cfg.TLSCertFile = flags.tlsCertFile
	}
	if cmd.Flags().Changed("tls-key-file") {
		cfg.TLSKeyFile = flags.tlsKeyFile
	}
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR unless the
// matching flag was set explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, metrics *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		switch os.Getenv("METRICS_ENABLED") {
		case "true":
			metrics.Enabled = true
		case "false":
			metrics.Enabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metrics.Addr = addr
		}
	}
}

// newLogger returns a JSON logger, or a text logger at debug level.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	if debug {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// runServe starts the relay and, when enabled, the metrics server, and blocks
// until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cfg config.Configuration, metricsConfig MetricsConfig, logger *slog.Logger) error {
	instrConfig, err := instrumentation.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", "error", err)
		}
	}()

	relayHandler, err := relay.NewHandler(cfg, relay.Options{
		Metrics:  provider.Metrics(),
		Audit:    provider.AuditLogger(logger.With("component", "audit")),
		ClientIP: server.ClientIPFunc(cfg.TrustProxy),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay handler: %w", err)
	}

	relayServer, err := server.NewRelayServer(relayHandler, server.NewHealthChecker(cfg.StateSigningEnabled()), server.Config{
		Addr:         cfg.ListenAddr(),
		TLSCertFile:  cfg.TLSCertFile,
		TLSKeyFile:   cfg.TLSKeyFile,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		TrustProxy:   cfg.TrustProxy,
		WriteTimeout: cfg.ExchangeTimeout + 10*time.Second,
		Metrics:      provider.Metrics(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	var metricsServer *server.MetricsServer
	metricsDone := make(chan error, 1)
	if metricsConfig.Enabled && provider.PrometheusHandler() != nil {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			metricsDone <- metricsServer.Start()
		}()
	} else if metricsConfig.Enabled {
		logger.Info("metrics server disabled, prometheus exporter not configured",
			"metrics_exporter", instrConfig.MetricsExporter)
	}

	logger.Info("decap-oauth relay configured",
		"version", version,
		"provider", cfg.ProviderName,
		"provider_hostname", cfg.ProviderHostname,
		"origins", cfg.AllowedOrigins,
		"strict_provider", cfg.StrictProviderCheck,
		"state_signing", cfg.StateSigningEnabled())

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- relayServer.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("relay server stopped with error: %w", err)
		}
	case err := <-metricsDone:
		if err != nil {
			runErr = fmt.Errorf("metrics server stopped with error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	shutdownErrs := []error{runErr}
	if err := relayServer.Shutdown(shutdownCtx); err != nil {
		shutdownErrs = append(shutdownErrs, fmt.Errorf("error shutting down relay server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}

	if err := errors.Join(shutdownErrs...); err != nil {
		return err
	}
	logger.Info("relay server gracefully stopped")
	return nil
}
