package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	relay "github.com/giantswarm/oauth-relay"
	"github.com/giantswarm/oauth-relay/instrumentation"
	"github.com/giantswarm/oauth-relay/security"
	"github.com/giantswarm/oauth-relay/storage/memory"
)

// shutdownTimeout bounds the graceful shutdown after a signal
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay HTTP server.

Configuration is read from the environment (RELAY_ADDR, API_KEYS, API_KEY,
RELAY_MODE, TLS_CERT_FILE, TLS_KEY_FILE, LOG_LEVEL, LOG_FORMAT,
RATE_LIMIT_RPS, RATE_LIMIT_BURST, TRUST_PROXY, RESULT_TTL, MAX_MISSED_PINGS,
METRICS_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT). Flags override the environment.
At least one API key is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(os.Environ())
			if err != nil {
				return err
			}
			cfg.applyFlags(cmd)
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}

	registerServeFlags(cmd)
	return cmd
}

// relayStack is the wired relay: store, server, instrumentation and the
// routed HTTP handler
type relayStack struct {
	store   *memory.Store
	server  *relay.Server
	inst    *instrumentation.Instrumentation
	handler http.Handler
}

// buildRelay wires every relay component from cfg
func buildRelay(cfg serveConfig, logger *slog.Logger) (*relayStack, error) {
	keys, err := security.NewKeySet(cfg.apiKeys())
	if err != nil {
		return nil, fmt.Errorf("failed to load API keys: %w", err)
	}

	endpoint, err := cfg.tracesEndpoint()
	if err != nil {
		return nil, err
	}
	exporter := instrumentation.MetricsExporterNone
	if cfg.MetricsEnabled {
		exporter = instrumentation.MetricsExporterPrometheus
	}
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceVersion:  rootCmd.Version,
		Enabled:         cfg.MetricsEnabled || endpoint != "",
		MetricsExporter: exporter,
		OTLPEndpoint:    endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	store := memory.New()
	store.SetLogger(logger)
	store.SetResultTTL(cfg.ResultTTL)
	store.SetInstrumentation(inst)

	srv, err := relay.NewServer(store, store, keys, cfg.relayConfig(), logger)
	if err != nil {
		store.Stop()
		_ = inst.Shutdown(context.Background())
		return nil, err
	}
	srv.SetInstrumentation(inst)
	if rl := srv.Config.RateLimit; rl.Rate > 0 {
		srv.SetRateLimiter(security.NewRateLimiter(rl.Rate, rl.Burst, logger))
	}

	mux := http.NewServeMux()
	relay.NewHandler(srv, logger).RegisterRoutes(mux)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", inst.MetricsHandler())
	}

	logger.Info("Relay configured",
		"mode", srv.Config.Mode,
		"api_keys", keys.Len(),
		"rate_limit", srv.Config.RateLimit.Rate,
		"metrics", cfg.MetricsEnabled,
		"tracing", endpoint != "",
	)

	return &relayStack{
		store:   store,
		server:  srv,
		inst:    inst,
		handler: security.RequestIDMiddleware(mux),
	}, nil
}

// shutdown closes live sessions, then stops the store and flushes telemetry
func (s *relayStack) shutdown(ctx context.Context) error {
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("relay shutdown: %w", err))
	}
	s.store.Stop()
	if err := s.inst.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("instrumentation shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// runServe serves until ctx is done, then shuts down gracefully
func runServe(ctx context.Context, cfg serveConfig, logger *slog.Logger) error {
	stack, err := buildRelay(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.OTLPEndpoint != "" {
		otel.SetTracerProvider(stack.inst.TracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	// No read or write timeouts: WebSocket sessions manage their own deadlines.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           stack.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCertFile != "" {
			logger.Info("Starting HTTPS server", "addr", cfg.Addr, "cert", cfg.TLSCertFile)
			errCh <- httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logger.Warn("Starting HTTP server - use HTTPS in production!", "addr", cfg.Addr)
			errCh <- httpServer.ListenAndServe()
		}
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := stack.shutdown(shutdownCtx); err != nil {
		logger.Error("Relay shutdown error", "error", err)
	}

	logger.Info("Server stopped")
	return serveErr
}
