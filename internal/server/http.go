package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/logging"
	"github.com/teemow/decap-oauth/internal/relay"
)

const (
	// DefaultReadHeaderTimeout bounds how long a client may take to send headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout is the keep-alive idle timeout.
	DefaultIdleTimeout = 120 * time.Second

	// requestIDHeader carries the per-request correlation ID.
	requestIDHeader = "X-Request-ID"

	// contentSecurityPolicy allows only the inline messaging script.
	contentSecurityPolicy = "default-src 'none'; script-src 'unsafe-inline'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'"
)

// Config holds the listener settings of a RelayServer.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:3005".
	Addr string

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// RateLimit is the per-IP request rate in requests per second. Zero disables limiting.
	RateLimit int
	RateBurst int

	// TrustProxy makes the rate limiter honor X-Forwarded-For and X-Real-IP.
	TrustProxy bool

	// WriteTimeout must exceed the token exchange timeout.
	WriteTimeout time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// RelayServer serves the relay endpoints and the health probes.
type RelayServer struct {
	cfg        Config
	handler    http.Handler
	health     *HealthChecker
	limiter    *RateLimiter
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	httpServer *http.Server
}

// NewRelayServer wires the relay handler into a ServeMux wrapped with
// tracing, request metrics, security headers and rate limiting.
func NewRelayServer(rh *relay.Handler, health *HealthChecker, cfg Config) (*RelayServer, error) {
	if rh == nil {
		return nil, errors.New("relay handler is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, errors.New("TLS certificate and key must be configured together")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	if health == nil {
		health = NewHealthChecker(false)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	s := &RelayServer{
		cfg:     cfg,
		health:  health,
		metrics: metrics,
		logger:  logger,
	}

	mux := http.NewServeMux()
	health.RegisterHealthEndpoints(mux)

	relayMux := http.NewServeMux()
	rh.RegisterRoutes(relayMux)

	var relayRoutes http.Handler = relayMux
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy, DefaultRateLimitCleanup,
			logging.NewSlogAdapter(logger.With("component", "ratelimit")))
		relayRoutes = s.limiter.Middleware(metrics, relayRoutes)
	}
	mux.Handle(relay.AuthPath, relayRoutes)
	mux.Handle(relay.CallbackPath, relayRoutes)

	var h http.Handler = mux
	h = s.instrumentationMiddleware(h)
	h = s.securityHeadersMiddleware(h)
	h = s.requestIDMiddleware(h)
	h = otelhttp.NewHandler(h, "decap-oauth",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + instrumentation.PathLabel(r.URL.Path)
		}),
	)
	s.handler = h

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *RelayServer) Handler() http.Handler {
	return s.handler
}

// TLSEnabled reports whether the server terminates TLS itself.
func (s *RelayServer) TLSEnabled() bool {
	return s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
}

// Start listens on the configured address and blocks until the server stops.
// It returns nil after Shutdown.
func (s *RelayServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *RelayServer) Serve(ln net.Listener) error {
	s.logger.Info("starting relay server",
		"addr", ln.Addr().String(),
		"tls", s.TLSEnabled(),
		"rate_limit", s.cfg.RateLimit)

	var err error
	if s.TLSEnabled() {
		err = s.httpServer.ServeTLS(ln, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	} else {
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown marks the server unready and draining, stops the rate limiter and
// gracefully shuts down the listener.
func (s *RelayServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.health.SetShuttingDown()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.logger.Info("shutting down relay server")
	return s.httpServer.Shutdown(ctx)
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap supports http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// instrumentationMiddleware records request count, duration and in-flight requests.
func (s *RelayServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		s.metrics.IncrementInFlight(ctx)
		defer s.metrics.DecrementInFlight(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		path := instrumentation.PathLabel(r.URL.Path)
		s.metrics.RecordHTTPRequest(ctx, r.Method, path, rw.statusCode, duration)

		logging.WithRequestID(s.logger, w.Header().Get(requestIDHeader)).Debug("request completed",
			slog.String("method", r.Method),
			slog.String("path", path),
			slog.Int("http_status", rw.statusCode),
			slog.Duration(logging.KeyDuration, duration))
	})
}

// securityHeadersMiddleware sets security headers on every response.
// Cross-Origin-Opener-Policy is left unset because the messaging page
// depends on window.opener.
func (s *RelayServer) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("Referrer-Policy", "no-referrer")
		if s.TLSEnabled() || r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware assigns each request a correlation ID.
// A well-formed incoming X-Request-ID is kept.
func (s *RelayServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
