package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/decap-oauth/internal/config"
	"github.com/teemow/decap-oauth/internal/logging"
	"github.com/teemow/decap-oauth/internal/relay"
)

func testRelayConfiguration() config.Configuration {
	return config.Configuration{
		ClientID:            "client-123",
		ClientSecret:        "s3cr3t",
		ProviderName:        "github",
		ProviderHostname:    "https://github.com",
		AuthorizePath:       "/login/oauth/authorize",
		TokenPath:           "/login/oauth/access_token",
		DefaultScope:        "repo",
		AllowedOrigins:      []string{"example.com"},
		StrictProviderCheck: true,
		StateTTL:            10 * time.Minute,
		ExchangeTimeout:     10 * time.Second,
		Port:                3005,
	}
}

func newTestRelayServer(t *testing.T, cfg Config) *RelayServer {
	t.Helper()

	logger := logging.Discard().Logger()
	rh, err := relay.NewHandler(testRelayConfiguration(), relay.Options{
		Logger:   logger,
		ClientIP: ClientIPFunc(cfg.TrustProxy),
	})
	require.NoError(t, err)

	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	cfg.Logger = logger

	s, err := NewRelayServer(rh, NewHealthChecker(false), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func serve(s *RelayServer, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Host = "example.com"
	req.RemoteAddr = "203.0.113.5:40000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRelayServer_Validation(t *testing.T) {
	rh, err := relay.NewHandler(testRelayConfiguration(), relay.Options{Logger: logging.Discard().Logger()})
	require.NoError(t, err)

	_, err = NewRelayServer(nil, nil, Config{Addr: ":3005"})
	assert.Error(t, err)

	_, err = NewRelayServer(rh, nil, Config{})
	assert.Error(t, err)

	_, err = NewRelayServer(rh, nil, Config{Addr: ":3005", TLSCertFile: "cert.pem"})
	assert.Error(t, err)

	s, err := NewRelayServer(rh, nil, Config{Addr: ":3005", TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"})
	require.NoError(t, err)
	assert.True(t, s.TLSEnabled())
	assert.NotNil(t, s.health)
}

func TestRelayServer_Routes(t *testing.T) {
	s := newTestRelayServer(t, Config{})

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "authorize", method: http.MethodGet, target: "/auth?provider=github", wantStatus: http.StatusFound},
		{name: "authorize without provider", method: http.MethodGet, target: "/auth", wantStatus: http.StatusBadRequest},
		{name: "callback without code", method: http.MethodGet, target: "/callback?provider=github", wantStatus: http.StatusBadRequest},
		{name: "post to authorize", method: http.MethodPost, target: "/auth?provider=github", wantStatus: http.StatusMethodNotAllowed},
		{name: "liveness", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "readiness", method: http.MethodGet, target: "/readyz", wantStatus: http.StatusOK},
		{name: "detailed health", method: http.MethodGet, target: "/healthz/detailed", wantStatus: http.StatusOK},
		{name: "unknown path", method: http.MethodGet, target: "/admin", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRelayServer_SecurityHeaders(t *testing.T) {
	s := newTestRelayServer(t, Config{})

	rec := serve(s, http.MethodGet, "/callback?provider=github")

	h := rec.Header()
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "script-src 'unsafe-inline'")
	assert.Empty(t, h.Get("Cross-Origin-Opener-Policy"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))
}

func TestRelayServer_RequestID(t *testing.T) {
	s := newTestRelayServer(t, Config{})

	rec := serve(s, http.MethodGet, "/healthz")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, existing)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, existing, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get(requestIDHeader))
}

func TestRelayServer_RateLimit(t *testing.T) {
	s := newTestRelayServer(t, Config{RateLimit: 1, RateBurst: 2})

	assert.Equal(t, http.StatusFound, serve(s, http.MethodGet, "/auth?provider=github").Code)
	assert.Equal(t, http.StatusFound, serve(s, http.MethodGet, "/auth?provider=github").Code)

	rec := serve(s, http.MethodGet, "/auth?provider=github")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// health probes are never limited
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz").Code)
}

func TestRelayServer_RateLimitDisabled(t *testing.T) {
	s := newTestRelayServer(t, Config{RateLimit: 0})

	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusFound, serve(s, http.MethodGet, "/auth?provider=github").Code)
	}
}

func TestRelayServer_ServeAndShutdown(t *testing.T) {
	s := newTestRelayServer(t, Config{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ln) }()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get("http://" + ln.Addr().String() + "/auth?provider=github")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://github.com/login/oauth/authorize?"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, readinessOK(s))
	checks, _ := s.health.checks()
	assert.Equal(t, healthStatusNotReady, checks["ready"])
	assert.Equal(t, healthStatusShuttingDown, checks["shutdown"])

	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

func readinessOK(s *RelayServer) bool {
	rec := httptest.NewRecorder()
	s.health.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec.Code == http.StatusOK
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Same(t, rec, rw.Unwrap())
}
