package relay

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/teemow/decap-oauth/internal/config"
	"github.com/teemow/decap-oauth/internal/instrumentation"
	"github.com/teemow/decap-oauth/internal/logging"
	"github.com/teemow/decap-oauth/internal/provider"
	"github.com/teemow/decap-oauth/internal/state"
)

// Route paths served by the relay.
const (
	AuthPath     = "/auth"
	CallbackPath = "/callback"
)

// Options carries the collaborators of a Handler. Zero values select defaults.
type Options struct {
	// Providers resolves provider names. Defaults to a registry holding one
	// OAuth2Provider named after the configured provider.
	Providers *provider.Registry

	// Signer issues and verifies signed state. Defaults to a signer built from
	// the configured state secret, or nil when no secret is set.
	Signer *state.Signer

	// Metrics records relay metrics. Defaults to a no-op recorder.
	Metrics *instrumentation.Metrics

	// Audit logs one event per request. Defaults to no audit logging.
	Audit *instrumentation.AuditLogger

	// ClientIP extracts the client address for audit logs.
	// Defaults to the host part of RemoteAddr.
	ClientIP func(*http.Request) string

	Logger *slog.Logger
}

// Handler serves /auth and /callback.
// All fields are read-only after NewHandler, so a Handler is safe for concurrent use.
type Handler struct {
	cfg       config.Configuration
	providers *provider.Registry
	signer    *state.Signer
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	clientIP  func(*http.Request) string
	logger    *slog.Logger
}

// NewHandler creates a relay handler for the given configuration.
func NewHandler(cfg config.Configuration, opts Options) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := opts.Providers
	if registry == nil {
		registry = provider.NewRegistry(
			provider.NewOAuth2Provider(cfg.ProviderName, provider.WithTimeout(cfg.ExchangeTimeout)),
		)
	}

	signer := opts.Signer
	if signer == nil && cfg.StateSigningEnabled() {
		var err error
		signer, err = state.NewSigner(cfg.StateSecret, cfg.StateTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create state signer: %w", err)
		}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}

	clientIP := opts.ClientIP
	if clientIP == nil {
		clientIP = remoteIP
	}

	if !cfg.OriginsRestricted() {
		logger.Warn("no origin allow-list configured, tokens will be posted to any opener origin",
			"recommendation", "set OAUTH_ORIGINS to the CMS origin(s)")
	}
	if signer == nil {
		logger.Warn("state signing disabled, callback state is not verified",
			"recommendation", "set OAUTH_STATE_SECRET")
	}

	return &Handler{
		cfg:       cfg,
		providers: registry,
		signer:    signer,
		metrics:   metrics,
		audit:     opts.Audit,
		clientIP:  clientIP,
		logger:    logger,
	}, nil
}

// RegisterRoutes registers /auth and /callback on mux.
// /callback spends the single-use authorization code, so it answers GET only.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(AuthPath, allowMethods(http.HandlerFunc(h.ServeAuth), http.MethodGet, http.MethodHead))
	mux.Handle(CallbackPath, allowMethods(http.HandlerFunc(h.ServeCallback), http.MethodGet))
}

// allowMethods answers 405 for any method not in methods.
func allowMethods(next http.Handler, methods ...string) http.Handler {
	allow := strings.Join(methods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(methods, r.Method) {
			w.Header().Set("Allow", allow)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// knownProviders returns the label set used for metrics.
func (h *Handler) knownProviders() []string {
	return h.providers.Names()
}

// resolveProvider applies the provider defaulting and strict-check rules.
func (h *Handler) resolveProvider(r *http.Request) (string, *RequestError) {
	name := r.URL.Query().Get("provider")
	if name == "" {
		if !h.cfg.ProviderExplicit {
			return "", ErrMissingParameter(MsgNoProvider)
		}
		name = h.cfg.ProviderName
	}
	if h.cfg.StrictProviderCheck && name != h.cfg.ProviderName {
		return name, ErrProviderMismatch(name)
	}
	return name, nil
}

// requestHost returns the Host header of r.
func requestHost(r *http.Request) (string, *RequestError) {
	host := r.Host
	if host == "" {
		host = r.Header.Get("Host")
	}
	if host == "" {
		return "", ErrMissingParameter(MsgNoHost)
	}
	if strings.ContainsAny(host, "/?#@\\ \t\r\n") {
		return "", ErrInvalidParameter(MsgInvalidHost)
	}
	return host, nil
}

// CallbackURL returns the redirect URI registered with the provider for a
// request arriving on host.
func CallbackURL(host, providerName string) string {
	return "https://" + host + CallbackPath + "?provider=" + url.QueryEscape(providerName)
}

// writeError writes err as a plain-text response.
func (h *Handler) writeError(w http.ResponseWriter, err *RequestError) {
	body := provider.RedactSecret(err.Message, h.cfg.ClientSecret)
	setNoStore(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(err.Status)
	_, _ = w.Write([]byte(body))
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// remoteIP returns the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// logRequestError logs a failed request at a level matching its status.
func (h *Handler) logRequestError(logger *slog.Logger, err *RequestError) {
	attrs := []any{
		slog.String("kind", string(err.Kind)),
		slog.Int("http_status", err.Status),
		logging.Status(logging.StatusError),
	}
	if err.Err != nil {
		attrs = append(attrs, slog.String(logging.KeyError, provider.RedactSecret(err.Err.Error(), h.cfg.ClientSecret)))
	}
	if err.Status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
		return
	}
	logger.Info("request rejected", attrs...)
}
