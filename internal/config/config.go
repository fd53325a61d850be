package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults for a GitHub OAuth App.
const (
	DefaultProviderName     = "github"
	DefaultProviderHostname = "https://github.com"
	DefaultAuthorizePath    = "/login/oauth/authorize"
	DefaultTokenPath        = "/login/oauth/access_token"
	DefaultScope            = "repo"
	DefaultPort             = 3005
	DefaultStateTTL         = 10 * time.Minute
	DefaultExchangeTimeout  = 10 * time.Second
)

// Configuration is the resolved relay configuration.
// It is built once by Load and never mutated afterwards.
type Configuration struct {
	ClientID     string
	ClientSecret string

	// ProviderName is the provider the installation serves.
	ProviderName string
	// ProviderExplicit reports whether ProviderName came from OAUTH_PROVIDER.
	// When true, requests that omit the provider query parameter fall back to it.
	ProviderExplicit bool

	ProviderHostname string
	AuthorizePath    string
	TokenPath        string
	DefaultScope     string

	// AllowedOrigins restricts which opener origins receive the token.
	// Empty means any origin (legacy behavior).
	AllowedOrigins []string

	// StrictProviderCheck rejects requests whose provider does not equal ProviderName.
	StrictProviderCheck bool

	// StateSecret enables signed, verified state tokens when non-empty.
	StateSecret []byte
	StateTTL    time.Duration

	ExchangeTimeout time.Duration

	Port        int
	Addr        string
	TLSCertFile string
	TLSKeyFile  string

	RateLimit  int
	RateBurst  int
	TrustProxy bool
}

// relayEnv holds raw env values, including the legacy variable names.
type relayEnv struct {
	ClientID        string        `env:"OAUTH_CLIENT_ID"`
	LegacyClientID  string        `env:"CLIENT_ID"`
	Secret          string        `env:"OAUTH_SECRET"`
	LegacySecret    string        `env:"SECRET"`
	Origins         []string      `env:"OAUTH_ORIGINS"          envSeparator:","`
	LegacyOrigins   []string      `env:"ORIGIN"                 envSeparator:","`
	Provider        string        `env:"OAUTH_PROVIDER"`
	Hostname        string        `env:"OAUTH_HOSTNAME"         envDefault:"https://github.com"`
	AuthorizePath   string        `env:"OAUTH_AUTHORIZE_PATH"   envDefault:"/login/oauth/authorize"`
	TokenPath       string        `env:"OAUTH_TOKEN_PATH"       envDefault:"/login/oauth/access_token"`
	Scopes          string        `env:"OAUTH_SCOPES"           envDefault:"repo"`
	StrictProvider  bool          `env:"OAUTH_STRICT_PROVIDER"  envDefault:"true"`
	StateSecret     string        `env:"OAUTH_STATE_SECRET"`
	StateTTL        time.Duration `env:"OAUTH_STATE_TTL"        envDefault:"10m"`
	ExchangeTimeout time.Duration `env:"OAUTH_EXCHANGE_TIMEOUT" envDefault:"10s"`
	RateLimit       int           `env:"OAUTH_RATE_LIMIT"       envDefault:"10"`
	RateBurst       int           `env:"OAUTH_RATE_BURST"       envDefault:"20"`
	TrustProxy      bool          `env:"OAUTH_TRUST_PROXY"      envDefault:"false"`
	Port            int           `env:"PORT"                   envDefault:"3005"`
	TLSCertFile     string        `env:"TLS_CERT_FILE"`
	TLSKeyFile      string        `env:"TLS_KEY_FILE"`
}

// LoadFromEnv loads and validates the configuration from the process environment.
func LoadFromEnv() (Configuration, error) {
	return Load(environMap(os.Environ()))
}

// Load resolves a Configuration from the given environment map and validates it.
func Load(environ map[string]string) (Configuration, error) {
	var raw relayEnv
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return Configuration{}, &ConfigurationError{Field: "environment", Reason: err.Error()}
	}

	cfg := Configuration{
		ClientID:            firstNonEmpty(raw.ClientID, raw.LegacyClientID),
		ClientSecret:        firstNonEmpty(raw.Secret, raw.LegacySecret),
		ProviderName:        strings.TrimSpace(raw.Provider),
		ProviderExplicit:    strings.TrimSpace(raw.Provider) != "",
		ProviderHostname:    strings.TrimRight(strings.TrimSpace(raw.Hostname), "/"),
		AuthorizePath:       strings.TrimSpace(raw.AuthorizePath),
		TokenPath:           strings.TrimSpace(raw.TokenPath),
		DefaultScope:        strings.TrimSpace(raw.Scopes),
		AllowedOrigins:      ParseOrigins(raw.Origins),
		StrictProviderCheck: raw.StrictProvider,
		StateTTL:            raw.StateTTL,
		ExchangeTimeout:     raw.ExchangeTimeout,
		Port:                raw.Port,
		TLSCertFile:         raw.TLSCertFile,
		TLSKeyFile:          raw.TLSKeyFile,
		RateLimit:           raw.RateLimit,
		RateBurst:           raw.RateBurst,
		TrustProxy:          raw.TrustProxy,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = ParseOrigins(raw.LegacyOrigins)
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = DefaultProviderName
	}
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = DefaultScope
	}
	if raw.StateSecret != "" {
		cfg.StateSecret = []byte(raw.StateSecret)
	}

	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Validate checks the invariants every request handler relies on.
func (c Configuration) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &ConfigurationError{Field: "OAUTH_CLIENT_ID", Reason: "environment variable must be defined"}
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return &ConfigurationError{Field: "OAUTH_SECRET", Reason: "environment variable must be defined"}
	}
	if c.ProviderName == "" {
		return &ConfigurationError{Field: "OAUTH_PROVIDER", Reason: "provider name must not be empty"}
	}
	if err := validateProviderHostname(c.ProviderHostname); err != nil {
		return &ConfigurationError{Field: "OAUTH_HOSTNAME", Reason: err.Error()}
	}
	if _, err := c.AuthorizeURL(); err != nil {
		return &ConfigurationError{Field: "OAUTH_AUTHORIZE_PATH", Reason: err.Error()}
	}
	if _, err := c.TokenURL(); err != nil {
		return &ConfigurationError{Field: "OAUTH_TOKEN_PATH", Reason: err.Error()}
	}
	if c.StateTTL <= 0 {
		return &ConfigurationError{Field: "OAUTH_STATE_TTL", Reason: "must be positive"}
	}
	if c.ExchangeTimeout <= 0 {
		return &ConfigurationError{Field: "OAUTH_EXCHANGE_TIMEOUT", Reason: "must be positive"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigurationError{Field: "PORT", Reason: fmt.Sprintf("port %d out of range", c.Port)}
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return &ConfigurationError{Field: "TLS_CERT_FILE", Reason: "TLS certificate and key must be provided together"}
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return &ConfigurationError{Field: "OAUTH_RATE_LIMIT", Reason: "must not be negative"}
	}
	return nil
}

// AuthorizeURL returns the provider hostname joined with the authorize path.
func (c Configuration) AuthorizeURL() (string, error) {
	return joinProviderURL(c.ProviderHostname, c.AuthorizePath)
}

// TokenURL returns the provider hostname joined with the token path.
func (c Configuration) TokenURL() (string, error) {
	return joinProviderURL(c.ProviderHostname, c.TokenPath)
}

// OriginsRestricted reports whether an origin allow-list is configured.
func (c Configuration) OriginsRestricted() bool {
	return len(c.AllowedOrigins) > 0
}

// StateSigningEnabled reports whether state tokens are signed and verified.
func (c Configuration) StateSigningEnabled() bool {
	return len(c.StateSecret) > 0
}

// ListenAddr returns the address the HTTP server binds to.
func (c Configuration) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// joinProviderURL concatenates hostname and path and checks that the result is
// an absolute URL.
func joinProviderURL(hostname, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	raw := hostname + path
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: scheme and host are required", raw)
	}
	return raw, nil
}

// validateProviderHostname ensures the provider is reached over HTTPS.
// HTTP is accepted only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateProviderHostname(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("provider hostname cannot be empty")
	}

	u, err := url.Parse(hostname)
	if err != nil {
		return fmt.Errorf("invalid provider hostname: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("provider hostname must use HTTPS (got: %s). HTTP is only allowed for localhost", hostname)
		}
	default:
		return fmt.Errorf("invalid URL scheme %q: must be http (localhost only) or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("provider hostname %q has no host", hostname)
	}
	return nil
}

// ParseOrigins trims whitespace from each entry and drops empty entries.
// Returns nil if nothing remains.
func ParseOrigins(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// ParseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func ParseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	return ParseOrigins(strings.Split(s, ","))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
