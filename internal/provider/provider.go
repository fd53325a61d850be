package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/decap-oauth/internal/config"
)

// DefaultProviderName is the provider served when nothing else is configured.
const DefaultProviderName = config.DefaultProviderName

// Descriptor holds the provider endpoints, client credentials and redirect URI
// for a single request.
type Descriptor struct {
	ProviderName string
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Build derives a Descriptor from the configuration and the redirect URI
// computed for the current request. It performs no I/O.
func Build(cfg config.Configuration, redirectURI string) (Descriptor, error) {
	authorizeURL, err := cfg.AuthorizeURL()
	if err != nil {
		return Descriptor{}, &config.ConfigurationError{Field: "OAUTH_AUTHORIZE_PATH", Reason: err.Error()}
	}
	tokenURL, err := cfg.TokenURL()
	if err != nil {
		return Descriptor{}, &config.ConfigurationError{Field: "OAUTH_TOKEN_PATH", Reason: err.Error()}
	}
	return Descriptor{
		ProviderName: cfg.ProviderName,
		AuthorizeURL: authorizeURL,
		TokenURL:     tokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  redirectURI,
	}, nil
}

// OAuth2Config converts the descriptor into an oauth2.Config.
// Credentials are always sent in the request body.
func (d Descriptor) OAuth2Config(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURL:  d.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.AuthorizeURL,
			TokenURL:  d.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Token is the result of a successful code exchange.
// AccessToken is a secret and must never be logged.
type Token struct {
	AccessToken string
	TokenType   string
	Scope       string
}

// Provider is the capability the relay handlers need from an OAuth provider.
type Provider interface {
	// Name returns the provider identifier used in query parameters and messages.
	Name() string

	// AuthorizeURL returns the URL the browser is redirected to for consent.
	AuthorizeURL(d Descriptor, scope, state string) string

	// TokenURL returns the endpoint used for the code exchange.
	TokenURL(d Descriptor) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, d Descriptor, code string) (Token, error)
}

// Registry maps provider names to implementations.
// Names are case-sensitive. A Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewRegistry creates a registry whose fallback is used for unregistered names.
// The fallback is registered under its own name as well.
func NewRegistry(fallback Provider, others ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		fallback:  fallback,
	}
	if fallback != nil {
		r.providers[fallback.Name()] = fallback
	}
	for _, p := range others {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Resolve returns the provider registered under name, or the fallback.
func (r *Registry) Resolve(name string) Provider {
	if p, ok := r.Lookup(name); ok {
		return p
	}
	return r.fallback
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// RedactedSecret replaces secrets removed from error text.
const RedactedSecret = "[REDACTED]"

// RedactSecret removes every occurrence of secret from s, including the
// form, path and JSON encodings a provider may echo back in an error body.
func RedactSecret(s, secret string) string {
	if secret == "" {
		return s
	}
	for _, form := range secretForms(secret) {
		s = strings.ReplaceAll(s, form, RedactedSecret)
		// percent escapes are case-insensitive
		if lower := lowerEscapes(form); lower != form {
			s = strings.ReplaceAll(s, lower, RedactedSecret)
		}
	}
	return s
}

// secretForms returns the distinct encodings of secret, longest first so a
// shorter form never splits a longer one.
func secretForms(secret string) []string {
	forms := []string{secret, url.QueryEscape(secret), url.PathEscape(secret)}
	if quoted, err := json.Marshal(secret); err == nil {
		forms = append(forms, strings.Trim(string(quoted), `"`))
	}
	seen := make(map[string]bool, len(forms))
	out := forms[:0]
	for _, f := range forms {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

// lowerEscapes lowercases the hex digits of every %XX escape in s.
func lowerEscapes(s string) string {
	b := []byte(s)
	for i := 0; i+2 < len(b); i++ {
		if b[i] == '%' {
			b[i+1] = lowerHex(b[i+1])
			b[i+2] = lowerHex(b[i+2])
			i += 2
		}
	}
	return string(b)
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c + ('a' - 'A')
	}
	return c
}

// ExchangeError wraps a failed code exchange.
type ExchangeError struct {
	Provider string
	Err      error
}

// Error implements the error interface
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange with %s failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *ExchangeError) Unwrap() error {
	return e.Err
}
