package provider

import (
	"net/url"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/decap-oauth/internal/config"
)

func testConfig() config.Configuration {
	return config.Configuration{
		ClientID:         "client-123",
		ClientSecret:     "secret-456",
		ProviderName:     "github",
		ProviderHostname: "https://github.com",
		AuthorizePath:    "/login/oauth/authorize",
		TokenPath:        "/login/oauth/access_token",
		DefaultScope:     "repo",
	}
}

func TestBuild(t *testing.T) {
	d, err := Build(testConfig(), "https://cms.example.com/callback?provider=github")
	require.NoError(t, err)

	assert.Equal(t, Descriptor{
		ProviderName: "github",
		AuthorizeURL: "https://github.com/login/oauth/authorize",
		TokenURL:     "https://github.com/login/oauth/access_token",
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		RedirectURI:  "https://cms.example.com/callback?provider=github",
	}, d)
}

func TestBuild_InvalidPath(t *testing.T) {
	cfg := testConfig()
	cfg.TokenPath = ""

	_, err := Build(cfg, "https://cms.example.com/callback")
	require.Error(t, err)

	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OAUTH_TOKEN_PATH", cfgErr.Field)
}

func TestDescriptor_OAuth2Config(t *testing.T) {
	d, err := Build(testConfig(), "https://cms.example.com/callback?provider=github")
	require.NoError(t, err)

	oc := d.OAuth2Config("repo", "user")
	assert.Equal(t, "client-123", oc.ClientID)
	assert.Equal(t, "secret-456", oc.ClientSecret)
	assert.Equal(t, d.RedirectURI, oc.RedirectURL)
	assert.Equal(t, []string{"repo", "user"}, oc.Scopes)
	assert.Equal(t, d.TokenURL, oc.Endpoint.TokenURL)
}

func TestOAuth2Provider_AuthorizeURL(t *testing.T) {
	d, err := Build(testConfig(), "https://cms.example.com/callback?provider=github")
	require.NoError(t, err)

	p := NewOAuth2Provider("github")
	raw := p.AuthorizeURL(d, "repo,user", "state-abc")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "/login/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://cms.example.com/callback?provider=github", q.Get("redirect_uri"))
	assert.Equal(t, "repo,user", q.Get("scope"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.NotContains(t, raw, "secret-456")
}

func TestOAuth2Provider_TokenURL(t *testing.T) {
	d, err := Build(testConfig(), "https://cms.example.com/callback")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/login/oauth/access_token", NewOAuth2Provider("github").TokenURL(d))
}

func TestRegistry(t *testing.T) {
	github := NewOAuth2Provider("github")
	gitlab := NewOAuth2Provider("gitlab")

	r := NewRegistry(github, gitlab)

	got, ok := r.Lookup("gitlab")
	require.True(t, ok)
	assert.Same(t, gitlab, got)

	_, ok = r.Lookup("bitbucket")
	assert.False(t, ok)
	assert.Same(t, github, r.Resolve("bitbucket"))
	assert.Same(t, gitlab, r.Resolve("gitlab"))

	names := r.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"github", "gitlab"}, names)

	r.Register(nil)
	assert.Len(t, r.Names(), 2)
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		secret string
		want   string
	}{
		{"no secret configured", "client_secret=abc", "", "client_secret=abc"},
		{"secret absent", "bad_verification_code", "abc", "bad_verification_code"},
		{"secret present twice", "abc and abc", "abc", "[REDACTED] and [REDACTED]"},
		{"form encoded", "client_id=x&client_secret=ab%2Bc%2Fd%3De%26f", "ab+c/d=e&f", "client_id=x&client_secret=[REDACTED]"},
		{"form encoded lowercase hex", "client_secret=ab%2bc%2fd%3de%26f", "ab+c/d=e&f", "client_secret=[REDACTED]"},
		{"path encoded", "/echo/ab+c%2Fd=e&f", "ab+c/d=e&f", "/echo/[REDACTED]"},
		{"json encoded", `{"client_secret":"ab+c/d=e\u0026f"}`, "ab+c/d=e&f", `{"client_secret":"[REDACTED]"}`},
		{"raw and encoded together", "ab+c/d=e&f vs ab%2Bc%2Fd%3De%26f", "ab+c/d=e&f", "[REDACTED] vs [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactSecret(tt.input, tt.secret))
		})
	}
}
