package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubDescriptor(tokenURL string) Descriptor {
	return Descriptor{
		ProviderName: "github",
		AuthorizeURL: "https://github.com/login/oauth/authorize",
		TokenURL:     tokenURL,
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		RedirectURI:  "https://cms.example.com/callback?provider=github",
	}
}

func TestOAuth2Provider_Exchange_Success(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		form = map[string]string{
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
			"code":          r.PostForm.Get("code"),
			"redirect_uri":  r.PostForm.Get("redirect_uri"),
			"grant_type":    r.PostForm.Get("grant_type"),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_token",
			"token_type":   "bearer",
			"scope":        "repo",
		})
	}))
	defer srv.Close()

	p := NewOAuth2Provider("github")
	tok, err := p.Exchange(context.Background(), stubDescriptor(srv.URL), "code-1")
	require.NoError(t, err)

	assert.Equal(t, "gho_token", tok.AccessToken)
	assert.Equal(t, "repo", tok.Scope)
	assert.Equal(t, map[string]string{
		"client_id":     "client-123",
		"client_secret": "secret-456",
		"code":          "code-1",
		"redirect_uri":  "https://cms.example.com/callback?provider=github",
		"grant_type":    "authorization_code",
	}, form)
}

func TestOAuth2Provider_Exchange_FormEncodedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=gho_form&scope=repo&token_type=bearer"))
	}))
	defer srv.Close()

	tok, err := NewOAuth2Provider("github").Exchange(context.Background(), stubDescriptor(srv.URL), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "gho_form", tok.AccessToken)
}

func TestOAuth2Provider_Exchange_Failures(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantContain string
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad client secret-456"}`))
			},
			wantContain: "invalid_client",
		},
		{
			name: "error in successful response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
				_, _ = w.Write([]byte("error=bad_verification_code&error_description=The+code+passed+is+incorrect+or+expired."))
			},
			wantContain: "bad_verification_code",
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
			},
			wantContain: "missing access_token",
		},
		{
			name: "server error without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantContain: "502",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOAuth2Provider("github").Exchange(context.Background(), stubDescriptor(srv.URL), "code-1")
			require.Error(t, err)

			var exErr *ExchangeError
			require.True(t, errors.As(err, &exErr))
			assert.Equal(t, "github", exErr.Provider)
			assert.Contains(t, err.Error(), tt.wantContain)
			assert.NotContains(t, err.Error(), "secret-456")
		})
	}
}

func TestOAuth2Provider_Exchange_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewOAuth2Provider("github", WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := p.Exchange(context.Background(), stubDescriptor(srv.URL), "code-1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, err.Error(), "timed out")
}

func TestOAuth2Provider_Exchange_CustomClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer srv.Close()

	p := NewOAuth2Provider("gitlab", WithHTTPClient(srv.Client()))
	assert.Equal(t, "gitlab", p.Name())

	tok, err := p.Exchange(context.Background(), stubDescriptor(srv.URL), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok.AccessToken)
}

func TestOAuth2Provider_Exchange_EchoedSecretRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(r.PostForm.Encode()))
	}))
	defer srv.Close()

	d := stubDescriptor(srv.URL)
	d.ClientSecret = "ab+c/d=e&f"

	_, err := NewOAuth2Provider("github").Exchange(context.Background(), d, "code-1")
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "HTTP 401")
	assert.Contains(t, msg, "client_secret="+RedactedSecret)
	assert.NotContains(t, msg, "ab+c/d=e&f")
	assert.NotContains(t, msg, "ab%2Bc%2Fd%3De%26f")
}
