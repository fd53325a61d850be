package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/teemow/decap-oauth/internal/config"
)

// OAuth2Provider is a GitHub-compatible provider backed by golang.org/x/oauth2.
type OAuth2Provider struct {
	name       string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures an OAuth2Provider.
type Option func(*OAuth2Provider)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuth2Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithTimeout bounds every token exchange. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(p *OAuth2Provider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewOAuth2Provider creates a provider named name.
// Without WithHTTPClient the exchange uses an otelhttp-instrumented client
// whose timeout matches the exchange timeout.
func NewOAuth2Provider(name string, opts ...Option) *OAuth2Provider {
	p := &OAuth2Provider{
		name:    name,
		timeout: config.DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{
			Timeout:   p.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return p
}

// Name returns the provider identifier
func (p *OAuth2Provider) Name() string {
	return p.name
}

// AuthorizeURL returns the consent URL with client_id, redirect_uri, scope,
// state and response_type=code.
func (p *OAuth2Provider) AuthorizeURL(d Descriptor, scope, state string) string {
	return d.OAuth2Config().AuthCodeURL(state, oauth2.SetAuthURLParam("scope", scope))
}

// TokenURL returns the token endpoint
func (p *OAuth2Provider) TokenURL(d Descriptor) string {
	return d.TokenURL
}

// Exchange posts the code to the token endpoint. The call is never retried.
// Errors are returned as *ExchangeError with the client secret removed.
func (p *OAuth2Provider) Exchange(ctx context.Context, d Descriptor, code string) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := d.OAuth2Config().Exchange(ctx, code)
	if err != nil {
		msg := describeExchangeError(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "token exchange timed out"
		}
		return Token{}, &ExchangeError{
			Provider: p.name,
			Err:      errors.New(RedactSecret(msg, d.ClientSecret)),
		}
	}

	scope, _ := tok.Extra("scope").(string)
	return Token{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
	}, nil
}

// describeExchangeError turns oauth2 errors into operator-friendly text.
func describeExchangeError(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		switch {
		case retrieveErr.ErrorCode != "" && retrieveErr.ErrorDescription != "":
			return fmt.Sprintf("provider returned %s: %s (HTTP %d)", retrieveErr.ErrorCode, retrieveErr.ErrorDescription, status)
		case retrieveErr.ErrorCode != "":
			return fmt.Sprintf("provider returned %s (HTTP %d)", retrieveErr.ErrorCode, status)
		default:
			return fmt.Sprintf("provider returned HTTP %d: %s", status, string(retrieveErr.Body))
		}
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeoutErr) && timeoutErr.Timeout()) {
		return "token exchange timed out"
	}
	return err.Error()
}
