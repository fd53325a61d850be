// Package provider describes the OAuth provider the relay talks to.
//
// Build turns the resolved configuration plus a per-request redirect URI into
// a Descriptor holding everything needed for one authorization round trip.
// Descriptors are built per request and never cached.
//
// The Provider interface is the capability the HTTP handlers depend on:
// computing the authorize URL and exchanging an authorization code for an
// access token. OAuth2Provider implements it on top of golang.org/x/oauth2
// and works for GitHub and other providers that accept client credentials in
// the token request body. Additional providers can be registered in a
// Registry without touching the handlers.
package provider
