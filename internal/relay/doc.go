// Package relay implements the two OAuth popup endpoints.
//
// GET /auth validates the provider, derives the callback URL from the Host
// header and redirects the browser to the provider consent page.
//
// GET /callback rebuilds the same callback URL, optionally verifies the signed
// state, exchanges the authorization code for an access token and renders the
// messaging page that hands the token to the opener window.
//
// Every per-request failure is turned into a *RequestError and written as a
// plain-text response. Access tokens and the client secret never appear in
// response bodies or logs.
package relay
