// Package state produces the OAuth state parameter.
//
// With a signing key configured, Signer issues short-lived HS256 JWTs bound to
// the provider and redirect URI of the authorize request, and verifies them
// when the callback arrives. Tokens are self-contained so no server-side store
// is needed. Without a key, Random returns an opaque value that is not checked
// on the way back.
package state
