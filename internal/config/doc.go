// Package config resolves the relay configuration once at startup.
//
// Values are read from environment variables with github.com/caarlos0/env/v11,
// then validated. The resulting Configuration is treated as immutable and is
// shared read-only by every request handler. Missing OAuth credentials or an
// unusable provider URL are reported as a *ConfigurationError so that the
// process refuses to start instead of failing per request.
//
// Supported variables:
//
//	OAUTH_CLIENT_ID          OAuth client ID (required, falls back to CLIENT_ID)
//	OAUTH_SECRET             OAuth client secret (required, falls back to SECRET)
//	OAUTH_ORIGINS            comma separated origin allow-list (falls back to ORIGIN)
//	OAUTH_PROVIDER           provider name (default: github)
//	OAUTH_HOSTNAME           provider base URL (default: https://github.com)
//	OAUTH_AUTHORIZE_PATH     authorize path (default: /login/oauth/authorize)
//	OAUTH_TOKEN_PATH         token path (default: /login/oauth/access_token)
//	OAUTH_SCOPES             default scope (default: repo)
//	OAUTH_STRICT_PROVIDER    reject requests naming another provider (default: true)
//	OAUTH_STATE_SECRET       HMAC key for signed state tokens (optional)
//	OAUTH_STATE_TTL          signed state lifetime (default: 10m)
//	OAUTH_EXCHANGE_TIMEOUT   token exchange timeout (default: 10s)
//	OAUTH_RATE_LIMIT         requests per second per client IP, 0 disables (default: 10)
//	OAUTH_RATE_BURST         rate limit burst (default: 20)
//	OAUTH_TRUST_PROXY        trust X-Forwarded-For / X-Real-IP (default: false)
//	PORT                     listen port (default: 3005)
//	TLS_CERT_FILE            TLS certificate (optional)
//	TLS_KEY_FILE             TLS private key (optional)
package config
