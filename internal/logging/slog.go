package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyProvider  = "provider"
	KeyHost      = "host"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyRequestID = "request_id"
	KeyTraceID   = "trace_id"
	KeyState     = "state_hash"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithProvider returns a logger with the provider attribute set.
func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With(slog.String(KeyProvider, provider))
}

// WithRequestID returns a logger with the request ID attribute set.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	if requestID == "" {
		return logger
	}
	return logger.With(slog.String(KeyRequestID, requestID))
}

// WithTraceID returns a logger carrying the trace ID, so log lines can be
// joined with exported spans. An empty ID leaves the logger unchanged.
func WithTraceID(logger *slog.Logger, traceID string) *slog.Logger {
	if traceID == "" {
		return logger
	}
	return logger.With(slog.String(KeyTraceID, traceID))
}

// Provider returns a slog attribute for the OAuth provider name.
func Provider(name string) slog.Attr {
	return slog.String(KeyProvider, name)
}

// Host returns a slog attribute for the request Host header.
// Control characters are stripped since the value is client supplied.
func Host(host string) slog.Attr {
	return slog.String(KeyHost, stripControl(host))
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		// Return an empty Group that slog will omit from output
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// HashForLogging returns a short SHA256 prefix of a sensitive value so that
// log lines can be correlated without exposing the value itself.
// Returns an empty string for empty input.
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:8])
}

// StateHash returns a slog attribute with the hashed OAuth state value.
func StateHash(state string) slog.Attr {
	return slog.String(KeyState, HashForLogging(state))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// stripControl removes ASCII control characters so that attacker supplied
// values cannot forge additional log lines in text output.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
