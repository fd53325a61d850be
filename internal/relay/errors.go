package relay

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies per-request failures.
type ErrorKind string

const (
	KindMissingParameter ErrorKind = "missing_parameter"
	KindInvalidParameter ErrorKind = "invalid_parameter"
	KindProviderMismatch ErrorKind = "provider_mismatch"
	KindInvalidState     ErrorKind = "invalid_state"
	KindProviderDenied   ErrorKind = "provider_denied"
	KindExchangeFailure  ErrorKind = "exchange_failure"
	KindInternal         ErrorKind = "internal"
)

// RequestError is written to the client as a plain-text body with Status.
type RequestError struct {
	Kind    ErrorKind
	Message string // response body
	Status  int    // HTTP status code
	Err     error  // underlying cause, logged but never written to the client
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a new request error
func NewRequestError(kind ErrorKind, message string, status int) *RequestError {
	return &RequestError{
		Kind:    kind,
		Message: message,
		Status:  status,
	}
}

// Response bodies shared by both endpoints.
const (
	MsgNoProvider   = "No provider specified"
	MsgNoHost       = "No host header"
	MsgInvalidHost  = "Invalid host header"
	MsgCodeRequired = "Code is required"
	MsgInvalidState = "Invalid state"
)

// Common request errors
var (
	// ErrMissingParameter indicates a required query parameter or header is absent
	ErrMissingParameter = func(msg string) *RequestError {
		return NewRequestError(KindMissingParameter, msg, http.StatusBadRequest)
	}

	// ErrInvalidParameter indicates a parameter is present but unusable
	ErrInvalidParameter = func(msg string) *RequestError {
		return NewRequestError(KindInvalidParameter, msg, http.StatusBadRequest)
	}

	// ErrProviderMismatch indicates the request names a provider this installation does not serve
	ErrProviderMismatch = func(provider string) *RequestError {
		return NewRequestError(KindProviderMismatch, fmt.Sprintf("Unexpected provider %q", provider), http.StatusBadRequest)
	}

	// ErrInvalidState indicates the signed state failed verification
	ErrInvalidState = func(cause error) *RequestError {
		e := NewRequestError(KindInvalidState, MsgInvalidState, http.StatusBadRequest)
		e.Err = cause
		return e
	}

	// ErrProviderDenied indicates the provider redirected back with an error
	ErrProviderDenied = func(code, description string) *RequestError {
		msg := "Authorization failed: " + code
		if description != "" {
			msg += ": " + description
		}
		return NewRequestError(KindProviderDenied, msg, http.StatusBadRequest)
	}

	// ErrExchangeFailure indicates the code-for-token exchange failed
	ErrExchangeFailure = func(cause error) *RequestError {
		e := NewRequestError(KindExchangeFailure, cause.Error(), http.StatusInternalServerError)
		e.Err = cause
		return e
	}

	// ErrInternal indicates a server-side failure unrelated to the request
	ErrInternal = func(cause error) *RequestError {
		e := NewRequestError(KindInternal, "Internal server error", http.StatusInternalServerError)
		e.Err = cause
		return e
	}
)
