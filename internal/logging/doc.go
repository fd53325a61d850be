// Package logging holds the slog conventions shared by the relay packages.
//
// Attribute keys are constants so that the authorize, callback and exchange
// paths log under the same names. Helpers derive request-scoped loggers:
//
//	logger := logging.WithTraceID(
//	    logging.WithOperation(slog.Default(), "callback"),
//	    traceID)
//	logger.Info("token exchange finished",
//	    logging.Provider("github"),
//	    logging.Status(logging.StatusSuccess))
//
// Access tokens are only ever logged as a length marker (SanitizeToken) and
// state values as a short hash (StateHash). Client supplied hosts are stripped
// of control characters before they reach a handler.
//
// Logger and SlogAdapter let components that take a minimal logging interface,
// such as the rate limiter, run on slog or be silenced with Discard.
package logging
