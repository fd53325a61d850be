package config

import "fmt"

// ConfigurationError reports an invalid or missing configuration value.
// It is only ever produced at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
