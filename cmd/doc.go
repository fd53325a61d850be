// Package cmd implements the command-line interface for decap-oauth.
//
// This package provides the following commands:
//   - serve: Start the OAuth relay (/auth, /callback) and the metrics server
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
// Relay settings come from environment variables (see package config); the
// serve flags override the matching variables when set explicitly.
package cmd
