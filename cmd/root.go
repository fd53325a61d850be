package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the decap-oauth application
var rootCmd = &cobra.Command{
	Use:   "decap-oauth",
	Short: "OAuth popup relay for Decap CMS",
	Long: `decap-oauth lets Decap CMS (formerly Netlify CMS) log in against a Git
hosting provider without a backend of its own.

The CMS opens /auth in a popup, the relay redirects to the provider consent
page, exchanges the returned code for an access token on /callback and hands
the token back to the CMS window with postMessage.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "decap-oauth version %s\n" .Version}}`)

	rootCmd.SetArgs(withDefaultCommand(os.Args[1:]))

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// withDefaultCommand runs serve when no subcommand is named, so both
// "decap-oauth" and "decap-oauth --port 8080" start the relay.
// Root level help and version flags are left alone.
func withDefaultCommand(args []string) []string {
	if len(args) == 0 {
		return []string{"serve"}
	}
	switch args[0] {
	case "-h", "--help", "-v", "--version":
		return args
	}
	if strings.HasPrefix(args[0], "-") {
		return append([]string{"serve"}, args...)
	}
	return args
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
