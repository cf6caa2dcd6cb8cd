package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/getgetleads/connect/internal/oauth"
	"github.com/getgetleads/connect/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeReconnectRequired indicates the user must connect the provider
	// again: it is not connected, its refresh token was rejected, or it
	// lacks a required scope.
	ExitCodeReconnectRequired = 2
	// ExitCodeAuthFailed indicates the authorization flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags
var (
	configPath string
	debug      bool
)

// rootCmd represents the base command for the getgetleads application.
var rootCmd = &cobra.Command{
	Use:   "getgetleads",
	Short: "Connect GetGetLeads to your Google and LinkedIn accounts",
	Long: `getgetleads manages the provider connections GetGetLeads uses to read
your calendar and post on your behalf.

It runs the browser consent flow, keeps the resulting sessions, refreshes
access tokens before they expire, and reports which providers are connected.
Client secrets stay with the GetGetLeads backend; this tool only ever holds
the tokens issued to you.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if cmd.Name() == "serve" {
			level = logging.LevelInfo
		}
		if debug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "getgetleads version %s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var denied *oauth.ProviderDeniedError
	var exchangeFailed *oauth.ExchangeFailedError
	if errors.As(err, &denied) || errors.As(err, &exchangeFailed) || errors.Is(err, oauth.ErrInvalidState) {
		return ExitCodeAuthFailed
	}

	if oauth.NeedsReconnect(err) {
		return ExitCodeReconnectRequired
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/getgetleads/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(serveCmd)
}
