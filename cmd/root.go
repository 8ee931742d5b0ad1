package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"webauth/internal/authflow"
	"webauth/internal/config"
	"webauth/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeCancelled indicates the user cancelled the sign-in.
	ExitCodeCancelled = 2
	// ExitCodeAuthFailed indicates the authentication flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeConfigError indicates invalid or unusable configuration.
	ExitCodeConfigError = 4
)

// Global flags
var (
	configPath string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command for the webauth application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "webauth",
	Short: "Sign in to OAuth2 and SAML identity providers from the terminal",
	Long: `webauth drives an interactive OAuth2 or SAML web sign-in in a browser
and reports the credentials it receives.

The flow is configured in ~/.config/webauth/config.yaml (or --config).
A sign-in either completes, is cancelled, or fails; the exit code tells
which.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
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
	rootCmd.SetVersionTemplate(`{{printf "webauth version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(getExitCode(err))
	}
}

func printError(w io.Writer, err error) {
	var cfgErr config.ConfigurationError
	if errors.As(err, &cfgErr) {
		fmt.Fprintln(w, cfgErr.DetailedError())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if errors.Is(err, authflow.ErrUserCancelled) {
		return ExitCodeCancelled
	}

	var cfgErr config.ConfigurationError
	if errors.As(err, &cfgErr) || authflow.IsConfigurationError(err) {
		return ExitCodeConfigError
	}

	var authErr *authflow.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}

	// Default to general error
	return ExitCodeError
}

// loadConfig reads, validates and applies the configuration selected by the
// global flags, and initialises logging from it.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}

	level, _ := logging.ParseLogLevel(cfg.LogLevel)
	logging.Init(level, os.Stderr, logging.Format(cfg.LogFormat))
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/webauth/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newResumeCmd())
}
