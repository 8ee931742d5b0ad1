package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"webauth/internal/config"
	"webauth/internal/metrics"
	"webauth/pkg/logging"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var (
		suspendOnInterrupt bool
		showSecrets        bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run an interactive sign-in",
		Long: `Run an interactive OAuth2 or SAML sign-in and print the result.

The identity provider, protocol and browser surface come from the
configuration file. With the system surface webauth opens your default
browser and listens on a loopback port for the redirect; with the
embedded surface it drives its own browser window.

Examples:
  webauth login                           # Sign in with the default config
  webauth login --config corp.yaml        # Sign in with another config
  webauth login --suspend-on-interrupt    # Ctrl-C suspends instead of cancelling`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if suspendOnInterrupt && cfg.Store.Type == config.StoreMemory {
				logging.Warn("CLI", "The memory store does not outlive this process; a suspended flow cannot be resumed")
			}

			h, cleanup, err := newFlowHost(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			h.suspendOnInterrupt = suspendOnInterrupt
			h.showSecrets = showSecrets

			return h.run(cmd.Context(), h.login)
		},
	}

	cmd.Flags().BoolVar(&suspendOnInterrupt, "suspend-on-interrupt", false, "store the flow on Ctrl-C so it can be resumed later")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print tokens and codes in full")
	return cmd
}

// newFlowHost wires the store, metrics, progress and signal handling for a
// command. The returned function releases them.
func newFlowHost(cmd *cobra.Command, cfg config.Config) (*flowHost, func(), error) {
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	h := &flowHost{
		cfg:      cfg,
		store:    store,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		progress: newProgress(cmd.ErrOrStderr(), quiet),
		signals:  signals,
		sessionOpts: sessionOptions{
			notice: cmd.ErrOrStderr(),
		},
	}
	if cfg.MetricsAddr != "" {
		h.recorder = metrics.New(nil)
	}

	cleanup := func() {
		signal.Stop(signals)
		closeStore()
	}
	return h, cleanup, nil
}
