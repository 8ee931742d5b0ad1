package cmd

import (
	"context"

	"webauth/internal/authflow"
	"webauth/internal/config"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	var (
		token       string
		showSecrets bool
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a suspended sign-in",
		Long: `Continue a sign-in that was suspended with login --suspend-on-interrupt.

The flow is taken out of the configured store, so a token can be used
only once. Resuming needs a store that outlives the process (file or
redis) and, for the system surface, the same callback port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Type == config.StoreMemory {
				return authflow.NewConfigurationError("cannot resume from the memory store; set store.type to file or redis", nil)
			}

			h, cleanup, err := newFlowHost(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			h.showSecrets = showSecrets

			return h.run(cmd.Context(), func(ctx context.Context) error {
				return h.resume(ctx, token)
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "correlation token printed when the flow was suspended")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print tokens and codes in full")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
