package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rhuss/relais/pkg/agent/mcpagent"
	"github.com/rhuss/relais/pkg/config"
	"github.com/rhuss/relais/pkg/credential"
)

func newSignInCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Run the device-code sign-in flow",
		Long: `Sign in to the upstream service through the authorization agent.

The agent starts a device-code flow: a user code and a verification
URL are printed, the code is entered there out of band, and the
command waits for confirmation. On success a fresh credential is
minted from the token endpoint.

Already signed in, the command only verifies that a usable credential
can be obtained; use --force to run the flow again regardless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			manager, cleanup, err := newAgentManager(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := manager.SignIn(cmd.Context(), force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Run the sign-in flow even when already authenticated")

	return cmd
}

// newAgentManager connects the authorization agent and builds a
// credential manager around it, with sign-in prompts going to the
// command's output.
func newAgentManager(cmd *cobra.Command, cfg *config.Config) (*credential.Manager, func(), error) {
	if cfg.Agent.Command == "" {
		return nil, nil, fmt.Errorf("agent.command is not configured")
	}
	agentClient := mcpagent.New(mcpagent.Config{
		Command: cfg.Agent.Command,
		Args:    cfg.Agent.Args,
	})
	if err := agentClient.Connect(cmd.Context()); err != nil {
		return nil, nil, fmt.Errorf("connecting authorization agent: %w", err)
	}

	exchanger := credential.NewTokenExchanger(
		cfg.Upstream.TokenURL,
		credential.StaticTokenSource(cfg.Credential.OAuthToken),
		cfg.Upstream.ExchangeTimeout,
	)
	manager := credential.NewManager(credential.NewStore(), agentClient, exchanger, credential.ManagerConfig{
		RenewInterval: cfg.Credential.RenewInterval,
		RenewAhead:    cfg.Credential.RenewAhead,
		Prompter: func(userCode, verificationURI string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Open %s and enter code: %s\n", verificationURI, userCode)
		},
	})
	cleanup := func() { agentClient.Close() }
	return manager, cleanup, nil
}
