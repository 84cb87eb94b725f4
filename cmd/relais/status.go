package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current authorization state",
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

			status, err := manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !status.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			if status.User != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", status.User)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
			}
			return nil
		},
	}
}
