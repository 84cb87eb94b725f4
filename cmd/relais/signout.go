package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSignOutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Discard the local authorization",
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

			if err := manager.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
