package main

import (
	"github.com/spf13/cobra"

	"github.com/rhuss/relais/pkg/config"
	"github.com/rhuss/relais/pkg/debug"
)

const rootLongDesc = `Relais bridges chat clients to an upstream streaming completion
service. It reassembles the upstream's event stream, normalizes the
deltas, and delivers them to callers as newline-delimited JSON.

Access to the upstream is gated by a short-lived credential minted
from a token endpoint; the interactive device-code sign-in runs
through an external authorization agent.

Run the bridge with:
  relais serve

Manage the authorization with:
  relais signin        Run the device-code sign-in flow
  relais signout       Discard the local authorization
  relais status        Show the current authorization state`

func newRootCmd() *cobra.Command {
	var configPath string
	var debugFlag bool

	cmd := &cobra.Command{
		Use:           "relais",
		Short:         "Relais - streaming chat bridge",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "INFO"
			if debugFlag {
				level = "DEBUG"
			}
			debug.Init("", level)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newSignInCmd(&configPath),
		newSignOutCmd(&configPath),
		newStatusCmd(&configPath),
		newModelsCmd(&configPath),
	)

	return cmd
}

func loadConfig(configPath *string) (*config.Config, error) {
	path := ""
	if configPath != nil {
		path = *configPath
	}
	return config.Load(path)
}
