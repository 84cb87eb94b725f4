package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/relais/pkg/credential"
	"github.com/rhuss/relais/pkg/upstream"
)

func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the chat models the upstream offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			exchanger := credential.NewTokenExchanger(
				cfg.Upstream.TokenURL,
				credential.StaticTokenSource(cfg.Credential.OAuthToken),
				cfg.Upstream.ExchangeTimeout,
			)
			manager := credential.NewManager(credential.NewStore(), nil, exchanger, credential.ManagerConfig{
				RenewAhead: cfg.Credential.RenewAhead,
			})
			client := upstream.NewClient(manager, cfg.Upstream.ConnectTimeout)
			defer client.Close()

			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models available.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVENDOR")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Vendor)
			}
			return w.Flush()
		},
	}
}
