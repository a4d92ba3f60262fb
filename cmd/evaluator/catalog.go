package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List prompt sets, model configs and SQL connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				promptSets, err := a.client.ListPromptSets(ctx)
				if err != nil {
					return err
				}
				modelConfigs, err := a.client.ListModelConfigs(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROMPT SET\tNAME\tDESCRIPTION")
				for _, ps := range promptSets {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", ps.ID, ps.Name, ps.Description)
				}
				fmt.Fprintln(tw, "\t\t")
				fmt.Fprintln(tw, "MODEL CONFIG\tNAME\tMODEL\tAPI KEY")
				for _, mc := range modelConfigs {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", mc.ID, mc.Name, mc.Model, mc.MaskedAPIKey())
				}

				connections, err := a.client.ListConnections(ctx)
				if err != nil {
					a.logger.Warn("Failed to load connections", "error", err)
				} else {
					fmt.Fprintln(tw, "\t\t")
					fmt.Fprintln(tw, "CONNECTION\tNAME\tDATABASE\tSCHEMA")
					for _, c := range connections {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.Database, c.Schema)
					}
				}
				return tw.Flush()
			})
		},
	}
}
