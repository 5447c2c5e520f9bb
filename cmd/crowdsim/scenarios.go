package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/crowd"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range crowd.ScenarioNames() {
				fmt.Fprintf(tw, "%s\t%s\n", name, crowd.ScenarioDescription(name))
			}
			return tw.Flush()
		},
	}
}
