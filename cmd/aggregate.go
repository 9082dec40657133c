package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newAggregateCmd creates the 'aggregate' subcommand.
func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Combines every existing checkpoint into one report without crawling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Aggregate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d search terms, %d officers, %d appointments\n",
				len(report.Dataset.Units), len(report.Dataset.Officers), len(report.Dataset.Appointments))
			for _, unit := range report.Dataset.Corrupt {
				fmt.Fprintf(out, "skipped corrupt checkpoint: %s\n", unit)
			}
			for _, loc := range report.Locations {
				fmt.Fprintln(out, loc)
			}
			return nil
		},
	}
}
