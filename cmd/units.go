package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// newUnitsCmd creates the 'units' subcommand, a dry run over the checkpoint
// store.
func newUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "Lists the generated search terms with their checkpoint state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			units, partition, err := appInstance.Plan(cmd.Context())
			if err != nil {
				return err
			}
			state := make(map[crawler.SearchUnit]string, len(units))
			for _, u := range partition.Done {
				state[u] = "done"
			}
			for _, u := range partition.Pending {
				state[u] = "pending"
			}
			for _, u := range partition.Corrupt {
				state[u] = "corrupt"
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tUNIT\tSTATE\tCHECKPOINT")
			for i, u := range units {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, u, state[u], crawler.CheckpointName(u))
			}
			fmt.Fprintf(tw, "\n%d done, %d pending, %d corrupt\n",
				len(partition.Done), len(partition.Pending), len(partition.Corrupt))
			return tw.Flush()
		},
	}
}
