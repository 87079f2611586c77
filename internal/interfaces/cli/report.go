package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/pkg/client"
)

// NewReportCmd builds the dashboard summary command.
func NewReportCmd() *cobra.Command {
	var (
		entity  string
		mineral string
		status  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the royalty dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			summary, err := cliCtx.Client.Reports().Summary(cmd.Context(), client.ListRecordsOptions{
				Entity:  entity,
				Mineral: mineral,
				Status:  status,
			})
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, summary)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Records:          %d\n", summary.TotalRecords)
			fmt.Fprintf(out, "Total royalties:  %.2f\n", summary.TotalRoyalties)
			fmt.Fprintf(out, "Outstanding:      %.2f\n\n", summary.TotalOutstanding)

			fmt.Fprintln(out, "By entity:")
			for _, name := range sortedKeys(summary.ByEntity) {
				g := summary.ByEntity[name]
				fmt.Fprintf(out, "  %-24s %4d records  %12.2f royalties  %12.2f outstanding\n",
					name, g.Count, g.Amount, g.Outstanding)
			}

			fmt.Fprintln(out, "\nBy status:")
			statuses := make([]string, 0, len(summary.ByStatus))
			for s := range summary.ByStatus {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(out, "  %-16s %d\n", s, summary.ByStatus[s])
			}

			if len(summary.OverdueAging) > 0 {
				fmt.Fprintln(out, "\nOverdue aging:")
				for _, b := range summary.OverdueAging {
					fmt.Fprintf(out, "  %-12s %4d records  %12.2f outstanding\n",
						b.Label, b.Count, b.Outstanding)
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entity, "entity", "", "filter by extraction entity")
	flags.StringVar(&mineral, "mineral", "", "filter by mineral")
	flags.StringVar(&status, "status", "", "filter by status")

	return cmd
}

func sortedKeys(m map[string]client.GroupTotal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
