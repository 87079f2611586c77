package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/pkg/client"
)

// recordTable adapts a record listing for table output.
type recordTable struct {
	records []*client.Record
}

func (t recordTable) TableHeaders() []string {
	return []string{"ID", "ENTITY", "MINERAL", "PERIOD", "TOTAL", "STATUS", "DUE"}
}

func (t recordTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.records))
	for _, r := range t.records {
		rows = append(rows, []string{
			r.ID,
			r.Entity,
			r.Mineral,
			fmt.Sprintf("%s..%s",
				r.ReportingPeriod.Start.Format("2006-01-02"),
				r.ReportingPeriod.End.Format("2006-01-02")),
			fmt.Sprintf("%.2f %s", r.Breakdown.Total, r.Currency),
			r.Status,
			r.PaymentDate.Format("2006-01-02"),
		})
	}
	return rows
}

// NewRecordsCmd groups the record inspection and lifecycle subcommands.
func NewRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and manage royalty records",
	}
	cmd.AddCommand(
		newRecordsListCmd(),
		newRecordsGetCmd(),
		newRecordsStatusCmd(),
		newRecordsPayCmd(),
	)
	return cmd
}

func newRecordsListCmd() *cobra.Command {
	var (
		entity   string
		mineral  string
		status   string
		sort     string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List royalty records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			list, err := cliCtx.Client.Records().List(cmd.Context(), client.ListRecordsOptions{
				Entity:   entity,
				Mineral:  mineral,
				Status:   status,
				Sort:     sort,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}

			if err := PrintResult(cmd, recordTable{records: list.Records}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d records (page %d/%d)\n",
				len(list.Records), list.Total, list.Page, list.TotalPages)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entity, "entity", "", "filter by extraction entity")
	flags.StringVar(&mineral, "mineral", "", "filter by mineral")
	flags.StringVar(&status, "status", "", "filter by status")
	flags.StringVar(&sort, "sort", "", "sort specification, e.g. payment_date:desc")
	flags.IntVar(&page, "page", 1, "page number")
	flags.IntVar(&pageSize, "page-size", 20, "page size")

	return cmd
}

func newRecordsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get RECORD_ID",
		Short: "Show one royalty record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			record, err := cliCtx.Client.Records().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
	return cmd
}

func newRecordsStatusCmd() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "status RECORD_ID NEW_STATUS",
		Short: "Transition a record to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			record, err := cliCtx.Client.Records().ChangeStatus(cmd.Context(), args[0], args[1], notes)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("record %s is now %s", record.ID, record.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes recorded on the status change")
	return cmd
}

func newRecordsPayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay RECORD_ID AMOUNT",
		Short: "Record a partial payment against a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("amount must be a number, got %q", args[1])
			}

			record, err := cliCtx.Client.Records().AddPayment(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}

			var paid float64
			for _, p := range record.PartialPayments {
				paid += p.Amount
			}
			outstanding := record.Breakdown.Total - paid
			if outstanding < 0 {
				outstanding = 0
			}
			PrintSuccess(cmd, fmt.Sprintf("payment of %.2f recorded; %.2f outstanding, status %s",
				amount, outstanding, record.Status))
			return nil
		},
	}
	return cmd
}

// NewOverdueCmd builds the overdue refresh command, typically run from cron
// between worker sweeps.
func NewOverdueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Manage overdue detection",
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Flip records past their payment date to overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			start := time.Now()
			n, err := cliCtx.Client.Records().RefreshOverdue(cmd.Context())
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("%d records transitioned to overdue in %v",
				n, time.Since(start).Truncate(time.Millisecond)))
			return nil
		},
	}

	cmd.AddCommand(refresh)
	return cmd
}
