package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/pkg/client"
)

type contractTable struct {
	contracts []*client.Contract
}

func (t contractTable) TableHeaders() []string {
	return []string{"ID", "ENTITY", "MINERAL", "METHOD", "START", "END"}
}

func (t contractTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.contracts))
	for _, ct := range t.contracts {
		end := "open"
		if ct.EndDate != nil {
			end = ct.EndDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			ct.ID,
			ct.Entity,
			ct.Mineral,
			ct.CalculationType,
			ct.StartDate.Format("2006-01-02"),
			end,
		})
	}
	return rows
}

// NewContractsCmd groups the contract management subcommands.
func NewContractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Manage royalty contracts",
	}
	cmd.AddCommand(
		newContractsCreateCmd(),
		newContractsListCmd(),
		newContractsActiveCmd(),
	)
	return cmd
}

func newContractsCreateCmd() *cobra.Command {
	var (
		entity    string
		mineral   string
		method    string
		rate      float64
		startDate string
		endDate   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new royalty contract",
		Example: `  royaltyctl contracts create --entity "Ngwenya Mine" --mineral "Iron Ore" \
    --method ad_valorem --rate 0.05 --start 2025-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			ct, err := cliCtx.Client.Contracts().Create(cmd.Context(), client.ContractRequest{
				Entity:            entity,
				Mineral:           mineral,
				CalculationType:   method,
				CalculationParams: client.CalculationParams{Rate: rate},
				StartDate:         startDate,
				EndDate:           endDate,
			})
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("contract %s created for %s / %s", ct.ID, ct.Entity, ct.Mineral))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entity, "entity", "", "extraction entity name [REQUIRED]")
	flags.StringVar(&mineral, "mineral", "", "mineral name [REQUIRED]")
	flags.StringVar(&method, "method", "fixed",
		"calculation method (fixed, ad_valorem, percentage, tiered, sliding_scale, minimum_guaranteed)")
	flags.Float64Var(&rate, "rate", 0, "per-unit or fractional rate [REQUIRED]")
	flags.StringVar(&startDate, "start", "", "validity start date (YYYY-MM-DD) [REQUIRED]")
	flags.StringVar(&endDate, "end", "", "validity end date (YYYY-MM-DD), open-ended when omitted")

	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("mineral")
	_ = cmd.MarkFlagRequired("rate")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func newContractsListCmd() *cobra.Command {
	var (
		entity  string
		mineral string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			list, err := cliCtx.Client.Contracts().List(cmd.Context(), client.ListContractsOptions{
				Entity:  entity,
				Mineral: mineral,
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, contractTable{contracts: list.Contracts})
		},
	}

	cmd.Flags().StringVar(&entity, "entity", "", "filter by extraction entity")
	cmd.Flags().StringVar(&mineral, "mineral", "", "filter by mineral")
	return cmd
}

func newContractsActiveCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "active ENTITY MINERAL",
		Short: "Resolve the contract governing an entity and mineral",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			var when time.Time
			if at != "" {
				if when, err = parseDateFlag("at", at); err != nil {
					return err
				}
			}

			ct, err := cliCtx.Client.Contracts().Active(cmd.Context(), args[0], args[1], when)
			if err != nil {
				return err
			}
			return printJSON(cmd, ct)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "resolve at this date (YYYY-MM-DD, default today)")
	return cmd
}
