package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/pkg/client"
)

// NewSubmitCmd builds the submit command: one royalty record from flags.
func NewSubmitCmd() *cobra.Command {
	var (
		entity          string
		mineral         string
		contractID      string
		volume          float64
		unitPrice       float64
		commodityPrice  float64
		grossValue      float64
		periodStart     string
		periodEnd       string
		currency        string
		paymentDate     string
		declaredAmount  float64
		notes           string
		confirmWarnings bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one royalty record",
		Example: `  royaltyctl submit --entity "Maloma Colliery" --mineral Coal \
    --volume 1000 --unit-price 25 \
    --period-start 2025-04-01 --period-end 2025-04-30 \
    --payment-date 2025-07-15`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			start, err := parseDateFlag("period-start", periodStart)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("period-end", periodEnd)
			if err != nil {
				return err
			}
			due, err := parseDateFlag("payment-date", paymentDate)
			if err != nil {
				return err
			}

			result, err := cliCtx.Client.Records().Submit(cmd.Context(), client.SubmitRecordRequest{
				Entity:           entity,
				Mineral:          mineral,
				ContractID:       contractID,
				ProductionVolume: volume,
				UnitPrice:        unitPrice,
				CommodityPrice:   commodityPrice,
				GrossValue:       grossValue,
				ReportingPeriod:  client.Period{Start: start, End: end},
				Currency:         currency,
				PaymentDate:      due,
				Status:           "Pending",
				DeclaredAmount:   declaredAmount,
				Notes:            notes,
				ConfirmWarnings:  confirmWarnings,
			})
			if err != nil {
				return err
			}

			for _, w := range result.Validation.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning [%s]: %s\n", w.Field, w.Message)
			}
			PrintSuccess(cmd, fmt.Sprintf("record %s created, total %s %.2f due %s",
				result.Record.ID, result.Record.Currency,
				result.Record.Breakdown.Total,
				result.Record.PaymentDate.Format("2006-01-02")))
			return PrintResult(cmd, result.Record)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entity, "entity", "", "extraction entity name [REQUIRED]")
	flags.StringVar(&mineral, "mineral", "", "mineral name [REQUIRED]")
	flags.StringVar(&contractID, "contract", "", "governing contract ID (resolved automatically when empty)")
	flags.Float64Var(&volume, "volume", 0, "production volume in tons [REQUIRED]")
	flags.Float64Var(&unitPrice, "unit-price", 0, "unit price per ton")
	flags.Float64Var(&commodityPrice, "commodity-price", 0, "market commodity price per ton")
	flags.Float64Var(&grossValue, "gross-value", 0, "declared gross production value")
	flags.StringVar(&periodStart, "period-start", "", "reporting period start (YYYY-MM-DD) [REQUIRED]")
	flags.StringVar(&periodEnd, "period-end", "", "reporting period end (YYYY-MM-DD) [REQUIRED]")
	flags.StringVar(&currency, "currency", "SZL", "payment currency")
	flags.StringVar(&paymentDate, "payment-date", time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02"),
		"payment due date (YYYY-MM-DD)")
	flags.Float64Var(&declaredAmount, "declared", 0, "operator-declared royalty amount for cross-checking")
	flags.StringVar(&notes, "notes", "", "free-form notes")
	flags.BoolVar(&confirmWarnings, "confirm-warnings", false, "persist the record even when validation warnings fire")

	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("mineral")
	_ = cmd.MarkFlagRequired("volume")
	_ = cmd.MarkFlagRequired("period-start")
	_ = cmd.MarkFlagRequired("period-end")

	return cmd
}
