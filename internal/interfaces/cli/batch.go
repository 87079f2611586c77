package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/pkg/client"
)

// NewImportCmd builds the bulk CSV import command.
func NewImportCmd() *cobra.Command {
	var confirmWarnings bool

	cmd := &cobra.Command{
		Use:   "import CSV_FILE",
		Short: "Bulk import royalty records from a CSV file",
		Long: "Imports royalty records from a CSV file. Rows fail independently;\n" +
			"the import report lists every rejected row with its reason.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", args[0], err)
			}
			defer f.Close()

			report, importErr := cliCtx.Client.Records().ImportCSV(cmd.Context(), f, confirmWarnings)
			if report == nil {
				return importErr
			}

			for _, w := range report.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning row %d [%s]: %s\n", w.Row, w.Field, w.Message)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error row %d [%s]: %s\n", e.Row, e.Field, e.Message)
			}
			PrintSuccess(cmd, fmt.Sprintf("%d of %d rows imported", report.Successful, report.TotalRows))

			if report.Successful == 0 && len(report.Errors) > 0 {
				return fmt.Errorf("import rejected every row")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmWarnings, "confirm-warnings", false,
		"persist rows even when validation warnings fire")
	return cmd
}

// NewExportCmd builds the CSV export command.
func NewExportCmd() *cobra.Command {
	var (
		entity  string
		mineral string
		status  string
		outFile string
		archive string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export royalty records as CSV",
		Long: "Exports the filtered record set as CSV to stdout, a local file,\n" +
			"or the server's object store when --archive names an object.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			opts := client.ListRecordsOptions{
				Entity:  entity,
				Mineral: mineral,
				Status:  status,
			}

			if archive != "" {
				result, err := cliCtx.Client.Records().Archive(cmd.Context(), opts, archive)
				if err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("%d records archived to %s", result.Rows, result.Location))
				return nil
			}

			out := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("cannot create %s: %w", outFile, err)
				}
				defer f.Close()
				out = f
			}
			if err := cliCtx.Client.Records().ExportCSV(cmd.Context(), opts, out); err != nil {
				return err
			}
			if outFile != "" {
				PrintSuccess(cmd, "export written to "+outFile)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entity, "entity", "", "filter by extraction entity")
	flags.StringVar(&mineral, "mineral", "", "filter by mineral")
	flags.StringVar(&status, "status", "", "filter by status")
	flags.StringVarP(&outFile, "file", "f", "", "write CSV to this file instead of stdout")
	flags.StringVar(&archive, "archive", "", "archive to the server object store under this object name")

	return cmd
}
