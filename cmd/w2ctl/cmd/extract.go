package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/internal/app"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/ingest"
)

var maskIDs bool

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Print the validated fields of a W-2 PDF",
	Long: `Extracts and validates the four W-2 fields without contacting the
reporting service. Exits non-zero when a field is missing or invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&maskIDs, "mask", false, "mask EIN and SSN in the output")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := ingest.ReadDocument(args[0], cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	// Extraction never touches the ledger.
	cfg.Ledger.DSN = ""
	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	fields, err := a.Processor.ExtractFields(cmd.Context(), doc)
	if err != nil {
		return err
	}
	if maskIDs {
		fields.EmployerIDNumber = common.MaskEIN(fields.EmployerIDNumber)
		fields.TaxpayerIDNumber = common.MaskSSN(fields.TaxpayerIDNumber)
	}
	return printJSON(cmd.OutOrStdout(), fields)
}
