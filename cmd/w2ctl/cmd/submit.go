package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/internal/app"
	"github.com/joseph-ayodele/w2-reporter/internal/ingest"
)

var submitCmd = &cobra.Command{
	Use:   "submit FILE",
	Short: "Run the full pipeline for a W-2 PDF",
	Long: `Extracts, validates and submits a W-2 PDF to the configured reporting
service, then prints the response envelope. The outcome is recorded when
LEDGER_DSN is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	doc, err := ingest.ReadDocument(args[0], cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	env := a.Processor.Process(cmd.Context(), doc)
	if err := printJSON(cmd.OutOrStdout(), env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("submission failed: %s", env.ErrorCode())
	}
	return nil
}
