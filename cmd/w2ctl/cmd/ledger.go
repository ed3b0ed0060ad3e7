package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/app"
	"github.com/joseph-ayodele/w2-reporter/internal/export"
	"github.com/joseph-ayodele/w2-reporter/internal/repository"
)

var (
	ledgerState string
	ledgerSince time.Duration
	ledgerLimit int
	exportOut   string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the submission ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded submissions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerPartialCmd = &cobra.Command{
	Use:   "partial",
	Short: "List reports whose file upload failed",
	Long: `Lists PARTIAL_FAILURE submissions. Each row names the report id that
the reporting service accepted without a document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledgerState = string(constants.StatePartialFailure)
		return runLedgerList(cmd, args)
	},
}

var ledgerPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the ledger database and count records per state",
	Args:  cobra.NoArgs,
	RunE:  runLedgerPing,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the ledger to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE:  runLedgerExport,
}

func init() {
	for _, c := range []*cobra.Command{ledgerListCmd, ledgerPartialCmd, ledgerExportCmd} {
		c.Flags().DurationVar(&ledgerSince, "since", 0, "only records newer than this, e.g. 24h")
		c.Flags().IntVar(&ledgerLimit, "limit", 0, "maximum rows, 0 = all")
	}
	ledgerListCmd.Flags().StringVar(&ledgerState, "state", "", "filter by submission state")
	ledgerExportCmd.Flags().StringVar(&ledgerState, "state", "", "filter by submission state")
	ledgerExportCmd.Flags().StringVarP(&exportOut, "out", "o", "w2-submissions.xlsx", "output file")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerPartialCmd, ledgerExportCmd, ledgerPingCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func ledgerFilter() repository.SubmissionFilter {
	f := repository.SubmissionFilter{State: ledgerState, Limit: ledgerLimit}
	if ledgerSince > 0 {
		f.Since = time.Now().Add(-ledgerSince)
	}
	return f
}

func openSubmissions(cmd *cobra.Command) (repository.SubmissionRepository, func(), error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Ledger.DSN == "" {
		return nil, nil, errors.New("no ledger configured, set LEDGER_DSN")
	}
	db, err := app.OpenLedger(cmd.Context(), cfg.Ledger.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewSubmissionRepository(db, logger), db.Close, nil
}

func runLedgerList(cmd *cobra.Command, _ []string) error {
	repo, closeFn, err := openSubmissions(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	recs, err := repo.List(cmd.Context(), ledgerFilter())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSTATE\tREPORT\tFILE\tERROR\tFILENAME")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.UTC().Format(time.RFC3339), r.State,
			orDash(r.ReportID), orDash(r.FileID), orDash(r.ErrorCode), r.Filename)
	}
	return tw.Flush()
}

func runLedgerPing(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.DSN == "" {
		return errors.New("no ledger configured, set LEDGER_DSN")
	}
	// OpenLedger runs the health check.
	db, err := app.OpenLedger(cmd.Context(), cfg.Ledger.DSN, logger)
	if err != nil {
		return fmt.Errorf("ledger health: FAIL (%w)", err)
	}
	defer db.Close()

	recs, err := repository.NewSubmissionRepository(db, logger).List(cmd.Context(), repository.SubmissionFilter{})
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, r := range recs {
		counts[r.State]++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ledger health: OK (%s)\n", db.Dialect())
	fmt.Fprintf(out, "records: %d\n", len(recs))
	for _, st := range []constants.SubmissionState{
		constants.StateNotStarted,
		constants.StateReportSubmitted,
		constants.StateFileSubmitted,
		constants.StatePartialFailure,
	} {
		fmt.Fprintf(out, "- %-17s %d\n", st, counts[string(st)])
	}
	return nil
}

func runLedgerExport(cmd *cobra.Command, _ []string) error {
	repo, closeFn, err := openSubmissions(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	b, err := export.NewService(repo, nil).ExportSubmissionsXLSX(cmd.Context(), ledgerFilter())
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, b, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", exportOut)
	return nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
