package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/internal/app"
	"github.com/joseph-ayodele/w2-reporter/internal/export"
	"github.com/joseph-ayodele/w2-reporter/internal/ingest"
	"github.com/joseph-ayodele/w2-reporter/internal/repository"
)

var (
	batchDir        string
	batchOut        string
	batchForce      bool
	batchShowHidden bool
	watchDebounce   time.Duration
	watchInitial    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Submit every W-2 PDF under a directory",
	Long: `Walks --dir and runs each PDF through the pipeline. With a ledger
configured, documents already accepted by the reporting service are skipped
unless --force is given, and --out writes the resulting ledger rows to XLSX.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Submit W-2 PDFs as they appear in a directory",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	for _, c := range []*cobra.Command{batchCmd, watchCmd} {
		c.Flags().StringVar(&batchDir, "dir", "", "directory to process (required)")
		c.Flags().BoolVar(&batchForce, "force", false, "process documents the ledger already has")
		_ = c.MarkFlagRequired("dir")
	}
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "write the ledger rows of this run to an XLSX file")
	batchCmd.Flags().BoolVar(&batchShowHidden, "include-hidden", false, "descend into hidden directories")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "wait for writes to settle")
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", false, "also process PDFs already present")
	rootCmd.AddCommand(batchCmd, watchCmd)
}

func newBatch(cmd *cobra.Command) (*ingest.Batch, *app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []ingest.Option{ingest.WithMaxBytes(cfg.Server.MaxUploadBytes), ingest.WithForce(batchForce)}
	if a.Submissions != nil {
		opts = append(opts, ingest.WithLedger(a.Submissions))
	}
	return ingest.NewBatch(a.Processor, logger, opts...), a, nil
}

func runBatch(cmd *cobra.Command, _ []string) error {
	b, a, err := newBatch(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if batchOut != "" && a.Submissions == nil {
		return errors.New("--out needs a ledger, set LEDGER_DSN")
	}

	started := time.Now()
	results, stats, err := b.ProcessDirectory(cmd.Context(), batchDir, !batchShowHidden)
	printResults(cmd.OutOrStdout(), results)
	fmt.Fprintf(cmd.OutOrStdout(), "\nscanned=%d matched=%d succeeded=%d skipped=%d failed=%d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.Skipped, stats.Failed)
	if err != nil {
		return err
	}

	if batchOut != "" {
		xlsx, err := export.NewService(a.Submissions, nil).ExportSubmissionsXLSX(cmd.Context(), repository.SubmissionFilter{Since: started})
		if err != nil {
			return err
		}
		if err := os.WriteFile(batchOut, xlsx, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", batchOut)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", stats.Failed, stats.Matched)
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	b, a, err := newBatch(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	err = b.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{batchDir},
		InitialScan: watchInitial,
		Debounce:    watchDebounce,
	}, func(r ingest.Result) {
		printResults(out, []ingest.Result{r})
	})
	if errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func printResults(w io.Writer, results []ingest.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		status, detail := "ok", ""
		switch {
		case r.Skipped:
			status, detail = "skipped", r.Previous
		case r.Envelope != nil && r.Envelope.Success:
			detail = r.Envelope.Data.ReportID
		case r.Envelope != nil:
			status, detail = r.Envelope.ErrorCode(), r.Err
		case r.Err != "":
			status, detail = "error", r.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", status, r.Path, detail)
	}
	_ = tw.Flush()
}
