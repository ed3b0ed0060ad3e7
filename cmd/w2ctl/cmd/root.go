package cmd

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/internal/common"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "w2ctl",
	Short: "Extract, validate and submit W-2 PDFs",
	Long: `w2ctl runs the W-2 pipeline from the command line.

Commands:
  extract   - print the validated fields of a W-2 PDF
  submit    - run the full pipeline and print the response envelope
  batch     - submit every W-2 PDF under a directory
  watch     - submit W-2 PDFs as they appear in a directory
  mock-api  - serve a local stand-in for the reporting service
  ledger    - inspect and export the submission ledger`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file (overrides W2_CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads configuration the same way the daemon does.
func loadConfig() (*common.Config, *slog.Logger, error) {
	if cfgFile != "" {
		if err := os.Setenv("W2_CONFIG_FILE", cfgFile); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, common.NewLogger(cfg.Log, os.Stderr), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
