package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/mockapi"
)

var (
	mockAddr   string
	mockPrefix string
	mockAPIKey string
)

var mockAPICmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve a local reporting service",
	Long: `Serves POST /reports and POST /files under the given prefix, with the
same API key check and validation as the real reporting service.`,
	Args: cobra.NoArgs,
	RunE: runMockAPI,
}

func init() {
	mockAPICmd.Flags().StringVar(&mockAddr, "addr", ":8001", "listen address")
	mockAPICmd.Flags().StringVar(&mockPrefix, "prefix", "/mock-api", "route prefix")
	mockAPICmd.Flags().StringVar(&mockAPIKey, "api-key", mockapi.DefaultAPIKey, "accepted X-API-Key value")
	rootCmd.AddCommand(mockAPICmd)
}

func runMockAPI(cmd *cobra.Command, _ []string) error {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger := common.NewLogger(common.LogConfig{Level: level}, os.Stderr)

	svc := mockapi.New(logger, mockapi.WithAPIKey(mockAPIKey))
	srv := &http.Server{
		Addr:              mockAddr,
		Handler:           svc.Routes(mockPrefix),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock reporting service listening", "addr", mockAddr, "prefix", mockPrefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	reports, files := svc.Counts()
	logger.Info("mock reporting service stopped", "reports", reports, "files", files)
	return nil
}
