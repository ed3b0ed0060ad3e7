// Package app assembles the processing pipeline from configuration.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/extract"
	"github.com/joseph-ayodele/w2-reporter/internal/pdftext"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
	"github.com/joseph-ayodele/w2-reporter/internal/remote"
	"github.com/joseph-ayodele/w2-reporter/internal/repository"
	"github.com/joseph-ayodele/w2-reporter/internal/validate"
)

// App holds the wired components. Ledger and Submissions are nil when no
// ledger DSN is configured.
type App struct {
	Processor   *pipeline.Processor
	Remote      *remote.Client
	Ledger      *repository.DB
	Submissions repository.SubmissionRepository
	logger      *slog.Logger
}

// Build wires text extraction, field extraction, validation, the remote
// client and the optional ledger into a Processor.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	text := pdftext.NewExtractor(pdftext.Config{Pdftotext: cfg.Extract.Pdftotext}, logger)
	fields := extract.NewExtractor(logger, extract.WithReservedEINPrefixes(cfg.Extract.ReservedEINPrefixes))

	rules := validate.DefaultRules()
	if len(cfg.Extract.ReservedEINPrefixes) > 0 {
		rules.ReservedEINPrefixes = cfg.Extract.ReservedEINPrefixes
	}
	validator := validate.NewValidator(rules)

	client := remote.NewClient(remote.Config{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		Timeout:    cfg.Remote.Timeout,
		MaxRetries: cfg.Remote.MaxRetries,
		RetryDelay: cfg.Remote.RetryDelay,
		RateLimit:  cfg.Remote.RateLimit,
	}, logger)

	a := &App{Remote: client, logger: logger}

	var opts []pipeline.Option
	if cfg.Ledger.DSN != "" {
		db, err := OpenLedger(ctx, cfg.Ledger.DSN, logger)
		if err != nil {
			return nil, err
		}
		a.Ledger = db
		a.Submissions = repository.NewSubmissionRepository(db, logger)
		opts = append(opts, pipeline.WithRecorder(a.Submissions))
	}

	a.Processor = pipeline.NewProcessor(logger, text, fields, validator, client, opts...)
	return a, nil
}

// OpenLedger opens and health checks the submission ledger.
func OpenLedger(ctx context.Context, dsn string, logger *slog.Logger) (*repository.DB, error) {
	db, err := repository.Open(ctx, repository.Config{
		DSN:             dsn,
		MaxConns:        10,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     3 * time.Second,
	}, logger)
	if err != nil {
		return nil, common.NewAppError("LEDGER_ERROR", "open ledger", err)
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		db.Close()
		return nil, common.NewAppError("LEDGER_ERROR", "ledger health check", err)
	}
	return db, nil
}

// Close releases the ledger, if any.
func (a *App) Close() {
	if a.Ledger != nil {
		a.Ledger.Close()
	}
}
