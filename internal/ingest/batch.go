package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/repository"
)

type Option func(*Batch)

// WithLedger enables skipping documents that already reached the remote
// service.
func WithLedger(l Ledger) Option {
	return func(b *Batch) { b.ledger = l }
}

// WithMaxBytes sets the per-file size limit.
func WithMaxBytes(n int64) Option {
	return func(b *Batch) {
		if n > 0 {
			b.maxBytes = n
		}
	}
}

// WithForce processes documents even when the ledger has them.
func WithForce(force bool) Option {
	return func(b *Batch) { b.force = force }
}

// Batch processes PDFs read from disk.
type Batch struct {
	proc     Processor
	ledger   Ledger
	maxBytes int64
	force    bool
	logger   *slog.Logger
}

func NewBatch(proc Processor, logger *slog.Logger, opts ...Option) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Batch{proc: proc, maxBytes: constants.MaxUploadBytes, logger: logger}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ReadDocument loads a PDF from disk and applies the same size, extension
// and magic-byte checks as the upload endpoint.
func ReadDocument(path string, maxBytes int64) (entity.RawDocument, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return entity.RawDocument{}, err
	}
	if fi.IsDir() {
		return entity.RawDocument{}, fmt.Errorf("%s: is a directory", path)
	}
	if fi.Size() > maxBytes {
		return entity.RawDocument{}, fmt.Errorf("%s: %d bytes exceeds limit of %d", path, fi.Size(), maxBytes)
	}
	if !constants.IsAllowedExt(filepath.Ext(path)) {
		return entity.RawDocument{}, fmt.Errorf("%s: only .pdf files are accepted", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return entity.RawDocument{}, err
	}
	if !bytes.HasPrefix(b, constants.PDFMagic) {
		return entity.RawDocument{}, fmt.Errorf("%s: not a PDF document", path)
	}
	return entity.RawDocument{Content: b, MediaType: constants.MediaTypePDF, Filename: filepath.Base(path)}, nil
}

// ProcessPath runs one file through the pipeline. A returned error means
// the file could not be read or the ledger could not be consulted; a
// pipeline failure is reported in the result's envelope instead.
func (b *Batch) ProcessPath(ctx context.Context, path string) (Result, error) {
	out := Result{Path: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	out.Path = abs

	doc, err := ReadDocument(abs, b.maxBytes)
	if err != nil {
		b.logger.Warn("ingest.read.failed", "path", abs, "error", err)
		return out, err
	}
	out.SHA256 = doc.ContentHashHex()

	if b.ledger != nil && !b.force {
		prev, err := b.ledger.LatestByDocument(ctx, out.SHA256)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return out, fmt.Errorf("ledger lookup: %w", err)
		case alreadyReported(prev.State):
			out.Skipped = true
			out.Previous = prev.State
			b.logger.Info("ingest.skipped", "path", abs, "sha256", out.SHA256, "previous_state", prev.State)
			return out, nil
		}
	}

	env := b.proc.Process(ctx, doc)
	out.Envelope = &env
	if !env.Success {
		out.Err = env.Error.Message
	}
	b.logger.Info("ingest.processed", "path", abs, "success", env.Success, "code", env.ErrorCode())
	return out, nil
}

// alreadyReported is true once the remote service holds a report for the
// document; sending it again would create a duplicate.
func alreadyReported(state string) bool {
	return state == string(constants.StateFileSubmitted) || state == string(constants.StatePartialFailure)
}

// ProcessDirectory walks root, skips hidden entries if requested, and calls
// ProcessPath for each PDF. It returns per-file results and aggregate stats.
func (b *Batch) ProcessDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := b.ProcessPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
		}
		results = append(results, r)
		switch {
		case r.Skipped:
			stats.Skipped++
		case r.Err != "":
			stats.Failed++
		default:
			stats.Succeeded++
		}
		return nil
	})

	b.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
