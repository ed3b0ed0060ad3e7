// Package pdftext turns a text-bearing PDF into per-page text using poppler's
// pdftotext. Scanned, image-only documents are rejected with ErrNoText; no
// OCR is attempted.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/w2-reporter/internal/entity"
)

var (
	ErrNoPages = errors.New("pdf has no pages")
	ErrNoText  = errors.New("no extractable text, document may be a scanned image")
	ErrParse   = errors.New("failed to parse pdf")
	// ErrUnavailable means the pdftotext binary could not be started. It is
	// an environment fault, not a property of the document.
	ErrUnavailable = errors.New("pdftotext is not available")
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; used by tests.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// ExtractPages returns the text of every page in document order.
func (e *Extractor) ExtractPages(ctx context.Context, doc entity.RawDocument) ([]string, error) {
	start := time.Now()
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	tmpDir, err := os.MkdirTemp("", "w2-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("pdftext.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "document.pdf")
	if err := os.WriteFile(in, doc.Content, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", in, "-")
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		e.logger.Error("pdftext.unavailable", "binary", e.cfg.Pdftotext, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, e.cfg.Pdftotext, err)
	}
	if err != nil {
		e.logger.Error("pdftext.parse_failed",
			"filename", doc.Filename,
			"exit", describeExit(err),
			"stderr", truncate(string(errb), 512),
		)
		return nil, fmt.Errorf("%w: %s", ErrParse, describeExit(err))
	}

	pages := SplitPages(string(out))
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	if e.cfg.MaxPages > 0 && len(pages) > e.cfg.MaxPages {
		pages = pages[:e.cfg.MaxPages]
	}

	chars := 0
	for _, p := range pages {
		chars += len(strings.TrimSpace(p))
	}
	if chars == 0 {
		e.logger.Warn("pdftext.no_text", "pages", len(pages), "filename", doc.Filename)
		return nil, ErrNoText
	}

	e.logger.Debug("pdftext.ok",
		"pages", len(pages),
		"chars", chars,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

// SplitPages splits pdftotext output on the form feed it writes after every
// page. The trailing form feed does not start a new page.
func SplitPages(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\f")
	return strings.Split(text, "\f")
}
