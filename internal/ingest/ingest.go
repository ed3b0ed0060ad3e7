// Package ingest feeds W-2 PDFs from the local filesystem through the
// processing pipeline, one file, a directory tree, or a watched folder.
package ingest

import (
	"context"

	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
)

// Result is the per-file ingest outcome.
type Result struct {
	Path     string
	SHA256   string
	Skipped  bool   // an earlier submission of the same bytes exists
	Previous string // state of that earlier submission
	Envelope *pipeline.Envelope
	Err      string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Skipped   uint32
	Failed    uint32
}

// Processor runs one document through the pipeline.
type Processor interface {
	Process(ctx context.Context, doc entity.RawDocument) pipeline.Envelope
}

// Ledger answers whether a document was submitted before.
type Ledger interface {
	LatestByDocument(ctx context.Context, sha256 string) (entity.SubmissionRecord, error)
}
