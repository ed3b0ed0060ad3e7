package pipeline

import (
	"context"

	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/extract"
	"github.com/joseph-ayodele/w2-reporter/internal/remote"
)

// TextExtractor turns a PDF into per-page text.
type TextExtractor interface {
	ExtractPages(ctx context.Context, doc entity.RawDocument) ([]string, error)
}

// FieldExtractor finds field candidates in page text.
type FieldExtractor interface {
	Extract(pages []string) extract.Candidates
}

// Validator turns candidates into validated fields or the first violation.
type Validator interface {
	Validate(c extract.Candidates) (entity.ExtractedFields, error)
}

// Submitter runs the two-step remote submission.
type Submitter interface {
	Submit(ctx context.Context, fields entity.ExtractedFields, doc entity.RawDocument) (remote.Submission, error)
}

// Recorder keeps an audit trail of outcomes. Optional.
type Recorder interface {
	Record(ctx context.Context, rec entity.SubmissionRecord) error
}
