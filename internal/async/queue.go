package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
)

// ErrClosed is returned once Shutdown has started.
var ErrClosed = errors.New("processor queue is shutting down")

// Job is one document waiting for a worker. The worker answers on result.
type Job struct {
	Doc         entity.RawDocument
	SubmittedAt time.Time
	RequestID   string

	ctx    context.Context
	result chan pipeline.Envelope
}

// Queue bounds how many documents are processed at once.
type Queue interface {
	Do(ctx context.Context, doc entity.RawDocument) (pipeline.Envelope, error)
	Shutdown(ctx context.Context)
}
