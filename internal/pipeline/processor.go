// Package pipeline runs one uploaded W-2 through text extraction, field
// extraction, validation and remote submission, and reports the outcome as
// an Envelope.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/remote"
)

type Option func(*Processor)

// WithRecorder records every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// Processor coordinates the stages. Stages hold no per-request state, so one
// Processor serves concurrent requests.
type Processor struct {
	logger    *slog.Logger
	text      TextExtractor
	fields    FieldExtractor
	validator Validator
	submitter Submitter
	recorder  Recorder
}

func NewProcessor(logger *slog.Logger, text TextExtractor, fields FieldExtractor, validator Validator, submitter Submitter, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:    logger,
		text:      text,
		fields:    fields,
		validator: validator,
		submitter: submitter,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ExtractFields runs text extraction, field extraction and validation only.
// Nothing is sent or recorded.
func (p *Processor) ExtractFields(ctx context.Context, doc entity.RawDocument) (entity.ExtractedFields, error) {
	log := p.requestLogger(ctx, doc)
	start := time.Now()

	pages, err := p.text.ExtractPages(ctx, doc)
	if err != nil {
		ae := extractionError(err)
		log.Warn("pipeline.text.failed", "code", ae.Code, "error", err)
		return entity.ExtractedFields{}, ae
	}
	log.Debug("pipeline.text.ok", "pages", len(pages))

	cands := p.fields.Extract(pages)
	log.Debug("pipeline.extract.ok", "found", len(cands), "expected", len(constants.Fields))

	fields, err := p.validator.Validate(cands)
	if err != nil {
		ae := validationError(err)
		log.Warn("pipeline.validate.failed", "code", ae.Code, "field", ae.Details["field"], "reason", ae.Details["reason"])
		return entity.ExtractedFields{}, ae
	}
	log.Info("pipeline.validate.ok",
		"ein", common.MaskEIN(fields.EmployerIDNumber),
		"ssn", common.MaskSSN(fields.TaxpayerIDNumber),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

// Process runs the whole sequence and never returns an error: every outcome,
// including unexpected failures, is expressed in the Envelope.
//
// The remote submission runs detached from ctx cancellation. Once the report
// step has started, a disconnecting caller must not leave the submission in
// an unknown state; the per-call timeouts still bound it.
func (p *Processor) Process(ctx context.Context, doc entity.RawDocument) Envelope {
	log := p.requestLogger(ctx, doc)
	start := time.Now()

	fields, err := p.ExtractFields(ctx, doc)
	if err != nil {
		ae, ok := common.AsAppError(err)
		if !ok {
			ae = internalError(err)
		}
		return p.fail(ctx, log, doc, remote.Submission{State: constants.StateNotStarted}, ae)
	}

	sub, err := p.submitter.Submit(context.WithoutCancel(ctx), fields, doc)
	if err != nil {
		return p.fail(ctx, log, doc, sub, remoteError(sub, err))
	}

	p.record(ctx, log, doc, sub, nil)
	log.Info("pipeline.process.ok",
		"report_id", sub.ReportID,
		"file_id", sub.FileID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Succeeded(sub.ReportID, sub.FileID, fields)
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, doc entity.RawDocument, sub remote.Submission, ae *common.AppError) Envelope {
	attrs := []any{"code", ae.Code, "state", sub.State}
	if ae.Cause != nil {
		attrs = append(attrs, "error", ae.Cause)
	}
	if sub.ReportID != "" {
		attrs = append(attrs, "report_id", sub.ReportID)
	}
	log.Error("pipeline.process.failed", attrs...)

	p.record(ctx, log, doc, sub, ae)
	return Failed(ae.Code, ae.Message, ae.Details)
}

func (p *Processor) record(ctx context.Context, log *slog.Logger, doc entity.RawDocument, sub remote.Submission, ae *common.AppError) {
	if p.recorder == nil {
		return
	}
	state := sub.State
	if state == "" {
		state = constants.StateNotStarted
	}
	rec := entity.SubmissionRecord{
		ID:             uuid.New(),
		DocumentSHA256: doc.ContentHashHex(),
		Filename:       doc.Filename,
		State:          string(state),
		ReportID:       strPtr(sub.ReportID),
		FileID:         strPtr(sub.FileID),
		CreatedAt:      time.Now().UTC(),
	}
	if ae != nil {
		rec.ErrorCode = strPtr(ae.Code)
		rec.ErrorMessage = strPtr(ae.Message)
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Error("pipeline.record.failed", "record_id", rec.ID, "error", err)
	}
}

func (p *Processor) requestLogger(ctx context.Context, doc entity.RawDocument) *slog.Logger {
	return common.LoggerFromContext(ctx, p.logger).With("filename", doc.Filename, "bytes", len(doc.Content))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
