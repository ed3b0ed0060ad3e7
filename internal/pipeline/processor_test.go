package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/extract"
	"github.com/joseph-ayodele/w2-reporter/internal/pdftext"
	"github.com/joseph-ayodele/w2-reporter/internal/remote"
	"github.com/joseph-ayodele/w2-reporter/internal/validate"
)

const w2Page = `a Employee's social security number 123-45-6789
b Employer identification number (EIN) 12-3456789
1 Wages, tips, other compensation 75,000.00
2 Federal income tax withheld 12,500.00
`

var doc = entity.RawDocument{Content: []byte("%PDF-1.7"), MediaType: "application/pdf", Filename: "w2.pdf"}

type stubText struct {
	pages []string
	err   error
}

func (s stubText) ExtractPages(context.Context, entity.RawDocument) ([]string, error) {
	return s.pages, s.err
}

type stubSubmitter struct {
	sub    remote.Submission
	err    error
	calls  int
	ctxErr error
	fields entity.ExtractedFields
}

func (s *stubSubmitter) Submit(ctx context.Context, f entity.ExtractedFields, _ entity.RawDocument) (remote.Submission, error) {
	s.calls++
	s.ctxErr = ctx.Err()
	s.fields = f
	return s.sub, s.err
}

type memRecorder struct {
	mu   sync.Mutex
	recs []entity.SubmissionRecord
	err  error
}

func (m *memRecorder) Record(_ context.Context, r entity.SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return m.err
}

func newProcessor(text TextExtractor, sub Submitter, logger *slog.Logger, opts ...Option) *Processor {
	return NewProcessor(logger, text, extract.NewExtractor(logger), validate.NewValidator(validate.DefaultRules()), sub, opts...)
}

func okSubmitter() *stubSubmitter {
	return &stubSubmitter{sub: remote.Submission{State: constants.StateFileSubmitted, ReportID: "r-1", FileID: "f-1"}}
}

func TestProcess_Success(t *testing.T) {
	sub := okSubmitter()
	rec := &memRecorder{}
	p := newProcessor(stubText{pages: []string{w2Page}}, sub, nil, WithRecorder(rec))

	env := p.Process(context.Background(), doc)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"data": {"reportId": "r-1", "fileId": "f-1"},
		"extractedFields": {
			"employerIdNumber": "12-3456789",
			"taxpayerIdNumber": "123-45-6789",
			"wages": "75000.00",
			"federalTaxWithheld": "12500.00"
		}
	}`, string(b))

	require.Len(t, rec.recs, 1)
	r := rec.recs[0]
	assert.Equal(t, string(constants.StateFileSubmitted), r.State)
	assert.Equal(t, doc.ContentHashHex(), r.DocumentSHA256)
	assert.Equal(t, "r-1", *r.ReportID)
	assert.Equal(t, "f-1", *r.FileID)
	assert.Nil(t, r.ErrorCode)
}

func TestProcess_FailureEnvelopeShape(t *testing.T) {
	p := newProcessor(stubText{err: pdftext.ErrNoText}, okSubmitter(), nil)
	env := p.Process(context.Background(), doc)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"error": {
			"code": "extraction_failed",
			"message": "No extractable text found in PDF; scanned documents are not supported"
		}
	}`, string(b))
}

func TestProcess_ErrorMapping(t *testing.T) {
	fileFailed := &remote.Error{Kind: remote.KindExhausted, Step: remote.StepFile, Attempts: 4}
	tests := []struct {
		name       string
		text       stubText
		sub        *stubSubmitter
		code       string
		details    map[string]string
		submitted  bool
		finalState constants.SubmissionState
	}{
		{
			name: "pdf parse error",
			text: stubText{err: fmt.Errorf("%w: exit 1", pdftext.ErrParse)},
			sub:  okSubmitter(), code: constants.CodeExtractionFailed,
			finalState: constants.StateNotStarted,
		},
		{
			name: "pdftotext missing",
			text: stubText{err: fmt.Errorf("%w: pdftotext: %w", pdftext.ErrUnavailable, exec.ErrNotFound)},
			sub:  okSubmitter(), code: constants.CodeInternal,
			finalState: constants.StateNotStarted,
		},
		{
			name: "no pages",
			text: stubText{err: pdftext.ErrNoPages},
			sub:  okSubmitter(), code: constants.CodeExtractionFailed,
			finalState: constants.StateNotStarted,
		},
		{
			name: "unexpected text error",
			text: stubText{err: errors.New("disk full")},
			sub:  okSubmitter(), code: constants.CodeInternal,
			finalState: constants.StateNotStarted,
		},
		{
			name:       "missing field",
			text:       stubText{pages: []string{"b Employer identification number 12-3456789\n"}},
			sub:        okSubmitter(),
			code:       constants.CodeFieldMissing,
			details:    map[string]string{"field": "taxpayerIdNumber", "reason": "missing"},
			finalState: constants.StateNotStarted,
		},
		{
			name: "unlabeled reserved ein",
			text: stubText{pages: []string{"a Employee's social security number 123-45-6789\n91-2345678\n" +
				"1 Wages, tips, other compensation 75,000.00\n2 Federal income tax withheld 12,500.00\n"}},
			sub:        okSubmitter(),
			code:       constants.CodeFieldMissing,
			details:    map[string]string{"field": "employerIdNumber", "reason": "missing"},
			finalState: constants.StateNotStarted,
		},
		{
			name:       "invalid field",
			text:       stubText{pages: []string{"Employer identification number 91-2345678\n" + w2Page}},
			sub:        okSubmitter(),
			code:       constants.CodeFieldInvalid,
			details:    map[string]string{"field": "employerIdNumber", "reason": "out_of_range"},
			finalState: constants.StateNotStarted,
		},
		{
			name: "report rejected",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: &remote.Error{Kind: remote.KindClientError, Step: remote.StepReport, StatusCode: 400, Attempts: 1},
			},
			code:       constants.CodeRemoteClientError,
			details:    map[string]string{"status": "400"},
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
		{
			name: "auth rejected",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: &remote.Error{Kind: remote.KindAuthRejected, Step: remote.StepReport, StatusCode: 401, Attempts: 1},
			},
			code:       constants.CodeRemoteClientError,
			details:    map[string]string{"status": "401"},
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
		{
			name: "report exhausted",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: &remote.Error{Kind: remote.KindExhausted, Step: remote.StepReport, StatusCode: 503, Attempts: 4},
			},
			code:       constants.CodeRemoteUnavailable,
			details:    map[string]string{"attempts": "4"},
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
		{
			name: "report invalid response",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: &remote.Error{Kind: remote.KindInvalidResponse, Step: remote.StepReport, Attempts: 1},
			},
			code:       constants.CodeInternal,
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
		{
			name: "report unexpected status",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: &remote.Error{Kind: remote.KindUnexpected, Step: remote.StepReport, StatusCode: 304, Attempts: 1},
			},
			code:       constants.CodeInternal,
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
		{
			name: "file step failed",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StatePartialFailure, ReportID: "r-9"},
				err: fileFailed,
			},
			code:       constants.CodePartialSubmission,
			details:    map[string]string{"reportId": "r-9", "cause": "exhausted"},
			submitted:  true,
			finalState: constants.StatePartialFailure,
		},
		{
			name: "unclassified submit error",
			text: stubText{pages: []string{w2Page}},
			sub: &stubSubmitter{
				sub: remote.Submission{State: constants.StateNotStarted},
				err: errors.New("encode report: boom"),
			},
			code:       constants.CodeInternal,
			submitted:  true,
			finalState: constants.StateNotStarted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			p := newProcessor(tt.text, tt.sub, nil, WithRecorder(rec))

			env := p.Process(context.Background(), doc)

			assert.False(t, env.Success)
			assert.Nil(t, env.Data)
			assert.Nil(t, env.ExtractedFields)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.ErrorCode())
			assert.NotEmpty(t, env.Error.Message)
			assert.Equal(t, tt.details, env.Error.Details)
			if tt.submitted {
				assert.Equal(t, 1, tt.sub.calls)
			} else {
				assert.Zero(t, tt.sub.calls, "submission must not start")
			}

			require.Len(t, rec.recs, 1)
			assert.Equal(t, string(tt.finalState), rec.recs[0].State)
			assert.Equal(t, tt.code, *rec.recs[0].ErrorCode)
		})
	}
}

func TestProcess_SubmissionSurvivesCallerCancel(t *testing.T) {
	sub := okSubmitter()
	p := newProcessor(stubText{pages: []string{w2Page}}, sub, nil)

	// The text stub ignores ctx, so extraction succeeds on a cancelled
	// context and the submitter observes the detached one.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env := p.Process(ctx, doc)
	assert.True(t, env.Success)
	assert.NoError(t, sub.ctxErr)
}

func TestProcess_RecorderErrorDoesNotChangeOutcome(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	p := newProcessor(stubText{pages: []string{w2Page}}, okSubmitter(), nil, WithRecorder(rec))

	env := p.Process(context.Background(), doc)
	assert.True(t, env.Success)
	assert.Len(t, rec.recs, 1)
}

func TestProcess_LogsMaskIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newProcessor(stubText{pages: []string{w2Page}}, okSubmitter(), logger)

	env := p.Process(context.Background(), doc)
	require.True(t, env.Success)

	out := buf.String()
	assert.Contains(t, out, "**-***6789")
	assert.Contains(t, out, "***-**-6789")
	assert.NotContains(t, out, "12-3456789")
	assert.NotContains(t, out, "123-45-6789")
}

func TestExtractFields_DoesNotSubmit(t *testing.T) {
	sub := okSubmitter()
	rec := &memRecorder{}
	p := newProcessor(stubText{pages: []string{w2Page}}, sub, nil, WithRecorder(rec))

	fields, err := p.ExtractFields(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "75000.00", fields.Wages)
	assert.Zero(t, sub.calls)
	assert.Empty(t, rec.recs)
}
