package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
)

const testKey = "FinPro-Secret-Key"

var (
	testFields = entity.ExtractedFields{
		EmployerIDNumber:   "12-3456789",
		TaxpayerIDNumber:   "123-45-6789",
		Wages:              "75000.00",
		FederalTaxWithheld: "12500.00",
	}
	testDoc = entity.RawDocument{Content: []byte("%PDF-1.7 body"), MediaType: "application/pdf", Filename: "w2.pdf"}
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

// fakeService counts calls per endpoint and answers with the configured
// handlers.
type fakeService struct {
	reports atomic.Int32
	files   atomic.Int32
	report  func(n int32, w http.ResponseWriter, r *http.Request)
	file    func(n int32, w http.ResponseWriter, r *http.Request)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/reports":
		f.report(f.reports.Add(1), w, r)
	case "/files":
		f.file(f.files.Add(1), w, r)
	default:
		http.NotFound(w, r)
	}
}

func created(body string) func(int32, http.ResponseWriter, *http.Request) {
	return func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, body)
	}
}

func status(code int) func(int32, http.ResponseWriter, *http.Request) {
	return func(_ int32, w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"nope"}`, code)
	}
}

func newTestClient(t *testing.T, svc *fakeService, maxRetries int) (*Client, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c := NewClient(Config{
		BaseURL:    srv.URL + "/",
		APIKey:     testKey,
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		RetryDelay: time.Second,
	}, nil, WithSleeper(rec.sleep))
	return c, rec
}

func TestSubmit_Success(t *testing.T) {
	svc := &fakeService{
		report: func(_ int32, w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, testKey, r.Header.Get(HeaderAPIKey))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{
				"ein":                  "12-3456789",
				"ssn":                  "123-45-6789",
				"wages":                "75000.00",
				"federal_tax_withheld": "12500.00",
			}, body)
			created(`{"report_id":"r-1"}`)(0, w, r)
		},
		file: func(_ int32, w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, testKey, r.Header.Get(HeaderAPIKey))
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "r-1", r.FormValue("report_id"))
			f, hdr, err := r.FormFile("file")
			if assert.NoError(t, err) {
				defer f.Close()
				b, _ := io.ReadAll(f)
				assert.Equal(t, testDoc.Content, b)
				assert.Equal(t, "w2.pdf", hdr.Filename)
				assert.Equal(t, "application/pdf", hdr.Header.Get("Content-Type"))
			}
			created(`{"file_id":"f-1"}`)(0, w, r)
		},
	}
	c, rec := newTestClient(t, svc, 3)

	sub, err := c.Submit(context.Background(), testFields, testDoc)
	require.NoError(t, err)
	assert.Equal(t, Submission{State: constants.StateFileSubmitted, ReportID: "r-1", FileID: "f-1"}, sub)
	assert.EqualValues(t, 1, svc.reports.Load())
	assert.EqualValues(t, 1, svc.files.Load())
	assert.Empty(t, rec.waits)
}

func TestSubmit_RetriesServerErrorsWithBackoff(t *testing.T) {
	svc := &fakeService{
		report: func(n int32, w http.ResponseWriter, r *http.Request) {
			if n <= 3 {
				status(http.StatusInternalServerError)(n, w, r)
				return
			}
			created(`{"report_id":"r-1"}`)(n, w, r)
		},
		file: created(`{"file_id":"f-1"}`),
	}
	c, rec := newTestClient(t, svc, 3)

	sub, err := c.Submit(context.Background(), testFields, testDoc)
	require.NoError(t, err)
	assert.Equal(t, constants.StateFileSubmitted, sub.State)
	assert.EqualValues(t, 4, svc.reports.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestSubmit_ReportFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(int32, http.ResponseWriter, *http.Request)
		kind     Kind
		status   int
		attempts int
	}{
		{"client error", status(http.StatusBadRequest), KindClientError, 400, 1},
		{"auth rejected", status(http.StatusUnauthorized), KindAuthRejected, 401, 1},
		{"exhausted", status(http.StatusServiceUnavailable), KindExhausted, 503, 3},
		{"not json", created(`not json`), KindInvalidResponse, 0, 1},
		{"missing id", created(`{}`), KindInvalidResponse, 0, 1},
		{"empty id", created(`{"report_id":""}`), KindInvalidResponse, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{report: tt.handler, file: created(`{"file_id":"f-1"}`)}
			c, _ := newTestClient(t, svc, 2)

			sub, err := c.Submit(context.Background(), testFields, testDoc)

			var re *Error
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.kind, re.Kind)
			assert.Equal(t, StepReport, re.Step)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.attempts, re.Attempts)
			assert.Equal(t, constants.StateNotStarted, sub.State)
			assert.Empty(t, sub.ReportID)
			assert.EqualValues(t, 0, svc.files.Load(), "file step must not run")
		})
	}
}

func TestSubmit_NonSuccessStatusIsFinal(t *testing.T) {
	svc := &fakeService{report: status(http.StatusNotModified), file: created(`{"file_id":"f-1"}`)}
	c, rec := newTestClient(t, svc, 3)

	sub, err := c.Submit(context.Background(), testFields, testDoc)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindUnexpected, re.Kind)
	assert.Equal(t, http.StatusNotModified, re.StatusCode)
	assert.Equal(t, 1, re.Attempts)
	assert.True(t, re.Terminal())
	assert.Empty(t, rec.waits)
	assert.EqualValues(t, 1, svc.reports.Load())
	assert.Equal(t, constants.StateNotStarted, sub.State)
}

func TestClassify(t *testing.T) {
	canceled := &url.Error{Op: "Post", URL: "http://x", Err: context.Canceled}
	assert.Equal(t, KindUnexpected, classify(StepReport, 1, canceled).Kind)
	assert.Equal(t, KindUnexpected, classify(StepReport, 1, &StatusError{StatusCode: 302}).Kind)
	assert.Equal(t, KindExhausted, classify(StepFile, 4, &StatusError{StatusCode: 500}).Kind)
	assert.Equal(t, KindExhausted, classify(StepFile, 4, &url.Error{Op: "Post", URL: "http://x", Err: errors.New("reset")}).Kind)
}

func TestSubmit_FileFailureIsPartial(t *testing.T) {
	svc := &fakeService{
		report: created(`{"report_id":"r-1"}`),
		file:   status(http.StatusBadGateway),
	}
	c, rec := newTestClient(t, svc, 3)

	sub, err := c.Submit(context.Background(), testFields, testDoc)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, StepFile, re.Step)
	assert.Equal(t, KindExhausted, re.Kind)
	assert.Equal(t, 4, re.Attempts)
	assert.Equal(t, constants.StatePartialFailure, sub.State)
	assert.Equal(t, "r-1", sub.ReportID)
	assert.EqualValues(t, 1, svc.reports.Load(), "report must not be re-sent")
	assert.EqualValues(t, 4, svc.files.Load())
	assert.Len(t, rec.waits, 3)
}

func TestSubmit_TimeoutIsRetried(t *testing.T) {
	svc := &fakeService{
		report: func(n int32, w http.ResponseWriter, r *http.Request) {
			if n == 1 {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			created(`{"report_id":"r-1"}`)(n, w, r)
		},
		file: created(`{"file_id":"f-1"}`),
	}
	c, rec := newTestClient(t, svc, 1)
	c.httpClient.Timeout = 100 * time.Millisecond

	sub, err := c.Submit(context.Background(), testFields, testDoc)
	require.NoError(t, err)
	assert.Equal(t, "r-1", sub.ReportID)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
}

func TestSubmit_UnreachableServiceIsExhausted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	c := NewClient(Config{BaseURL: base, APIKey: testKey, MaxRetries: 2, RetryDelay: time.Millisecond}, nil, WithSleeper(rec.sleep))

	_, err := c.Submit(context.Background(), testFields, testDoc)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindExhausted, re.Kind)
	assert.Equal(t, 3, re.Attempts)
	assert.Zero(t, re.StatusCode)
}

func TestSubmit_RateLimited(t *testing.T) {
	svc := &fakeService{report: created(`{"report_id":"r-1"}`), file: created(`{"file_id":"f-1"}`)}
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: testKey, RateLimit: 1000}, nil)
	require.NotNil(t, c.limiter)

	sub, err := c.Submit(context.Background(), testFields, testDoc)
	require.NoError(t, err)
	assert.Equal(t, constants.StateFileSubmitted, sub.State)
}

func TestSubmitReport_RejectsMalformedPayload(t *testing.T) {
	svc := &fakeService{report: created(`{"report_id":"r-1"}`), file: created(`{"file_id":"f-1"}`)}
	c, _ := newTestClient(t, svc, 0)

	bad := testFields
	bad.Wages = "75,000"
	_, err := c.SubmitReport(context.Background(), bad)
	require.Error(t, err)

	var re *Error
	assert.False(t, errors.As(err, &re))
	assert.EqualValues(t, 0, svc.reports.Load())
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindAuthRejected, Step: StepReport, StatusCode: 401, Attempts: 1, Cause: &StatusError{StatusCode: 401}}
	assert.Equal(t, "remote report step: auth_rejected after 1 attempt(s) (status 401): status 401", err.Error())
	assert.True(t, err.Terminal())
	assert.True(t, IsAuth(err))
	assert.False(t, (&Error{Kind: KindExhausted}).Terminal())
}
