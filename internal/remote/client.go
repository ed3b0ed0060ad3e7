// Package remote submits validated W-2 data to the reporting service.
//
// Submission is two non-idempotent calls: POST /reports with the extracted
// fields, then POST /files with the original PDF and the returned report id.
// Each call is retried on its own under the configured Policy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/schema"
)

// HeaderAPIKey carries the shared secret on every call.
const HeaderAPIKey = "X-API-Key"

const maxResponseBytes = 1 << 20

var (
	reportRequestSchema  = schema.MustCompile("report_request", schema.ReportRequest())
	reportResponseSchema = schema.MustCompile("report_response", schema.ReportResponse())
	fileResponseSchema   = schema.MustCompile("file_response", schema.FileResponse())
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per call
	MaxRetries int
	RetryDelay time.Duration
	RateLimit  float64 // requests per second, 0 = unlimited
}

type Option func(*Client)

// WithHTTPClient replaces the http.Client; its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleeper replaces the backoff sleep; used by tests.
func WithSleeper(s SleepFunc) Option {
	return func(c *Client) { c.sleep = s }
}

type Client struct {
	baseURL    string
	apiKey     string
	policy     Policy
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      SleepFunc
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		policy:     Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryDelay},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      Sleep,
		log:        logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type reportRequest struct {
	EIN                string `json:"ein"`
	SSN                string `json:"ssn"`
	Wages              string `json:"wages"`
	FederalTaxWithheld string `json:"federal_tax_withheld"`
}

// SubmitReport posts the extracted fields and returns the report id.
func (c *Client) SubmitReport(ctx context.Context, f entity.ExtractedFields) (string, error) {
	body, err := json.Marshal(reportRequest{
		EIN:                f.EmployerIDNumber,
		SSN:                f.TaxpayerIDNumber,
		Wages:              f.Wages,
		FederalTaxWithheld: f.FederalTaxWithheld,
	})
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := reportRequestSchema.ValidateJSON(body); err != nil {
		return "", fmt.Errorf("report payload: %w", err)
	}

	var out struct {
		ReportID string `json:"report_id"`
	}
	err = c.call(ctx, StepReport, "/reports", reportResponseSchema, &out, func() (io.Reader, string) {
		return bytes.NewReader(body), "application/json"
	})
	return out.ReportID, err
}

// SubmitFile uploads the original document for reportID and returns the
// file id.
func (c *Client) SubmitFile(ctx context.Context, reportID string, doc entity.RawDocument) (string, error) {
	body, contentType, err := encodeFile(reportID, doc)
	if err != nil {
		return "", fmt.Errorf("encode file: %w", err)
	}

	var out struct {
		FileID string `json:"file_id"`
	}
	err = c.call(ctx, StepFile, "/files", fileResponseSchema, &out, func() (io.Reader, string) {
		return bytes.NewReader(body), contentType
	})
	return out.FileID, err
}

func encodeFile(reportID string, doc entity.RawDocument) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("report_id", reportID); err != nil {
		return nil, "", err
	}

	name := doc.Filename
	if name == "" {
		name = "w2.pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", constants.MediaTypePDF)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// call runs one protocol step under the retry policy and decodes the
// validated 2xx body into out.
func (c *Client) call(ctx context.Context, step Step, path string, resp *schema.Validator, out any, body func() (io.Reader, string)) error {
	url := c.baseURL + path
	start := time.Now()

	attempts, err := Do(ctx, c.policy, c.sleepLogged(step), func(ctx context.Context, attempt int) error {
		r, ct := body()
		raw, err := c.send(ctx, step, url, r, ct, attempt)
		if err != nil {
			return err
		}
		if err := resp.ValidateJSON(raw); err != nil {
			return fmt.Errorf("%w: %v", errInvalidResponse, err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %v", errInvalidResponse, err)
		}
		return nil
	})
	if err != nil {
		rerr := classify(step, attempts, err)
		c.log.Error("remote.step.failed",
			"step", step,
			"kind", rerr.Kind,
			"status", rerr.StatusCode,
			"attempts", attempts,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return rerr
	}
	c.log.Info("remote.step.ok",
		"step", step,
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *Client) sleepLogged(step Step) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		c.log.Warn("remote.retry", "step", step, "wait_ms", d.Milliseconds())
		return c.sleep(ctx, d)
	}
}

func (c *Client) send(ctx context.Context, step Step, url string, body io.Reader, contentType string, attempt int) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)

	c.log.Debug("remote.request", "req_id", reqID, "step", step, "url", url, "attempt", attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("remote.send_error",
			"req_id", reqID, "step", step, "attempt", attempt, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("remote.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil && resp.StatusCode/100 == 2 {
		return nil, fmt.Errorf("%w: read body: %v", errInvalidResponse, err)
	}

	c.log.Debug("remote.response",
		"req_id", reqID,
		"step", step,
		"attempt", attempt,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	return raw, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// IsAuth reports whether err is a rejected API key.
func IsAuth(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindAuthRejected
}
