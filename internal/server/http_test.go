package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/async"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
)

type stubProcessor struct {
	env   pipeline.Envelope
	err   error
	calls int
	got   entity.RawDocument
	rid   string
}

func (s *stubProcessor) Do(ctx context.Context, doc entity.RawDocument) (pipeline.Envelope, error) {
	s.calls++
	s.got = doc
	s.rid = common.RequestIDFromContext(ctx)
	return s.env, s.err
}

var pdfBody = []byte("%PDF-1.7\n1 0 obj\n")

func uploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/w2/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) pipeline.Envelope {
	t.Helper()
	var env pipeline.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	h := NewHandler(&stubProcessor{}, 0, "1.2.3", nil)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"w2-reporter","version":"1.2.3"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))
}

func TestProcess_PassesDocumentThrough(t *testing.T) {
	proc := &stubProcessor{env: pipeline.Succeeded("r-1", "f-1", entity.ExtractedFields{Wages: "1.00"})}
	h := NewHandler(proc, 0, "dev", nil)

	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, uploadRequest(t, "w2.PDF", "application/pdf", pdfBody))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
	assert.Equal(t, "r-1", env.Data.ReportID)

	assert.Equal(t, 1, proc.calls)
	assert.Equal(t, pdfBody, proc.got.Content)
	assert.Equal(t, "w2.PDF", proc.got.Filename)
	assert.Equal(t, rr.Header().Get(HeaderRequestID), proc.rid)
}

func TestProcess_UploadGate(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		code   string
	}{
		{
			name: "not multipart",
			req: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/w2/process", bytes.NewReader(pdfBody))
			},
			status: http.StatusBadRequest, code: constants.CodeInvalidFile,
		},
		{
			name: "wrong field name",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				fw, _ := mw.CreateFormFile("document", "w2.pdf")
				_, _ = fw.Write(pdfBody)
				_ = mw.Close()
				r := httptest.NewRequest(http.MethodPost, "/api/w2/process", &buf)
				r.Header.Set("Content-Type", mw.FormDataContentType())
				return r
			},
			status: http.StatusBadRequest, code: constants.CodeInvalidFile,
		},
		{
			name:   "wrong extension",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "w2.txt", "application/pdf", pdfBody) },
			status: http.StatusBadRequest, code: constants.CodeInvalidFile,
		},
		{
			name:   "wrong content type",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "w2.pdf", "image/png", pdfBody) },
			status: http.StatusBadRequest, code: constants.CodeInvalidFile,
		},
		{
			name:   "no magic bytes",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "w2.pdf", "application/pdf", []byte("hello")) },
			status: http.StatusBadRequest, code: constants.CodeInvalidFile,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "w2.pdf", "application/pdf", append(append([]byte{}, pdfBody...), make([]byte, 2048)...))
			},
			status: http.StatusRequestEntityTooLarge, code: constants.CodeFileTooLarge,
		},
		{
			name: "far too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "w2.pdf", "application/pdf", make([]byte, 256<<10))
			},
			status: http.StatusRequestEntityTooLarge, code: constants.CodeFileTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &stubProcessor{}
			h := NewHandler(proc, 1024, "dev", nil)

			rr := httptest.NewRecorder()
			h.Routes().ServeHTTP(rr, tt.req(t))

			assert.Equal(t, tt.status, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.ErrorCode())
			assert.Zero(t, proc.calls, "processor must not run")
		})
	}
}

func TestProcess_AcceptsAlternatePDFTypes(t *testing.T) {
	for _, ct := range []string{"", "application/x-pdf", "application/octet-stream", "application/pdf; charset=binary"} {
		t.Run(ct, func(t *testing.T) {
			proc := &stubProcessor{env: pipeline.Succeeded("r", "f", entity.ExtractedFields{})}
			rr := httptest.NewRecorder()
			NewHandler(proc, 0, "dev", nil).Routes().ServeHTTP(rr, uploadRequest(t, "w2.pdf", ct, pdfBody))
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, 1, proc.calls)
		})
	}
}

func TestProcess_StatusFollowsEnvelope(t *testing.T) {
	codes := map[string]int{
		constants.CodeExtractionFailed:  http.StatusUnprocessableEntity,
		constants.CodeFieldMissing:      http.StatusUnprocessableEntity,
		constants.CodeFieldInvalid:      http.StatusUnprocessableEntity,
		constants.CodeRemoteClientError: http.StatusBadGateway,
		constants.CodePartialSubmission: http.StatusBadGateway,
		constants.CodeRemoteUnavailable: http.StatusServiceUnavailable,
		constants.CodeInternal:          http.StatusInternalServerError,
	}
	for code, status := range codes {
		t.Run(code, func(t *testing.T) {
			proc := &stubProcessor{env: pipeline.Failed(code, "msg", map[string]string{"reportId": "r-1"})}
			rr := httptest.NewRecorder()
			NewHandler(proc, 0, "dev", nil).Routes().ServeHTTP(rr, uploadRequest(t, "w2.pdf", "application/pdf", pdfBody))

			assert.Equal(t, status, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.Equal(t, code, env.ErrorCode())
			assert.Equal(t, "r-1", env.Error.Details["reportId"])
		})
	}
}

func TestProcess_QueueClosed(t *testing.T) {
	proc := &stubProcessor{err: async.ErrClosed}
	rr := httptest.NewRecorder()
	NewHandler(proc, 0, "dev", nil).Routes().ServeHTTP(rr, uploadRequest(t, "w2.pdf", "application/pdf", pdfBody))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, constants.CodeInternal, decodeEnvelope(t, rr).ErrorCode())
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(&stubProcessor{}, 0, "dev", nil).Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/w2/process", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHTTPStatus_Boundary(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(""))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(constants.CodeInvalidFile))
	assert.Equal(t, http.StatusRequestEntityTooLarge, HTTPStatus(constants.CodeFileTooLarge))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("something_new"))
}
