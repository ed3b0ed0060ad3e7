// Package server exposes the processing operation over HTTP and a gRPC
// health endpoint for probes.
package server

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
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/async"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "w2-reporter"

// HeaderRequestID echoes the request id back to the caller.
const HeaderRequestID = "X-Request-ID"

// multipartOverhead is allowed on top of the file limit for form framing.
const multipartOverhead = 64 << 10

// Processor runs one document; async.ProcessorQueue implements it.
type Processor interface {
	Do(ctx context.Context, doc entity.RawDocument) (pipeline.Envelope, error)
}

type Handler struct {
	proc      Processor
	maxUpload int64
	version   string
	logger    *slog.Logger
}

func NewHandler(proc Processor, maxUpload int64, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = constants.MaxUploadBytes
	}
	return &Handler{proc: proc, maxUpload: maxUpload, version: version, logger: logger}
}

// Routes returns the mux with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/w2/process", h.process)
	mux.HandleFunc("GET /api/health", h.health)
	return requestIDMiddleware(h.logger, loggingMiddleware(h.logger, mux))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": h.version,
	})
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	log := common.LoggerFromContext(r.Context(), h.logger)

	doc, gateErr := h.readUpload(w, r)
	if gateErr != nil {
		log.Warn("http.upload.rejected", "code", gateErr.Code, "error", gateErr)
		h.writeEnvelope(w, pipeline.Failed(gateErr.Code, gateErr.Message, gateErr.Details))
		return
	}

	env, err := h.proc.Do(r.Context(), doc)
	if err != nil {
		switch {
		case errors.Is(err, async.ErrClosed):
			log.Warn("http.process.unavailable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, pipeline.Failed(constants.CodeInternal, "Service is shutting down", nil))
		default:
			// Caller went away; nobody reads this response.
			log.Info("http.process.abandoned", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, pipeline.Failed(constants.CodeInternal, "Request was cancelled", nil))
		}
		return
	}
	h.writeEnvelope(w, env)
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, env pipeline.Envelope) {
	writeJSON(w, HTTPStatus(env.ErrorCode()), env)
}

// readUpload applies the boundary checks: size, extension, declared content
// type and PDF magic bytes. Only a document that passes all of them reaches
// the processor.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (entity.RawDocument, *common.AppError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return entity.RawDocument{}, h.tooLarge(err)
		}
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "Request must be multipart/form-data with a file field", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "No file provided", err)
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	if hdr.Size > h.maxUpload {
		return entity.RawDocument{}, h.tooLarge(nil)
	}
	if !constants.IsAllowedExt(filepath.Ext(hdr.Filename)) {
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "Only PDF files are accepted", nil).
			WithDetail("filename", hdr.Filename)
	}
	mediaType := hdr.Header.Get("Content-Type")
	if mediaType != "" && mediaType != "application/octet-stream" && !constants.IsAllowedMediaType(mediaType) {
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "Invalid content type: "+mediaType, nil)
	}

	content, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "Could not read uploaded file", err)
	}
	if int64(len(content)) > h.maxUpload {
		return entity.RawDocument{}, h.tooLarge(nil)
	}
	if !bytes.HasPrefix(content, constants.PDFMagic) {
		return entity.RawDocument{}, common.NewAppError(constants.CodeInvalidFile, "File is not a valid PDF", nil)
	}

	return entity.RawDocument{Content: content, MediaType: mediaType, Filename: hdr.Filename}, nil
}

func (h *Handler) tooLarge(cause error) *common.AppError {
	return common.NewAppError(constants.CodeFileTooLarge,
		fmt.Sprintf("File exceeds the %d MB limit", h.maxUpload>>20), cause).
		WithDetail("maxBytes", fmt.Sprint(h.maxUpload))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestIDMiddleware tags every request with a fresh id and a logger that
// carries it.
func requestIDMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.New().String()
		ctx := common.WithRequestID(r.Context(), rid)
		ctx = common.WithLogger(ctx, logger.With("request_id", rid))
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		common.LoggerFromContext(r.Context(), logger).Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
