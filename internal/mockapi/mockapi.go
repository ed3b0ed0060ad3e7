// Package mockapi is an in-memory stand-in for the remote reporting service,
// for local development and tests.
package mockapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/w2-reporter/internal/schema"
)

// DefaultAPIKey is the key the mock accepts unless configured otherwise.
const DefaultAPIKey = "FinPro-Secret-Key"

const maxUploadMemory = 32 << 20

var reportSchema = schema.MustCompile("mock_report_request", schema.ReportRequest())

// Report is a stored POST /reports body.
type Report struct {
	ID                 string    `json:"report_id"`
	EIN                string    `json:"ein"`
	SSN                string    `json:"ssn"`
	Wages              string    `json:"wages"`
	FederalTaxWithheld string    `json:"federal_tax_withheld"`
	CreatedAt          time.Time `json:"created_at"`
}

// File is a stored POST /files upload; content is not kept.
type File struct {
	ID        string    `json:"file_id"`
	ReportID  string    `json:"report_id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Option func(*Service)

// WithAPIKey changes the accepted key.
func WithAPIKey(key string) Option {
	return func(s *Service) { s.apiKey = key }
}

// WithFaults makes the next n calls of each path fail with status. Used to
// exercise client retries by hand.
func WithFaults(path string, n int, status int) Option {
	return func(s *Service) { s.faults[path] = &fault{left: n, status: status} }
}

type fault struct {
	left   int
	status int
}

type Service struct {
	apiKey string
	logger *slog.Logger

	mu      sync.RWMutex
	reports map[string]Report
	files   map[string]File
	faults  map[string]*fault
}

func New(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		apiKey:  DefaultAPIKey,
		logger:  logger,
		reports: map[string]Report{},
		files:   map[string]File{},
		faults:  map[string]*fault{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes serves the mock under prefix, e.g. "/mock-api".
func (s *Service) Routes(prefix string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reports", s.createReport)
	mux.HandleFunc("POST /files", s.uploadFile)
	mux.HandleFunc("GET /reports/{id}", s.getReport)
	mux.HandleFunc("GET /files/{id}", s.getFile)

	var h http.Handler = s.withFaults(s.withAuth(mux))
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" {
		h = http.StripPrefix(prefix, h)
	}
	return h
}

func (s *Service) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		switch {
		case key == "":
			writeError(w, http.StatusUnauthorized, "Missing X-API-Key")
		case key != s.apiKey:
			writeError(w, http.StatusUnauthorized, "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Service) withFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f := s.faults[r.URL.Path]
		inject := f != nil && f.left > 0
		if inject {
			f.left--
		}
		s.mu.Unlock()
		if inject {
			s.logger.Info("mock.fault.injected", "path", r.URL.Path, "status", f.status)
			writeError(w, f.status, "Injected fault")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) createReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read body")
		return
	}
	if err := reportSchema.ValidateJSON(body); err != nil {
		s.logger.Info("mock.report.rejected", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid report: "+err.Error())
		return
	}
	var rep Report
	if err := json.Unmarshal(body, &rep); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report")
		return
	}
	rep.ID = uuid.New().String()
	rep.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.reports[rep.ID] = rep
	s.mu.Unlock()

	s.logger.Info("mock.report.created", "report_id", rep.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"report_id": rep.ID})
}

func (s *Service) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	reportID := r.FormValue("report_id")
	if reportID == "" {
		writeError(w, http.StatusBadRequest, "Missing report_id")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file")
		return
	}
	_ = f.Close()

	file := File{
		ID:        uuid.New().String(),
		ReportID:  reportID,
		Filename:  hdr.Filename,
		Size:      hdr.Size,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.files[file.ID] = file
	s.mu.Unlock()

	s.logger.Info("mock.file.uploaded", "file_id", file.ID, "report_id", reportID, "bytes", hdr.Size)
	writeJSON(w, http.StatusCreated, map[string]string{"file_id": file.ID})
}

func (s *Service) getReport(w http.ResponseWriter, r *http.Request) {
	if rep, ok := s.Report(r.PathValue("id")); ok {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	writeError(w, http.StatusNotFound, "Report not found")
}

func (s *Service) getFile(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.File(r.PathValue("id")); ok {
		writeJSON(w, http.StatusOK, f)
		return
	}
	writeError(w, http.StatusNotFound, "File not found")
}

// Report looks up a stored report.
func (s *Service) Report(id string) (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.reports[id]
	return rep, ok
}

// File looks up a stored file.
func (s *Service) File(id string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}

// Counts returns how many reports and files are stored.
func (s *Service) Counts() (reports, files int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), len(s.files)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
