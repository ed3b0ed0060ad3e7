package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/w2-reporter/internal/repository"
)

// SheetName is the worksheet holding the ledger rows.
const SheetName = "Submissions"

// Headers are the column titles, in column order.
var Headers = []string{
	"Created At (UTC)",
	"State",
	"Report ID",
	"File ID",
	"Error Code",
	"Error Message",
	"Filename",
	"Document SHA-256",
}

// Service produces XLSX bytes from the submission ledger.
type Service struct {
	repo   repository.SubmissionRepository
	logger *slog.Logger
}

func NewService(repo repository.SubmissionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportSubmissionsXLSX returns a workbook with one row per ledger record
// matching f, newest first.
func (s *Service) ExportSubmissionsXLSX(ctx context.Context, f repository.SubmissionFilter) ([]byte, error) {
	start := time.Now()

	recs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	x := excelize.NewFile()
	defer func() { _ = x.Close() }()

	// Rename the default sheet so the workbook has exactly one.
	if err := x.SetSheetName(x.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = x.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = x.SetCellValue(SheetName, cell, v)
		}
		write(1, r.CreatedAt.UTC().Format(time.RFC3339))
		write(2, r.State)
		write(3, deref(r.ReportID))
		write(4, deref(r.FileID))
		write(5, deref(r.ErrorCode))
		write(6, truncate(deref(r.ErrorMessage), 200))
		write(7, r.Filename)
		write(8, r.DocumentSHA256)
		row++
	}

	_ = x.SetColWidth(SheetName, "A", "A", 22) // created
	_ = x.SetColWidth(SheetName, "B", "B", 18) // state
	_ = x.SetColWidth(SheetName, "C", "D", 38) // ids
	_ = x.SetColWidth(SheetName, "E", "E", 20) // code
	_ = x.SetColWidth(SheetName, "F", "F", 60) // message
	_ = x.SetColWidth(SheetName, "G", "G", 24) // filename
	_ = x.SetColWidth(SheetName, "H", "H", 66) // sha

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"state", f.State,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
