package entity

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionRecord is one processed document as kept in the submission
// ledger. It carries outcome metadata only, never extracted field values.
type SubmissionRecord struct {
	ID             uuid.UUID `json:"id"`
	DocumentSHA256 string    `json:"document_sha256"`
	Filename       string    `json:"filename"`
	State          string    `json:"state"`
	ReportID       *string   `json:"report_id,omitempty"`
	FileID         *string   `json:"file_id,omitempty"`
	ErrorCode      *string   `json:"error_code,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
