package pipeline

import "github.com/joseph-ayodele/w2-reporter/internal/entity"

// Envelope is the single response shape of the processing operation.
type Envelope struct {
	Success         bool                    `json:"success"`
	Data            *SubmissionData         `json:"data,omitempty"`
	ExtractedFields *entity.ExtractedFields `json:"extractedFields,omitempty"`
	Error           *ErrorBody              `json:"error,omitempty"`
}

type SubmissionData struct {
	ReportID string `json:"reportId"`
	FileID   string `json:"fileId"`
}

type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Succeeded builds a success envelope.
func Succeeded(reportID, fileID string, fields entity.ExtractedFields) Envelope {
	return Envelope{
		Success:         true,
		Data:            &SubmissionData{ReportID: reportID, FileID: fileID},
		ExtractedFields: &fields,
	}
}

// Failed builds a failure envelope.
func Failed(code, message string, details map[string]string) Envelope {
	return Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	}
}

// ErrorCode returns the failure code, or "" for a success.
func (e Envelope) ErrorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}
