package constants

// Error codes reported in the failure envelope.
const (
	CodeExtractionFailed  = "extraction_failed"
	CodeFieldMissing      = "field_missing"
	CodeFieldInvalid      = "field_invalid"
	CodeRemoteClientError = "remote_client_error"
	CodeRemoteUnavailable = "remote_unavailable"
	CodePartialSubmission = "partial_submission"
	CodeInternal          = "internal_error"

	// Boundary codes, raised before the core is reached.
	CodeInvalidFile  = "invalid_file"
	CodeFileTooLarge = "file_too_large"
)
