package pipeline

import (
	"errors"
	"strconv"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/pdftext"
	"github.com/joseph-ayodele/w2-reporter/internal/remote"
	"github.com/joseph-ayodele/w2-reporter/internal/validate"
)

func extractionError(err error) *common.AppError {
	switch {
	case errors.Is(err, pdftext.ErrNoText):
		return common.NewAppError(constants.CodeExtractionFailed,
			"No extractable text found in PDF; scanned documents are not supported", err)
	case errors.Is(err, pdftext.ErrNoPages):
		return common.NewAppError(constants.CodeExtractionFailed, "PDF has no pages", err)
	case errors.Is(err, pdftext.ErrUnavailable):
		return common.NewAppError(constants.CodeInternal, "PDF text extraction is unavailable on this server", err)
	case errors.Is(err, pdftext.ErrParse):
		return common.NewAppError(constants.CodeExtractionFailed, "PDF could not be parsed", err)
	default:
		return internalError(err)
	}
}

func validationError(err error) *common.AppError {
	var fe *validate.FieldError
	if !errors.As(err, &fe) {
		return internalError(err)
	}
	msg := "Field " + string(fe.Field) + " could not be extracted from the document"
	if fe.Reason != validate.ReasonMissing {
		msg = "Field " + string(fe.Field) + " " + fe.Message
	}
	return common.NewAppError(fe.Code(), msg, err).
		WithDetail("field", string(fe.Field)).
		WithDetail("reason", string(fe.Reason))
}

// remoteError maps a failed submission. Any file step failure is a partial
// submission, whatever its kind, because the report already exists remotely.
func remoteError(sub remote.Submission, err error) *common.AppError {
	var re *remote.Error
	if !errors.As(err, &re) {
		return internalError(err)
	}

	if re.Step == remote.StepFile {
		return common.NewAppError(constants.CodePartialSubmission,
			"Report was accepted but the file upload failed", err).
			WithDetail("reportId", sub.ReportID).
			WithDetail("cause", string(re.Kind))
	}

	switch re.Kind {
	case remote.KindAuthRejected:
		return common.NewAppError(constants.CodeRemoteClientError,
			"Reporting service rejected the API key", err).
			WithDetail("status", strconv.Itoa(re.StatusCode))
	case remote.KindClientError:
		return common.NewAppError(constants.CodeRemoteClientError,
			"Reporting service rejected the report", err).
			WithDetail("status", strconv.Itoa(re.StatusCode))
	case remote.KindExhausted:
		return common.NewAppError(constants.CodeRemoteUnavailable,
			"Reporting service is unavailable", err).
			WithDetail("attempts", strconv.Itoa(re.Attempts))
	default:
		return internalError(err)
	}
}

func internalError(err error) *common.AppError {
	return common.NewAppError(constants.CodeInternal, "Internal error while processing the document", err)
}
