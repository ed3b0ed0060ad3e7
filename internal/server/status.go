package server

import (
	"net/http"

	"github.com/joseph-ayodele/w2-reporter/constants"
)

// HTTPStatus maps an envelope error code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case constants.CodeInvalidFile:
		return http.StatusBadRequest
	case constants.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case constants.CodeExtractionFailed, constants.CodeFieldMissing, constants.CodeFieldInvalid:
		return http.StatusUnprocessableEntity
	case constants.CodeRemoteClientError, constants.CodePartialSubmission:
		return http.StatusBadGateway
	case constants.CodeRemoteUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
