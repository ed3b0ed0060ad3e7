package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote step.
type Kind string

const (
	// KindClientError is a terminal 4xx other than 401.
	KindClientError Kind = "client_error"
	// KindAuthRejected is a 401; retrying with the same key cannot help.
	KindAuthRejected Kind = "auth_rejected"
	// KindExhausted means every attempt failed with a retryable error.
	KindExhausted Kind = "exhausted"
	// KindInvalidResponse is a 2xx without a usable id.
	KindInvalidResponse Kind = "invalid_response"
	// KindUnexpected covers final failures that fit no other kind, such as
	// a 3xx or 1xx status or a canceled request.
	KindUnexpected Kind = "unexpected"
)

// Step names one call of the two-step protocol.
type Step string

const (
	StepReport Step = "report"
	StepFile   Step = "file"
)

// Error is returned by every failed remote step.
type Error struct {
	Kind       Kind
	Step       Step
	StatusCode int // 0 when no response was received
	Attempts   int
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("remote %s step: %s after %d attempt(s)", e.Step, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Terminal reports whether the failure was final without exhausting retries.
func (e *Error) Terminal() bool {
	return e.Kind != KindExhausted
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

var errInvalidResponse = errors.New("invalid response")

// classify turns the last attempt error into the step's Error.
func classify(step Step, attempts int, err error) *Error {
	out := &Error{Step: step, Attempts: attempts, Cause: err, Kind: KindUnexpected}

	var se *StatusError
	switch {
	case errors.As(err, &se):
		out.StatusCode = se.StatusCode
		switch {
		case se.StatusCode == 401:
			out.Kind = KindAuthRejected
		case se.StatusCode >= 400 && se.StatusCode < 500:
			out.Kind = KindClientError
		case Retryable(err):
			out.Kind = KindExhausted
		}
	case errors.Is(err, errInvalidResponse):
		out.Kind = KindInvalidResponse
	case Retryable(err):
		out.Kind = KindExhausted
	}
	return out
}
