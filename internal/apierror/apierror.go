// Package apierror defines the error taxonomy shared by the deliberation
// service layer and its HTTP handlers.
package apierror

import "net/http"

// Code names one member of the error taxonomy in spec.md §7.
type Code string

const (
	NotFound              Code = "NOT_FOUND"
	Unauthenticated       Code = "UNAUTHENTICATED"
	Validation            Code = "VALIDATION"
	StageMismatch         Code = "STAGE_MISMATCH"
	DuplicateSubmission   Code = "DUPLICATE_SUBMISSION"
	InvalidRanking        Code = "INVALID_RANKING"
	TransientModelFailure Code = "TRANSIENT_MODEL_FAILURE"
	StoreError            Code = "STORE_ERROR"
	Internal              Code = "INTERNAL"
)

// Error is a structured, taxonomy-tagged error returned by service-layer
// methods so handlers can map it to the correct HTTP status without
// re-deriving intent from a bare error string.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the taxonomy code to the HTTP status noted in spec.md §7.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case NotFound:
		return http.StatusNotFound
	case Unauthenticated:
		return http.StatusUnauthorized
	case Validation:
		return http.StatusBadRequest
	case StageMismatch:
		return http.StatusBadRequest
	case DuplicateSubmission:
		return http.StatusConflict
	case InvalidRanking:
		return http.StatusBadRequest
	case TransientModelFailure:
		return http.StatusServiceUnavailable
	case StoreError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
