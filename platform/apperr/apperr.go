// Package apperr is the error taxonomy shared by services and the HTTP layer.
// Services return *Error values; httpkit turns the Kind into a status code.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping and logging.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	// KindConflict means a concurrent write lost its race or a uniqueness rule fired.
	KindConflict
	KindForbidden
	KindUnauthorized
	// KindBadRequest covers unparseable ids and bodies.
	KindBadRequest
	KindInternal
	// KindInvalidTransition is a well-formed request the current state disallows.
	KindInvalidTransition
	// KindUpload is an evidence gateway failure.
	KindUpload
)

type kindInfo struct {
	name     string
	status   int
	incident bool
}

var kinds = map[Kind]kindInfo{
	KindUnknown:           {"Unknown", http.StatusInternalServerError, true},
	KindNotFound:          {"NotFound", http.StatusNotFound, false},
	KindValidation:        {"ValidationError", http.StatusBadRequest, false},
	KindConflict:          {"Conflict", http.StatusConflict, false},
	KindForbidden:         {"Forbidden", http.StatusForbidden, false},
	KindUnauthorized:      {"Unauthorized", http.StatusUnauthorized, false},
	KindBadRequest:        {"BadRequest", http.StatusBadRequest, false},
	KindInternal:          {"InfrastructureError", http.StatusInternalServerError, true},
	KindInvalidTransition: {"InvalidTransition", http.StatusConflict, false},
	KindUpload:            {"UploadError", http.StatusInternalServerError, true},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindUnknown]
}

func (k Kind) String() string { return k.info().name }

// Error carries a client-safe Message and an optional cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Message
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus is the response status for the error's kind.
func (e *Error) HTTPStatus() int { return e.Kind.info().status }

// IsIncident reports whether the error is an operational failure worth
// logging rather than a client mistake.
func (e *Error) IsIncident() bool { return e.Kind.info().incident }

// WithDetails attaches a structured payload (field errors) to the response.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error { return &Error{Kind: kind, Message: message} }

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error          { return New(KindNotFound, message) }
func Validation(message string) *Error        { return New(KindValidation, message) }
func Conflict(message string) *Error          { return New(KindConflict, message) }
func Forbidden(message string) *Error         { return New(KindForbidden, message) }
func Unauthorized(message string) *Error      { return New(KindUnauthorized, message) }
func BadRequest(message string) *Error        { return New(KindBadRequest, message) }
func Internal(message string) *Error          { return New(KindInternal, message) }
func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

// Upload wraps an evidence storage failure.
func Upload(message string, err error) *Error { return Wrap(KindUpload, message, err) }

// Infrastructure wraps a driver failure behind a generic client message.
func Infrastructure(op string, err error) *Error {
	e := Wrap(KindInternal, "internal server error", err)
	e.Op = op
	return e
}

// GetKind returns the Kind of the first *Error in err's chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return GetKind(err) == kind }
