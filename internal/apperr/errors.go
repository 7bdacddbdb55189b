package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so call sites can switch on it instead of
// matching error strings.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimit
	KindStorage
	KindUnavailable
	KindTimeout
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimit:
		return "rate_limit"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "service_unavailable"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream_status"
	default:
		return "internal"
	}
}

// Default user-facing messages.
const (
	MsgInternal    = "Sorry, something went wrong. Please try again."
	MsgUnavailable = "Could not connect to the AI service. Please try again later."
	MsgTimeout     = "AI service request timed out. Please try again."
	MsgUpstream    = "The AI service returned an error. Please try again later."
)

// Error carries a kind, a message that is safe to show to the caller and the
// underlying cause, which is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status for KindUpstream.
	Status int
	Err    error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Status != 0:
		s = fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	default:
		s = fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Upstream(status int, err error) *Error {
	return &Error{Kind: KindUpstream, Message: MsgUpstream, Status: status, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe text for err. Errors that are not an
// *Error never leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgInternal
}

// HTTPStatus maps a kind to the status used when the failure is reported
// synchronously.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUnavailable, KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable code written in JSON error bodies.
func Code(k Kind) string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindRateLimit:
		return "RATE_LIMITED"
	case KindUnavailable, KindUpstream, KindTimeout:
		return "UPSTREAM_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
