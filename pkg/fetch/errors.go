package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies fetch failures.
type Kind int

// Failure kinds.
const (
	Unknown Kind = iota
	Unauthorized
	BadRequest
	RateLimited
	ServerError
	NetworkUnreachable
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case BadRequest:
		return "bad_request"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case NetworkUnreachable:
		return "network_unreachable"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrUnauthorized       = &Error{Kind: Unauthorized}
	ErrBadRequest         = &Error{Kind: BadRequest}
	ErrRateLimited        = &Error{Kind: RateLimited}
	ErrServerError        = &Error{Kind: ServerError}
	ErrNetworkUnreachable = &Error{Kind: NetworkUnreachable}
	ErrMalformedResponse  = &Error{Kind: MalformedResponse}
	ErrUnknown            = &Error{Kind: Unknown}
)

// Error is the only error type returned by the Engine.
type Error struct {
	Kind   Kind
	Status int
	Source string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// UserMessage returns a short message suitable for display.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case Unauthorized:
		return "Invalid API Key. Please check your API Key in settings."
	case RateLimited:
		return "Rate limit exceeded, please try again later."
	case NetworkUnreachable:
		return "Network error. Please check your connection."
	default:
		if e.Err != nil {
			return "Something went wrong: " + e.Err.Error()
		}
		return "Something went wrong: " + e.Kind.String()
	}
}

// UserMessage extracts a display message from any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return "Something went wrong: " + err.Error()
}

// KindOf returns the kind of err, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// kindForStatus maps a non-2xx HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Unauthorized
	case status == http.StatusBadRequest || status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		return BadRequest
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 500 && status <= 599:
		return ServerError
	default:
		return Unknown
	}
}
