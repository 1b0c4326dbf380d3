package openrouter

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a client failure.
type Kind string

const (
	// KindConfig is a missing or invalid client configuration.
	KindConfig Kind = "config"
	// KindValidation is a request rejected before any network I/O.
	KindValidation Kind = "validation"
	// KindTimeout is a per-attempt timer expiry.
	KindTimeout Kind = "timeout"
	// KindNetwork is a transport failure that is not a timeout.
	KindNetwork Kind = "network"
	// KindHTTP is a non-2xx provider response.
	KindHTTP Kind = "http"
	// KindParse is an unusable success body or structured-output content.
	KindParse Kind = "parse"
	// KindUnknown is reserved for a retry loop that ends without a recorded error.
	KindUnknown Kind = "unknown"
)

// Error is the single error type returned by the client. Fields beyond Kind and
// Message are populated only for the kinds that use them.
type Error struct {
	Kind    Kind
	Message string

	// Status, StatusText and Body describe a KindHTTP failure. Body is the decoded JSON
	// error document, a text sample of at most 1000 characters, or nil.
	Status     int
	StatusText string
	Body       any

	// Context and Raw describe a KindParse failure. Raw holds at most 1000 characters.
	Context string
	Raw     string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("openrouter %s error: %s (%s)", e.Kind, e.Message, e.Context)
	}
	return fmt.Sprintf("openrouter %s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Whether one is actually made
// also depends on the remaining attempt budget.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTP:
		return isRetryableStatus(e.Status)
	default:
		return false
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func newConfigError(message string) *Error {
	return &Error{Kind: KindConfig, Message: message}
}

func newValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func newTimeoutError(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "request timed out", Err: cause}
}

func newNetworkError(cause error) *Error {
	msg := "unknown network error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindNetwork, Message: msg, Err: cause}
}

func newHTTPError(status int, statusText string, body any) *Error {
	return &Error{
		Kind:       KindHTTP,
		Message:    fmt.Sprintf("request failed with status %d %s", status, statusText),
		Status:     status,
		StatusText: statusText,
		Body:       body,
	}
}

func newParseError(message, context, raw string) *Error {
	return &Error{Kind: KindParse, Message: message, Context: context, Raw: raw}
}

func isRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status < 600
}
