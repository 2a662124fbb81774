package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind classifies failures so callers can choose between retry, fallback and abort
type Kind string

const (
	KindNetwork     Kind = "network"
	KindRateLimit   Kind = "rate_limit"
	KindAuth        Kind = "auth"
	KindParsing     Kind = "parsing"
	KindNotFound    Kind = "not_found"
	KindServerError Kind = "server_error"
	KindUnavailable Kind = "unavailable"
	KindCancelled   Kind = "cancelled"
	KindUnknown     Kind = "unknown"
)

// Error is a classified error with an optional HTTP status and wrapped cause
type Error struct {
	Kind    Kind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind with an empty message, so
// sentinel values like ErrLoginRequired work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New creates a classified error
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// FromStatus maps an HTTP status code onto a classified error
func FromStatus(code int, msg string) *Error {
	kind := KindUnknown
	switch {
	case code == 401 || code == 403:
		kind = KindAuth
	case code == 404:
		kind = KindNotFound
	case code == 429:
		kind = KindRateLimit
	case code >= 500:
		kind = KindServerError
	}
	return &Error{Kind: kind, Message: msg, Code: code}
}

var (
	// ErrLoginRequired is returned when a stored session has expired or is missing.
	ErrLoginRequired = &Error{
		Kind:    KindAuth,
		Message: "login required: run 'igevents auth login' to refresh the session",
	}
	// ErrNoBackends is returned when no scraping tier is configured.
	ErrNoBackends = New(KindUnavailable, "no scraping backends available")
)

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// IsLoginRequired reports whether err signals an expired or missing session
func IsLoginRequired(err error) bool {
	return KindOf(err) == KindAuth
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimit, KindServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
