package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// DefaultErrorMessage is shown when nothing more specific can be extracted.
const DefaultErrorMessage = "An unexpected error occurred"

var (
	// ErrSessionExpired matches every error that ends the session: the user has
	// to sign in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrLoginRequired is returned when a refresh was needed but no refresh token
	// was stored. No network refresh is attempted.
	ErrLoginRequired = fmt.Errorf("login required: %w", ErrSessionExpired)

	ErrClientClosed = errors.New("api client closed")
	ErrNoData       = errors.New("response carries no data")
)

// StatusError is returned for non-2xx responses and for token errors carried in
// a 2xx envelope.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Envelope   Envelope
}

func (e *StatusError) Error() string {
	msg := e.Envelope.Message
	if msg == "" {
		msg = e.Envelope.ErrorString()
	}
	if msg == "" {
		msg = e.Envelope.Detail
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// RefreshError wraps the cause of a failed token refresh. It matches
// ErrSessionExpired as well as its cause.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "token refresh failed: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Err}
}

// IsSessionExpired reports whether err means the user must sign in again.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// ErrorMessage extracts a user-facing message from err. For backend errors it
// prefers, in order: the envelope message, a string error, the first field error
// as "field: message", and DRF's detail. Otherwise it uses the error text, then
// fallback, then DefaultErrorMessage.
func ErrorMessage(err error, fallback string) string {
	var se *StatusError
	if errors.As(err, &se) {
		env := se.Envelope
		if !env.Success {
			if env.Message != "" {
				return env.Message
			}
			if s := env.ErrorString(); s != "" {
				return s
			}
			if s := env.FirstFieldError(); s != "" {
				return s
			}
		}
		if env.Detail != "" {
			return env.Detail
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	if fallback != "" {
		return fallback
	}
	return DefaultErrorMessage
}
