// Package services maps the REST backend's resources onto typed Go calls. It
// unwraps response envelopes and turns backend rejections into messages fit
// for a form; it holds no state of its own.
package services

import (
	"context"
	"errors"

	"finboard/internal/apiclient"
)

// Failure is an expected domain failure whose Message can be shown as is.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// Doer sends a request through the authenticated client.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// mutationFailure picks the user-facing message for a rejected create or update:
// the envelope message, a string error, the first error on keyField, then fallback.
// Session expiry is returned unchanged so callers can send the user to login.
func mutationFailure(err error, env apiclient.Envelope, keyField, fallback string) error {
	if apiclient.IsSessionExpired(err) {
		return err
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		env = se.Envelope
	}
	msg := env.Message
	if msg == "" {
		msg = env.ErrorString()
	}
	if msg == "" && keyField != "" {
		msg = env.FieldError(keyField)
	}
	if msg == "" {
		msg = fallback
	}
	return &Failure{Message: msg, Err: err}
}

// readFailure wraps a failed read so the message survives as the error text.
func readFailure(err error, env apiclient.Envelope, fallback string) error {
	if apiclient.IsSessionExpired(err) {
		return err
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		env = se.Envelope
	}
	msg := env.Message
	if msg == "" {
		msg = fallback
	}
	if err == nil {
		return &Failure{Message: msg}
	}
	return &Failure{Message: msg, Err: err}
}
