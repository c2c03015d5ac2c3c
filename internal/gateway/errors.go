package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind is the normalized failure taxonomy for chat API calls. Every
// failed call surfaces exactly one kind; callers decide on retries (this
// layer never retries).
type ErrorKind string

const (
	KindTimeout              ErrorKind = "timeout"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindAccessForbidden      ErrorKind = "access_forbidden"
	KindServerError          ErrorKind = "server_error"
	KindNetworkError         ErrorKind = "network_error"
	KindUnexpected           ErrorKind = "unexpected"
)

// Error is a normalized chat API failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error kind, defaulting to KindUnexpected for errors
// that did not come from this package.
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnexpected
}

// MessageOf extracts the user-presentable failure message.
func MessageOf(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
