package controller

import (
	"context"
	"errors"
	"net"
)

// Kind classifies a failed authorization.
type Kind string

const (
	// KindInvalidRequest means the request failed validation before any network I/O.
	KindInvalidRequest Kind = "invalid_request"
	// KindClientNotFound means the controller does not see the device yet.
	KindClientNotFound Kind = "client_not_found"
	// KindControllerUnavailable means the controller could not be reached or timed out.
	KindControllerUnavailable Kind = "controller_unavailable"
	// KindAuthenticationFailed means every login variant was rejected.
	KindAuthenticationFailed Kind = "authentication_failed"
	// KindAuthorizationFailed means the authorize action was rejected on every path.
	KindAuthorizationFailed Kind = "authorization_failed"
	// KindMisconfigured means the selected API type lacks the credentials it needs.
	KindMisconfigured Kind = "misconfigured_controller"
)

// Error is returned by the bridge for every failure it classifies.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or "" if err is not a bridge error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// transportError classifies a failed round trip. Timeouts always mean the controller
// is unavailable; anything else gets the caller's kind.
func transportError(kind Kind, message string, err error) *Error {
	if isTimeout(err) {
		return newError(KindControllerUnavailable, message, err)
	}
	return newError(kind, message, err)
}
