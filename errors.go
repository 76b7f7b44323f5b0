package apigate

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned when no valid credential accompanies a
	// request. The client is told nothing beyond the 401; the reason is
	// logged server side only.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization is returned when a verified principal lacks access
	// to the requested operation. At the wire level this is deliberately
	// indistinguishable from an authentication failure: both answer 401.
	ErrAuthorization = errors.New("authorization failed")

	// ErrUserNotFound is the sentinel a UserStore returns when no user
	// with the given name exists. Any other error from a store means the
	// lookup itself failed; both outcomes deny access.
	ErrUserNotFound = errors.New("user not found")
)

// ArgumentError reports a request parameter that is missing or cannot be
// converted to the requested type. It maps to a 400 response that names the
// offending parameter.
type ArgumentError struct {
	// Param is the name of the offending parameter.
	Param string
	// Want describes the expected type.
	Want string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("parameter [%s] expected as [%s]", e.Param, e.Want)
}

// StatusError carries an explicit HTTP status for a handler failure. Handlers
// return it when an error should answer with something other than 500.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

// NewStatusError creates a StatusError with the given status code and message.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// statusOf maps a dispatch error to the HTTP status of the error response.
func statusOf(err error) int {
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return http.StatusBadRequest
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code != 0 {
		return statusErr.Code
	}
	return http.StatusInternalServerError
}
