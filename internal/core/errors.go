package core

import "errors"

// Error codes for client domain errors.
const (
	// ErrCodeNetworkFailure covers any transport or backend rejection.
	ErrCodeNetworkFailure = "network_failure"
	// ErrCodeRateLimited is the public room send cooldown.
	ErrCodeRateLimited = "rate_limited"
	// ErrCodeInvalidOperation is a precondition failure with no state change.
	ErrCodeInvalidOperation = "invalid_operation"
	// ErrCodeNotFound is a reference to a room unknown to cache and server.
	ErrCodeNotFound = "not_found"
)

// Error wraps a code and human-readable message. Errors are terminal at the
// UI boundary: every one results in a notification and a no-op on state.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func networkFailure(msg string, err error) *Error {
	return &Error{Code: ErrCodeNetworkFailure, Message: msg, Err: err}
}

func rateLimited(msg string) *Error {
	return &Error{Code: ErrCodeRateLimited, Message: msg}
}

func invalidOperation(msg string) *Error {
	return &Error{Code: ErrCodeInvalidOperation, Message: msg}
}

// ErrCode extracts the domain error code, or empty for foreign errors.
func ErrCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
