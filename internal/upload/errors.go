package upload

import (
	"fmt"

	"dialoguerec/internal/domain"
)

// Error is a failed transmission. Uploads are never retried automatically.
type Error struct {
	Code       domain.ErrorCode
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errNetwork = func(message string, err error) *Error {
		return &Error{Code: domain.ErrorCodeNetworkFailure, Message: message, Err: err}
	}
	errRejected = func(status int, message string) *Error {
		return &Error{Code: domain.ErrorCodeServerRejected, Message: message, StatusCode: status}
	}
	errMalformed = func(status int, err error) *Error {
		return &Error{Code: domain.ErrorCodeMalformedResponse, Message: "server returned an unreadable response", StatusCode: status, Err: err}
	}
)
