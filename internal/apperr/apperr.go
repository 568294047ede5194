package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeNotFound       = "NOT_FOUND"
	CodeTransport      = "TRANSPORT"
	CodeAuth           = "AUTH"
	CodeUpstream       = "UPSTREAM"
	CodeBusy           = "BUSY"
	CodeRateLimited    = "RATE_LIMITED"
	CodeEvalFailure    = "EVAL_FAILURE"
	CodeEvalTimeout    = "EVAL_TIMEOUT"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeConfig         = "CONFIG"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// New returns a *CodedError.
func New(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the code of the outermost CodedError in err's chain, or "".
func CodeOf(err error) string {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return ""
	}
	return coded.Code
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns the human-facing message for err, dropping the code prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}
