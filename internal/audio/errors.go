package audio

import (
	"errors"
	"fmt"
)

// Code classifies a policy error. The zero value means success.
type Code string

// Error codes returned by the policy manager.
const (
	CodeNoError          Code = ""
	CodeBadValue         Code = "BAD_VALUE"
	CodeInvalidOperation Code = "INVALID_OPERATION"
	CodeNoInit           Code = "NO_INIT"
	CodeNameNotFound     Code = "NAME_NOT_FOUND"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeDeadObject       Code = "DEAD_OBJECT"
	// CodeFailedTransaction marks a transient collaborator failure that
	// callers may retry.
	CodeFailedTransaction Code = "FAILED_TRANSACTION"
)

// Error is a policy error with a status code, satisfying errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a policy error.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Errorf creates a policy error with a formatted message and no cause.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the status code from err. A nil error maps to
// CodeNoError; a non-policy error maps to CodeInvalidOperation.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNoError
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInvalidOperation
}

// IsCode reports whether err carries the given status code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
