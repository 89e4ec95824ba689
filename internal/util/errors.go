package util

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures that cross component boundaries.
type ErrorCode string

const (
	CodeMalformedPacket    ErrorCode = "MALFORMED_PACKET"
	CodePermission         ErrorCode = "PERMISSION"
	CodeSocket             ErrorCode = "SOCKET"
	CodeConfiguration      ErrorCode = "CONFIGURATION"
	CodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	CodeTaskFailed         ErrorCode = "TASK_FAILED"
)

// Sentinel errors, one per code, for errors.Is matching.
var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrPermission      = errors.New("permission denied")
	ErrSocket          = errors.New("socket error")
	ErrConfig          = errors.New("configuration error")
	ErrDatabase        = errors.New("database connectivity error")
	ErrTask            = errors.New("task failed")
)

var sentinels = map[ErrorCode]error{
	CodeMalformedPacket:    ErrMalformedPacket,
	CodePermission:         ErrPermission,
	CodeSocket:             ErrSocket,
	CodeConfiguration:      ErrConfig,
	CodeDatabaseConnection: ErrDatabase,
	CodeTaskFailed:         ErrTask,
}

// ProbeError is an error with a code, an optional target and an underlying cause.
type ProbeError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg += fmt.Sprintf(" (target: %s)", e.Target)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's code.
func (e *ProbeError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string) *ProbeError {
	return &ProbeError{Code: code, Message: message}
}

// WrapError wraps err with a code and message.
func WrapError(code ErrorCode, message string, err error) *ProbeError {
	return &ProbeError{Code: code, Message: message, Cause: err}
}

// WrapErrorWithTarget wraps err with a code, message and target.
func WrapErrorWithTarget(code ErrorCode, message, target string, err error) *ProbeError {
	return &ProbeError{Code: code, Message: message, Target: target, Cause: err}
}

// CodeOf returns the code of the first ProbeError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}
