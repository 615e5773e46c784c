// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-net.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrOperationTimeout = errors.New("operation timeout")
	ErrNotSupported     = errors.New("operation not supported")
	ErrAlreadyExists    = errors.New("resource already exists")
	ErrSchedulerClosed  = errors.New("scheduler is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
	ErrCodeConfig
	ErrCodeResolve
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap attaches a cause to the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err is not an *Error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
