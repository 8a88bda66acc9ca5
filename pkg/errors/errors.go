// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Metrika.
package errors

import (
	"fmt"
	"log/slog"
)

// ErrorCode classifies Metrika errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeStorageError indicates a database or storage failure.
	CodeStorageError ErrorCode = "STORAGE_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// MetrikaError carries an error code and free-form context alongside
// the message and optional cause. It unwraps with errors.As.
type MetrikaError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

func (e *MetrikaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *MetrikaError) Unwrap() error {
	return e.Err
}

// LogValue renders the error as a structured slog group.
func (e *MetrikaError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("code", string(e.Code)),
		slog.String("message", e.Message),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	for k, v := range e.Context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

// New creates a MetrikaError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *MetrikaError {
	return &MetrikaError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a MetrikaError without a cause, formatting the message.
func Newf(code ErrorCode, format string, args ...any) *MetrikaError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context and returns
// the error for chaining.
func (e *MetrikaError) WithContext(key string, value interface{}) *MetrikaError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AsMetrikaError returns err as a *MetrikaError, wrapping foreign
// errors under CodeInternal. Returns nil for nil.
func AsMetrikaError(err error) *MetrikaError {
	if err == nil {
		return nil
	}
	if me, ok := err.(*MetrikaError); ok {
		return me
	}
	return New(CodeInternal, "wrapped error", err)
}
