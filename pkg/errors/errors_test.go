// SPDX-License-Identifier: Apache-2.0
package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := New(CodeInvalidInput, "bad index selection", nil)
	if got := err.Error(); got != "[INVALID_INPUT] bad index selection" {
		t.Errorf("unexpected error string: %s", got)
	}

	cause := stderrors.New("boom")
	wrapped := New(CodeStorageError, "upsert failed", cause)
	if !strings.Contains(wrapped.Error(), "boom") {
		t.Errorf("expected cause in error string, got %s", wrapped.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(CodeStorageError, "query failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	var me *MetrikaError
	if !stderrors.As(err, &me) {
		t.Fatal("expected errors.As to match *MetrikaError")
	}
	if me.Code != CodeStorageError {
		t.Errorf("expected STORAGE_ERROR, got %s", me.Code)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeInvalidInput, "invalid table indexes: %v", []int{3, 7})
	if !strings.Contains(err.Message, "[3 7]") {
		t.Errorf("expected formatted message, got %q", err.Message)
	}
}

func TestWithContext(t *testing.T) {
	err := New(CodeToolFailure, "tool failed", nil).
		WithContext("tool", "run_query")

	if err.Context["tool"] != "run_query" {
		t.Errorf("expected tool context, got %v", err.Context)
	}
}

func TestAsMetrikaError(t *testing.T) {
	if AsMetrikaError(nil) != nil {
		t.Error("nil should stay nil")
	}

	plain := stderrors.New("plain")
	me := AsMetrikaError(plain)
	if me.Code != CodeInternal {
		t.Errorf("expected INTERNAL_ERROR wrap, got %s", me.Code)
	}

	typed := New(CodeNotFound, "kpi not found", nil)
	if AsMetrikaError(typed) != typed {
		t.Error("typed error should pass through unchanged")
	}
}

func TestLogValue(t *testing.T) {
	err := New(CodeStorageError, "insert failed", stderrors.New("duplicate key")).
		WithContext("table", "kpis")

	attrs := err.LogValue().Group()
	got := map[string]string{}
	for _, a := range attrs {
		got[a.Key] = a.Value.String()
	}
	if got["code"] != "STORAGE_ERROR" {
		t.Errorf("code attr = %q", got["code"])
	}
	if got["cause"] != "duplicate key" {
		t.Errorf("cause attr = %q", got["cause"])
	}
	if got["table"] != "kpis" {
		t.Errorf("table attr = %q", got["table"])
	}
}
