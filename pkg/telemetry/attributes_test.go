// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func hasAttr(attrs []attribute.KeyValue, key string) bool {
	for _, a := range attrs {
		if string(a.Key) == key {
			return true
		}
	}
	return false
}

func TestAgentAttributes(t *testing.T) {
	attrs := AgentAttributes("data-assistant", "claude-sonnet-4-20250514", "run-1234", 8)

	for _, key := range []string{AttrAgentID, AttrAgentRunID, AttrAgentModel, AttrAgentMaxIter} {
		if !hasAttr(attrs, key) {
			t.Errorf("missing attribute %s", key)
		}
	}

	// Optional fields omitted when empty
	attrs = AgentAttributes("data-assistant", "", "run-1234", 0)
	if hasAttr(attrs, AttrAgentModel) || hasAttr(attrs, AttrAgentMaxIter) {
		t.Error("empty optional fields should be omitted")
	}
}

func TestToolCallAttributes(t *testing.T) {
	attrs := ToolCallAttributes("run_query", "call-1", 42.0, true)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if !hasAttr(attrs, AttrToolSuccess) {
		t.Error("missing success attribute")
	}
}

func TestToolCallArgsResult_Truncation(t *testing.T) {
	long := strings.Repeat("x", 600)
	attrs := ToolCallArgsResult(long, long, 0)

	for _, a := range attrs {
		if len(a.Value.AsString()) > 503 {
			t.Errorf("attribute %s not truncated: %d chars", a.Key, len(a.Value.AsString()))
		}
		if !strings.HasSuffix(a.Value.AsString(), "...") {
			t.Errorf("attribute %s missing ellipsis", a.Key)
		}
	}
}

func TestWorkflowAttributes(t *testing.T) {
	attrs := WorkflowAttributes("kpi-builder", "run-1", "select-tables", "suspended")
	for _, key := range []string{AttrWorkflowID, AttrWorkflowRun, AttrWorkflowStep, AttrRunStatus} {
		if !hasAttr(attrs, key) {
			t.Errorf("missing attribute %s", key)
		}
	}
}

func TestLLMUsageAttributes(t *testing.T) {
	attrs := LLMUsageAttributes(100, 50)
	if !hasAttr(attrs, AttrLLMTokensTotal) {
		t.Error("missing total tokens")
	}

	if len(LLMUsageAttributes(0, 0)) != 0 {
		t.Error("zero usage should produce no attributes")
	}
}
