// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/metrikahq/metrika/pkg/errors"
)

// Metrics tracks tool, workflow, and error activity for production monitoring.
type Metrics struct {
	errorCounter    metric.Int64Counter
	toolCounter     metric.Int64Counter
	toolDuration    metric.Float64Histogram
	runCounter      metric.Int64Counter
	llmTokenCounter metric.Int64Counter
}

// NewMetrics creates a metrics tracker with OTEL meters.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("metrika")

	errorCounter, err := meter.Int64Counter(
		"metrika.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	toolCounter, err := meter.Int64Counter(
		"metrika.tools.calls",
		metric.WithDescription("Tool invocations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	toolDuration, err := meter.Float64Histogram(
		"metrika.tools.duration_ms",
		metric.WithDescription("Tool call duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	runCounter, err := meter.Int64Counter(
		"metrika.workflow.runs",
		metric.WithDescription("Workflow run transitions by workflow and status"),
	)
	if err != nil {
		return nil, err
	}

	llmTokenCounter, err := meter.Int64Counter(
		"metrika.llm.tokens",
		metric.WithDescription("LLM token usage by model and direction"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		errorCounter:    errorCounter,
		toolCounter:     toolCounter,
		toolDuration:    toolDuration,
		runCounter:      runCounter,
		llmTokenCounter: llmTokenCounter,
	}, nil
}

// RecordError increments the error counter for the given error and component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}

	code := "UNKNOWN"
	if me, ok := err.(*errors.MetrikaError); ok {
		code = string(me.Code)
	}
	m.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
		),
	)
}

// RecordToolCall records a tool invocation with its duration and outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, durationMs float64, success bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", success),
	)
	m.toolCounter.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, durationMs, attrs)
}

// RecordRunTransition records a workflow run status transition.
func (m *Metrics) RecordRunTransition(ctx context.Context, workflowID, status string) {
	if m == nil {
		return
	}

	m.runCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("workflow", workflowID),
			attribute.String("status", status),
		),
	)
}

// RecordLLMUsage records token consumption for an LLM call.
func (m *Metrics) RecordLLMUsage(ctx context.Context, model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}

	m.llmTokenCounter.Add(ctx, int64(inputTokens),
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "input"),
		),
	)
	m.llmTokenCounter.Add(ctx, int64(outputTokens),
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("direction", "output"),
		),
	)
}
