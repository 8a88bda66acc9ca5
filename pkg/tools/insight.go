// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/llm"
)

// InsightWriter persists insights.
type InsightWriter interface {
	InsertInsight(ctx context.Context, ins database.Insight) (int64, error)
}

// SaveInsightTool stores an insight: a narrative summary optionally tied
// to a KPI. Insights are insert-only.
type SaveInsightTool struct {
	db InsightWriter
}

// NewSaveInsightTool creates a save_insight tool backed by db.
func NewSaveInsightTool(db InsightWriter) *SaveInsightTool {
	return &SaveInsightTool{db: db}
}

func (t *SaveInsightTool) Name() string { return "save_insight" }

type saveInsightInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	KPIName     string   `json:"kpi_name,omitempty"`
	Formula     string   `json:"formula"`
	Schedule    string   `json:"schedule,omitempty"`
	ExecTime    string   `json:"exec_time,omitempty"`
	AlertHigh   *float64 `json:"alert_high,omitempty"`
	AlertLow    *float64 `json:"alert_low,omitempty"`
}

type insightResult struct {
	Saved bool   `json:"saved"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
}

// Call inserts the insight and returns its generated id.
func (t *SaveInsightTool) Call(ctx context.Context, input any) (any, error) {
	var req saveInsightInput
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "insight name is required")
	}
	if req.Formula == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "insight text is required")
	}

	ins := database.Insight{
		Name:        req.Name,
		Description: req.Description,
		KPIName:     req.KPIName,
		Formula:     req.Formula,
		Schedule:    req.Schedule,
		ExecTime:    req.ExecTime,
		AlertHigh:   req.AlertHigh,
		AlertLow:    req.AlertLow,
	}
	id, err := t.db.InsertInsight(ctx, ins)
	if err != nil {
		return nil, errors.New(errors.CodeToolFailure, "failed to save insight", err).
			WithContext("insight", req.Name)
	}
	return insightResult{Saved: true, ID: id, Name: req.Name}, nil
}

// Definition returns the LLM tool manifest.
func (t *SaveInsightTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name(),
			Description: "Save an insight: a narrative summary of data, optionally linked to an existing KPI by name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Insight name",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Human-readable description",
					},
					"kpi_name": map[string]any{
						"type":        "string",
						"description": "Name of the KPI this insight is based on",
					},
					"formula": map[string]any{
						"type":        "string",
						"description": "The narrative text of the insight",
					},
					"schedule": map[string]any{
						"type":        "string",
						"description": "Recurrence schedule (free text)",
					},
					"exec_time": map[string]any{
						"type":        "string",
						"description": "Preferred execution time (free text)",
					},
					"alert_high": map[string]any{
						"type":        "number",
						"description": "Upper alert threshold",
					},
					"alert_low": map[string]any{
						"type":        "number",
						"description": "Lower alert threshold",
					},
				},
				"required": []string{"name", "formula"},
			},
		},
	}
}
