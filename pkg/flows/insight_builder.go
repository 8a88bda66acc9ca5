// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/workflow"
)

// NewInsightBuilder builds the insight pipeline: pick an existing KPI
// by name, run its formula for a sample, let the analyst write a
// narrative, pause for confirmation, insert the insight.
func NewInsightBuilder(store Store, analyst Analyst) *workflow.Workflow {
	return &workflow.Workflow{
		ID: InsightBuilderID,
		Steps: []workflow.Step{
			{ID: "select-kpi", Handler: selectKPIHandler(store)},
			{ID: "review-narrative", Handler: reviewNarrativeHandler(store, analyst)},
			{ID: "save-insight", Handler: saveInsightHandler(store)},
		},
	}
}

// selectKPIHandler lists stored KPIs, pauses, and validates that the
// chosen name exists. An unknown KPI name fails the run.
func selectKPIHandler(store Store) workflow.Handler {
	return func(ctx context.Context, _ workflow.State, resume map[string]any) (workflow.StepResult, error) {
		kpis, err := store.ListKPIs(ctx)
		if err != nil {
			return workflow.StepResult{}, err
		}

		if resume == nil {
			return workflow.StepResult{
				Suspend: map[string]any{"kpis": kpis},
			}, nil
		}

		kpiName := stateString(resume, "kpiName")
		if kpiName == "" {
			return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput, "kpiName is required")
		}
		insightName := stateString(resume, "insightName")
		if insightName == "" {
			return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput, "insightName is required")
		}

		var chosen *database.KPI
		for i := range kpis {
			if kpis[i].Name == kpiName {
				chosen = &kpis[i]
				break
			}
		}
		if chosen == nil {
			return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput,
				"unknown kpi %q", kpiName)
		}

		return workflow.StepResult{
			Output: map[string]any{
				"kpiName":        chosen.Name,
				"kpiDescription": chosen.Description,
				"formula":        chosen.Formula,
				"insightName":    insightName,
				"description":    stateString(resume, "description"),
			},
		}, nil
	}
}

// reviewNarrativeHandler runs the KPI formula for a bounded sample,
// asks the analyst for a narrative, and pauses for confirmation with
// optional edited text.
func reviewNarrativeHandler(store Store, analyst Analyst) workflow.Handler {
	return func(ctx context.Context, state workflow.State, resume map[string]any) (workflow.StepResult, error) {
		if resume == nil {
			formula := stateString(state, "formula")
			preview, err := store.RunQuery(ctx, formula, database.DefaultQueryLimit)
			if err != nil {
				return workflow.StepResult{}, err
			}

			kpi := database.KPI{
				Name:        stateString(state, "kpiName"),
				Description: stateString(state, "kpiDescription"),
				Formula:     formula,
			}
			narrative, err := analyst.Analyze(ctx, kpi, preview)
			if err != nil {
				return workflow.StepResult{}, err
			}

			return workflow.StepResult{
				Output: map[string]any{"narrative": narrative},
				Suspend: map[string]any{
					"narrative": narrative,
					"preview":   previewFor(preview),
				},
			}, nil
		}

		narrative := stateString(state, "narrative")
		if edited := stateString(resume, "editedText"); edited != "" {
			narrative = edited
		}
		return workflow.StepResult{
			Output: map[string]any{
				"narrative": narrative,
				"confirmed": stateBool(resume, "confirmed"),
			},
		}, nil
	}
}

// saveInsightHandler inserts the insight when confirmed, completing
// without persistence when declined.
func saveInsightHandler(store Store) workflow.Handler {
	return func(ctx context.Context, state workflow.State, _ map[string]any) (workflow.StepResult, error) {
		if !stateBool(state, "confirmed") {
			return workflow.StepResult{Output: map[string]any{"saved": false}}, nil
		}

		ins := database.Insight{
			Name:        stateString(state, "insightName"),
			Description: stateString(state, "description"),
			KPIName:     stateString(state, "kpiName"),
			Formula:     stateString(state, "narrative"),
		}
		id, err := store.InsertInsight(ctx, ins)
		if err != nil {
			return workflow.StepResult{}, err
		}
		return workflow.StepResult{
			Output: map[string]any{"saved": true, "insightId": id},
		}, nil
	}
}
