// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"context"

	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/workflow"
)

// NewKPIBuilderByName builds the name-based KPI pipeline: the user
// supplies a literal table name instead of picking from a listing, and
// column selection is by index within that single table. The SQL
// resolution, preview, and save steps are shared with the index-based
// builder.
func NewKPIBuilderByName(store Store, writer SQLWriter) *workflow.Workflow {
	return &workflow.Workflow{
		ID: KPIBuilderByNameID,
		Steps: []workflow.Step{
			{ID: "name-table", Handler: nameTableHandler()},
			{ID: "select-columns", Handler: selectColumnsByNameHandler(store)},
			{ID: "confirm-sql", Handler: confirmSQLHandler(store, writer)},
			{ID: "save-kpi", Handler: saveKPIHandler(store)},
		},
	}
}

// nameTableHandler pauses immediately for a literal table name. The
// name is not checked against the catalog here: an unknown table simply
// yields no columns in the next step.
func nameTableHandler() workflow.Handler {
	return func(_ context.Context, _ workflow.State, resume map[string]any) (workflow.StepResult, error) {
		if resume == nil {
			return workflow.StepResult{
				Suspend: map[string]any{"required": "tableName"},
			}, nil
		}

		table := stateString(resume, "tableName")
		if table == "" {
			return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput, "tableName is required")
		}
		return workflow.StepResult{
			Output: map[string]any{"selectedTables": []string{table}},
		}, nil
	}
}

// selectColumnsByNameHandler lists the named table's columns, pauses,
// and validates the same resume shape as the index-based builder.
func selectColumnsByNameHandler(store Store) workflow.Handler {
	return func(ctx context.Context, state workflow.State, resume map[string]any) (workflow.StepResult, error) {
		selected := stateStrings(state, "selectedTables")
		if len(selected) != 1 {
			return workflow.StepResult{}, errors.Newf(errors.CodeInternal,
				"expected exactly one selected table, have %d", len(selected))
		}
		table := selected[0]

		if resume == nil {
			cols, err := store.ListColumns(ctx, table)
			if err != nil {
				return workflow.StepResult{}, err
			}
			return workflow.StepResult{
				Output:  map[string]any{"tableColumns": map[string][]string{table: columnNames(cols)}},
				Suspend: map[string]any{"tableColumns": map[string]any{table: cols}},
			}, nil
		}

		return decodeColumnSelection(state, resume, selected)
	}
}
