// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"context"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/workflow"
)

// Workflow ids, stable across restarts since suspended runs reference
// them.
const (
	KPIBuilderID       = "kpi-builder"
	KPIBuilderByNameID = "kpi-builder-by-name"
	InsightBuilderID   = "insight-builder"
)

// NewKPIBuilder builds the index-based KPI pipeline: pick tables from a
// listing, pick columns, resolve SQL (manual or AI-written), preview,
// confirm, save.
func NewKPIBuilder(store Store, writer SQLWriter) *workflow.Workflow {
	return &workflow.Workflow{
		ID: KPIBuilderID,
		Steps: []workflow.Step{
			{ID: "select-tables", Handler: selectTablesHandler(store)},
			{ID: "select-columns", Handler: selectColumnsHandler(store)},
			{ID: "confirm-sql", Handler: confirmSQLHandler(store, writer)},
			{ID: "save-kpi", Handler: saveKPIHandler(store)},
		},
	}
}

// selectTablesHandler lists tables, pauses for index selection, and
// resolves the chosen names.
func selectTablesHandler(store Store) workflow.Handler {
	return func(ctx context.Context, state workflow.State, resume map[string]any) (workflow.StepResult, error) {
		if resume == nil {
			tables, err := store.ListTables(ctx)
			if err != nil {
				return workflow.StepResult{}, err
			}
			return workflow.StepResult{
				Output:  map[string]any{"tables": tables},
				Suspend: map[string]any{"tables": tables},
			}, nil
		}

		tables := stateStrings(state, "tables")
		indexes, err := decodeIndexes(resume["tableIndexes"])
		if err != nil {
			return workflow.StepResult{}, err
		}
		if err := validateIndexes("table", indexes, len(tables)); err != nil {
			return workflow.StepResult{}, err
		}

		return workflow.StepResult{
			Output: map[string]any{"selectedTables": pickByIndex(tables, indexes)},
		}, nil
	}
}

// selectColumnsHandler lists columns for every selected table, pauses,
// then validates the column selection and the KPI metadata arriving
// with it.
func selectColumnsHandler(store Store) workflow.Handler {
	return func(ctx context.Context, state workflow.State, resume map[string]any) (workflow.StepResult, error) {
		selected := stateStrings(state, "selectedTables")

		if resume == nil {
			full := make(map[string]any, len(selected))
			names := make(map[string][]string, len(selected))
			for _, table := range selected {
				cols, err := store.ListColumns(ctx, table)
				if err != nil {
					return workflow.StepResult{}, err
				}
				full[table] = cols
				names[table] = columnNames(cols)
			}
			return workflow.StepResult{
				Output:  map[string]any{"tableColumns": names},
				Suspend: map[string]any{"tableColumns": full},
			}, nil
		}

		return decodeColumnSelection(state, resume, selected)
	}
}

// decodeColumnSelection handles the shared resume shape of both KPI
// builders: column indexes, KPI name/description, and the SQL source
// (aiIntent or manualSQL). The index list applies per table when given
// as a map, or to the single selected table when given as a flat list.
func decodeColumnSelection(state workflow.State, resume map[string]any, selected []string) (workflow.StepResult, error) {
	available := stateColumnNames(state, "tableColumns")

	perTable := map[string][]int{}
	switch raw := resume["columnIndexes"].(type) {
	case map[string]any:
		for table, v := range raw {
			indexes, err := decodeIndexes(v)
			if err != nil {
				return workflow.StepResult{}, err
			}
			perTable[table] = indexes
		}
	default:
		if len(selected) != 1 {
			return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput,
				"columnIndexes must be a per-table map when %d tables are selected", len(selected))
		}
		indexes, err := decodeIndexes(raw)
		if err != nil {
			return workflow.StepResult{}, err
		}
		perTable[selected[0]] = indexes
	}

	var allColumns []string
	for _, table := range selected {
		names := available[table]
		if err := validateIndexes("column", perTable[table], len(names)); err != nil {
			return workflow.StepResult{}, err
		}
		allColumns = append(allColumns, pickByIndex(names, perTable[table])...)
	}

	kpiName := stateString(resume, "kpiName")
	if kpiName == "" {
		return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput, "kpiName is required")
	}

	return workflow.StepResult{
		Output: map[string]any{
			"selectedColumns": allColumns,
			"kpiName":         kpiName,
			"description":     stateString(resume, "description"),
			"aiIntent":        stateString(resume, "aiIntent"),
			"manualSQL":       stateString(resume, "manualSQL"),
		},
	}, nil
}

// confirmSQLHandler resolves the SQL (manual text wins, otherwise the
// SQL writer turns the intent into a statement), previews it with the
// default row cap, and pauses for confirmation.
func confirmSQLHandler(store Store, writer SQLWriter) workflow.Handler {
	return func(ctx context.Context, state workflow.State, resume map[string]any) (workflow.StepResult, error) {
		if resume == nil {
			sql := stateString(state, "manualSQL")
			if sql == "" {
				intent := stateString(state, "aiIntent")
				if intent == "" {
					return workflow.StepResult{}, errors.Newf(errors.CodeInvalidInput,
						"either aiIntent or manualSQL is required")
				}
				tables := stateStrings(state, "selectedTables")
				table := ""
				if len(tables) > 0 {
					table = tables[0]
				}
				written, err := writer.WriteSQL(ctx, intent, table, stateStrings(state, "selectedColumns"))
				if err != nil {
					return workflow.StepResult{}, err
				}
				sql = written
			}

			preview, err := store.RunQuery(ctx, sql, database.DefaultQueryLimit)
			if err != nil {
				return workflow.StepResult{}, err
			}
			return workflow.StepResult{
				Output: map[string]any{"sql": sql},
				Suspend: map[string]any{
					"sql":     sql,
					"preview": previewFor(preview),
				},
			}, nil
		}

		sql := stateString(state, "sql")
		if edited := stateString(resume, "editedSQL"); edited != "" {
			sql = edited
		}
		return workflow.StepResult{
			Output: map[string]any{
				"sql":       sql,
				"confirmed": stateBool(resume, "confirmed"),
			},
		}, nil
	}
}

// saveKPIHandler upserts the KPI when the user confirmed, and completes
// without persisting anything when they declined.
func saveKPIHandler(store Store) workflow.Handler {
	return func(ctx context.Context, state workflow.State, _ map[string]any) (workflow.StepResult, error) {
		if !stateBool(state, "confirmed") {
			return workflow.StepResult{Output: map[string]any{"saved": false}}, nil
		}

		tables := stateStrings(state, "selectedTables")
		tableName := ""
		if len(tables) > 0 {
			tableName = tables[0]
		}

		kpi := database.KPI{
			Name:        stateString(state, "kpiName"),
			Description: stateString(state, "description"),
			Formula:     stateString(state, "sql"),
			TableName:   tableName,
			Columns:     stateStrings(state, "selectedColumns"),
		}
		if err := store.UpsertKPI(ctx, kpi); err != nil {
			return workflow.StepResult{}, err
		}
		return workflow.StepResult{
			Output: map[string]any{"saved": true, "kpiName": kpi.Name},
		}, nil
	}
}
