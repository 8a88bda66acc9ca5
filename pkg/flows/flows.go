// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package flows defines the three human-in-the-loop pipelines: building
// a KPI by table index, building a KPI by table name, and deriving an
// insight from an existing KPI. Each is a workflow.Workflow whose steps
// pause for external input and validate it on re-entry.
package flows

import (
	"context"
	"sort"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/errors"
)

// Store is the persistence surface the flows drive.
type Store interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]database.TableColumn, error)
	RunQuery(ctx context.Context, sql string, limit int) (*database.QueryResult, error)
	UpsertKPI(ctx context.Context, kpi database.KPI) error
	ListKPIs(ctx context.Context) ([]database.KPI, error)
	InsertInsight(ctx context.Context, ins database.Insight) (int64, error)
}

// SQLWriter turns a natural-language intent into a SQL statement. The
// data assistant agent backs this in production.
type SQLWriter interface {
	WriteSQL(ctx context.Context, intent, table string, columns []string) (string, error)
}

// Analyst produces a narrative summary from KPI metadata and sample
// rows. The insight analyst agent backs this in production.
type Analyst interface {
	Analyze(ctx context.Context, kpi database.KPI, preview *database.QueryResult) (string, error)
}

// decodeIndexes accepts the index list in whatever form it arrives:
// native ints from Go callers, float64s from decoded JSON.
func decodeIndexes(v any) ([]int, error) {
	switch vals := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return vals, nil
	case []any:
		out := make([]int, 0, len(vals))
		for _, item := range vals {
			switch n := item.(type) {
			case int:
				out = append(out, n)
			case float64:
				out = append(out, int(n))
			default:
				return nil, errors.Newf(errors.CodeInvalidInput, "index %v is not a number", item)
			}
		}
		return out, nil
	case []float64:
		out := make([]int, 0, len(vals))
		for _, n := range vals {
			out = append(out, int(n))
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "indexes must be a list, got %T", v)
	}
}

// validateIndexes rejects empty selections and reports every
// out-of-range index, never a subset.
func validateIndexes(kind string, indexes []int, n int) error {
	if len(indexes) == 0 {
		return errors.Newf(errors.CodeInvalidInput, "no %s indexes selected", kind)
	}

	var invalid []int
	for _, i := range indexes {
		if i < 0 || i >= n {
			invalid = append(invalid, i)
		}
	}
	if len(invalid) > 0 {
		sort.Ints(invalid)
		return errors.Newf(errors.CodeInvalidInput,
			"invalid %s indexes %v: valid range is [0, %d)", kind, invalid, n)
	}
	return nil
}

// stateString reads a string from run state or a resume payload,
// tolerating absence.
func stateString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// stateBool reads a bool, tolerating absence.
func stateBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// stateStrings reads a string slice that may have round-tripped through
// JSON as []any.
func stateStrings(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch vals := m[key].(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// stateColumnNames reads the per-table column-name map stored by the
// select-columns steps, again tolerating the JSON round trip.
func stateColumnNames(m map[string]any, key string) map[string][]string {
	if m == nil {
		return nil
	}
	switch vals := m[key].(type) {
	case map[string][]string:
		return vals
	case map[string]any:
		out := make(map[string][]string, len(vals))
		for table, v := range vals {
			switch names := v.(type) {
			case []string:
				out[table] = names
			case []any:
				var ss []string
				for _, n := range names {
					if s, ok := n.(string); ok {
						ss = append(ss, s)
					}
				}
				out[table] = ss
			}
		}
		return out
	default:
		return nil
	}
}

// pickByIndex resolves a selection of indexes against an ordered list.
// Callers validate first; this just maps.
func pickByIndex(items []string, indexes []int) []string {
	out := make([]string, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, items[i])
	}
	return out
}

func columnNames(cols []database.TableColumn) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}

// previewFor renders a query result into a suspend payload.
func previewFor(result *database.QueryResult) map[string]any {
	return map[string]any{
		"columns": result.Columns,
		"rows":    result.Rows,
	}
}
