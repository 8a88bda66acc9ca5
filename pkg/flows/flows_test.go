// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package flows

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/workflow"
)

type fakeStore struct {
	tables  []string
	columns map[string][]database.TableColumn
	result  *database.QueryResult
	kpis    []database.KPI

	lastSQL   string
	lastLimit int
	savedKPI  *database.KPI
	insight   *database.Insight
}

func (f *fakeStore) ListTables(_ context.Context) ([]string, error) {
	return f.tables, nil
}

func (f *fakeStore) ListColumns(_ context.Context, table string) ([]database.TableColumn, error) {
	return f.columns[table], nil
}

func (f *fakeStore) RunQuery(_ context.Context, sql string, limit int) (*database.QueryResult, error) {
	f.lastSQL = sql
	f.lastLimit = limit
	if f.result == nil {
		return &database.QueryResult{}, nil
	}
	return f.result, nil
}

func (f *fakeStore) UpsertKPI(_ context.Context, kpi database.KPI) error {
	f.savedKPI = &kpi
	return nil
}

func (f *fakeStore) ListKPIs(_ context.Context) ([]database.KPI, error) {
	return f.kpis, nil
}

func (f *fakeStore) InsertInsight(_ context.Context, ins database.Insight) (int64, error) {
	f.insight = &ins
	return 7, nil
}

type fakeWriter struct {
	sql        string
	err        error
	gotIntent  string
	gotTable   string
	gotColumns []string
}

func (w *fakeWriter) WriteSQL(_ context.Context, intent, table string, columns []string) (string, error) {
	w.gotIntent = intent
	w.gotTable = table
	w.gotColumns = columns
	return w.sql, w.err
}

type fakeAnalyst struct {
	narrative string
	gotKPI    database.KPI
}

func (a *fakeAnalyst) Analyze(_ context.Context, kpi database.KPI, _ *database.QueryResult) (string, error) {
	a.gotKPI = kpi
	return a.narrative, nil
}

func salesStore() *fakeStore {
	return &fakeStore{
		tables: []string{"public.orders", "public.sales"},
		columns: map[string][]database.TableColumn{
			"public.sales": {
				{Name: "id", Type: "integer"},
				{Name: "amount", Type: "numeric"},
			},
		},
		result: &database.QueryResult{
			Columns: []string{"amount"},
			Rows:    [][]string{{"10.00"}, {"25.50"}},
		},
	}
}

func newEngine(t *testing.T, wf *workflow.Workflow) *workflow.Engine {
	t.Helper()
	e := workflow.NewEngine(workflow.NewInMemoryRunStore())
	if err := e.Register(wf); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return e
}

// The index-based KPI flow, end to end against the sales fixture.
func TestKPIBuilderEndToEnd(t *testing.T) {
	store := salesStore()
	engine := newEngine(t, NewKPIBuilder(store, &fakeWriter{}))
	ctx := context.Background()

	run, err := engine.Start(ctx, KPIBuilderID, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.Status != workflow.StatusSuspended || run.StepID != "select-tables" {
		t.Fatalf("expected pause at select-tables, got %s at %s", run.Status, run.StepID)
	}
	tables, _ := run.SuspendPayload["tables"].([]string)
	if len(tables) != 2 || tables[1] != "public.sales" {
		t.Fatalf("unexpected tables payload %v", run.SuspendPayload)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})
	if err != nil {
		t.Fatalf("table selection failed: %v", err)
	}
	if run.StepID != "select-columns" || run.Status != workflow.StatusSuspended {
		t.Fatalf("expected pause at select-columns, got %s at %s", run.Status, run.StepID)
	}
	if _, ok := run.SuspendPayload["tableColumns"]; !ok {
		t.Fatalf("expected tableColumns payload, got %v", run.SuspendPayload)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{1},
		"kpiName":       "total_amount",
		"manualSQL":     "SELECT amount FROM public.sales",
	})
	if err != nil {
		t.Fatalf("column selection failed: %v", err)
	}
	if run.StepID != "confirm-sql" || run.Status != workflow.StatusSuspended {
		t.Fatalf("expected pause at confirm-sql, got %s at %s", run.Status, run.StepID)
	}
	if run.SuspendPayload["sql"] != "SELECT amount FROM public.sales" {
		t.Errorf("unexpected sql payload %v", run.SuspendPayload["sql"])
	}
	if run.SuspendPayload["preview"] == nil {
		t.Error("expected preview in suspend payload")
	}
	if store.lastLimit != database.DefaultQueryLimit {
		t.Errorf("preview must use the default limit, got %d", store.lastLimit)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{"confirmed": true})
	if err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("expected Completed, got %s", run.Status)
	}
	if run.Output["saved"] != true {
		t.Errorf("expected saved output, got %v", run.Output)
	}

	if store.savedKPI == nil {
		t.Fatal("KPI not persisted")
	}
	if store.savedKPI.Name != "total_amount" {
		t.Errorf("unexpected KPI name %q", store.savedKPI.Name)
	}
	if store.savedKPI.Formula != "SELECT amount FROM public.sales" {
		t.Errorf("unexpected formula %q", store.savedKPI.Formula)
	}
	if store.savedKPI.TableName != "public.sales" {
		t.Errorf("unexpected table %q", store.savedKPI.TableName)
	}
	if len(store.savedKPI.Columns) != 1 || store.savedKPI.Columns[0] != "amount" {
		t.Errorf("unexpected columns %v", store.savedKPI.Columns)
	}
}

func TestKPIBuilderInvalidTableIndexes(t *testing.T) {
	engine := newEngine(t, NewKPIBuilder(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	_, err := engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{0, 5, -1, 7}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	// Every invalid index must be named, never a subset.
	for _, want := range []string{"-1", "5", "7"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should name index %s", err.Error(), want)
		}
	}

	stored, _ := engine.GetRun(ctx, run.ID)
	if stored.Status != workflow.StatusFailed {
		t.Errorf("expected Failed run, got %s", stored.Status)
	}
}

func TestKPIBuilderEmptySelection(t *testing.T) {
	engine := newEngine(t, NewKPIBuilder(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	_, err := engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{}})
	if err == nil || !strings.Contains(err.Error(), "no table indexes") {
		t.Errorf("expected empty-selection error, got %v", err)
	}
}

func TestKPIBuilderInvalidColumnIndexes(t *testing.T) {
	engine := newEngine(t, NewKPIBuilder(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})

	_, err := engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{3, 9},
		"kpiName":       "x",
		"manualSQL":     "SELECT 1",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"3", "9"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should name index %s", err.Error(), want)
		}
	}
}

func TestKPIBuilderRequiresSQLSource(t *testing.T) {
	engine := newEngine(t, NewKPIBuilder(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})

	_, err := engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{1},
		"kpiName":       "x",
	})
	if err == nil || !strings.Contains(err.Error(), "aiIntent or manualSQL") {
		t.Errorf("expected missing-source error, got %v", err)
	}
}

func TestKPIBuilderAIIntent(t *testing.T) {
	store := salesStore()
	writer := &fakeWriter{sql: "SELECT SUM(amount) FROM public.sales"}
	engine := newEngine(t, NewKPIBuilder(store, writer))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})
	run, err := engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{1},
		"kpiName":       "total_amount",
		"aiIntent":      "sum of all sale amounts",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if writer.gotIntent != "sum of all sale amounts" {
		t.Errorf("writer got intent %q", writer.gotIntent)
	}
	if writer.gotTable != "public.sales" {
		t.Errorf("writer got table %q", writer.gotTable)
	}
	if len(writer.gotColumns) != 1 || writer.gotColumns[0] != "amount" {
		t.Errorf("writer got columns %v", writer.gotColumns)
	}
	if run.SuspendPayload["sql"] != writer.sql {
		t.Errorf("expected generated sql in payload, got %v", run.SuspendPayload["sql"])
	}
}

func TestKPIBuilderEditedSQLWins(t *testing.T) {
	store := salesStore()
	engine := newEngine(t, NewKPIBuilder(store, &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})
	run, _ = engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{0},
		"kpiName":       "counts",
		"manualSQL":     "SELECT COUNT(*) FROM public.sales",
	})

	run, err := engine.Resume(ctx, run.ID, map[string]any{
		"confirmed": true,
		"editedSQL": "SELECT COUNT(id) FROM public.sales",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("expected Completed, got %s", run.Status)
	}
	if store.savedKPI.Formula != "SELECT COUNT(id) FROM public.sales" {
		t.Errorf("edited SQL must win, got %q", store.savedKPI.Formula)
	}
}

func TestKPIBuilderDeclined(t *testing.T) {
	store := salesStore()
	engine := newEngine(t, NewKPIBuilder(store, &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{"tableIndexes": []int{1}})
	run, _ = engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{1},
		"kpiName":       "total_amount",
		"manualSQL":     "SELECT amount FROM public.sales",
	})

	run, err := engine.Resume(ctx, run.ID, map[string]any{"confirmed": false})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("declining must still complete the run, got %s", run.Status)
	}
	if run.Output["saved"] != false {
		t.Errorf("expected saved=false, got %v", run.Output)
	}
	if store.savedKPI != nil {
		t.Error("declined KPI must not be persisted")
	}
}

func TestKPIBuilderByNameEndToEnd(t *testing.T) {
	store := salesStore()
	engine := newEngine(t, NewKPIBuilderByName(store, &fakeWriter{}))
	ctx := context.Background()

	run, err := engine.Start(ctx, KPIBuilderByNameID, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.StepID != "name-table" || run.Status != workflow.StatusSuspended {
		t.Fatalf("expected pause at name-table, got %s at %s", run.Status, run.StepID)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{"tableName": "public.sales"})
	if err != nil {
		t.Fatalf("table naming failed: %v", err)
	}
	if run.StepID != "select-columns" {
		t.Fatalf("expected pause at select-columns, got %s", run.StepID)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{1},
		"kpiName":       "avg_amount",
		"manualSQL":     "SELECT AVG(amount) FROM public.sales",
	})
	if err != nil {
		t.Fatalf("column selection failed: %v", err)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{"confirmed": true})
	if err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("expected Completed, got %s", run.Status)
	}
	if store.savedKPI == nil || store.savedKPI.Name != "avg_amount" {
		t.Errorf("KPI not persisted: %+v", store.savedKPI)
	}
	if store.savedKPI.TableName != "public.sales" {
		t.Errorf("unexpected table %q", store.savedKPI.TableName)
	}
}

func TestKPIBuilderByNameRequiresTableName(t *testing.T) {
	engine := newEngine(t, NewKPIBuilderByName(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderByNameID, nil)
	if _, err := engine.Resume(ctx, run.ID, map[string]any{}); err == nil {
		t.Error("expected error for missing tableName")
	}
}

func TestKPIBuilderByNameUnknownTable(t *testing.T) {
	engine := newEngine(t, NewKPIBuilderByName(salesStore(), &fakeWriter{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, KPIBuilderByNameID, nil)
	// Unknown table is not rejected at naming time; it just has no
	// columns, so any column index is then invalid.
	run, err := engine.Resume(ctx, run.ID, map[string]any{"tableName": "public.missing"})
	if err != nil {
		t.Fatalf("unknown table must not fail the naming step: %v", err)
	}

	_, err = engine.Resume(ctx, run.ID, map[string]any{
		"columnIndexes": []int{0},
		"kpiName":       "x",
		"manualSQL":     "SELECT 1",
	})
	if err == nil {
		t.Error("expected invalid column index against empty table")
	}
}

func TestInsightBuilderEndToEnd(t *testing.T) {
	store := salesStore()
	store.kpis = []database.KPI{{
		Name:        "total_amount",
		Description: "Total sales amount",
		Formula:     "SELECT SUM(amount) FROM public.sales",
	}}
	analyst := &fakeAnalyst{narrative: "Sales held steady through Q1."}
	engine := newEngine(t, NewInsightBuilder(store, analyst))
	ctx := context.Background()

	run, err := engine.Start(ctx, InsightBuilderID, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if run.StepID != "select-kpi" || run.Status != workflow.StatusSuspended {
		t.Fatalf("expected pause at select-kpi, got %s at %s", run.Status, run.StepID)
	}
	kpis, _ := run.SuspendPayload["kpis"].([]database.KPI)
	if len(kpis) != 1 || kpis[0].Name != "total_amount" {
		t.Fatalf("unexpected kpis payload %v", run.SuspendPayload)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{
		"kpiName":     "total_amount",
		"insightName": "q1-check",
	})
	if err != nil {
		t.Fatalf("KPI selection failed: %v", err)
	}
	if run.StepID != "review-narrative" || run.Status != workflow.StatusSuspended {
		t.Fatalf("expected pause at review-narrative, got %s at %s", run.Status, run.StepID)
	}
	if run.SuspendPayload["narrative"] != "Sales held steady through Q1." {
		t.Errorf("unexpected narrative payload %v", run.SuspendPayload)
	}
	if store.lastSQL != "SELECT SUM(amount) FROM public.sales" {
		t.Errorf("KPI formula not executed, got %q", store.lastSQL)
	}
	if analyst.gotKPI.Name != "total_amount" {
		t.Errorf("analyst got KPI %q", analyst.gotKPI.Name)
	}

	run, err = engine.Resume(ctx, run.ID, map[string]any{"confirmed": true})
	if err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("expected Completed, got %s", run.Status)
	}

	if store.insight == nil {
		t.Fatal("insight not persisted")
	}
	if store.insight.Name != "q1-check" || store.insight.KPIName != "total_amount" {
		t.Errorf("unexpected insight %+v", store.insight)
	}
	if store.insight.Formula != "Sales held steady through Q1." {
		t.Errorf("unexpected narrative %q", store.insight.Formula)
	}
}

func TestInsightBuilderUnknownKPI(t *testing.T) {
	store := salesStore()
	store.kpis = []database.KPI{{Name: "total_amount", Formula: "SELECT 1"}}
	engine := newEngine(t, NewInsightBuilder(store, &fakeAnalyst{}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, InsightBuilderID, nil)
	_, err := engine.Resume(ctx, run.ID, map[string]any{
		"kpiName":     "nope",
		"insightName": "x",
	})
	if err == nil || !strings.Contains(err.Error(), `unknown kpi "nope"`) {
		t.Errorf("expected unknown-kpi error, got %v", err)
	}
}

func TestInsightBuilderEditedText(t *testing.T) {
	store := salesStore()
	store.kpis = []database.KPI{{Name: "total_amount", Formula: "SELECT 1"}}
	engine := newEngine(t, NewInsightBuilder(store, &fakeAnalyst{narrative: "draft"}))
	ctx := context.Background()

	run, _ := engine.Start(ctx, InsightBuilderID, nil)
	run, _ = engine.Resume(ctx, run.ID, map[string]any{
		"kpiName":     "total_amount",
		"insightName": "edited",
	})
	run, err := engine.Resume(ctx, run.ID, map[string]any{
		"confirmed":  true,
		"editedText": "final text",
	})
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if run.Status != workflow.StatusCompleted {
		t.Fatalf("expected Completed, got %s", run.Status)
	}
	if store.insight.Formula != "final text" {
		t.Errorf("edited text must win, got %q", store.insight.Formula)
	}
}

func TestValidateIndexesNamesEveryInvalid(t *testing.T) {
	err := validateIndexes("table", []int{9, -2, 0, 11}, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "[-2 9 11]") {
		t.Errorf("expected all invalid indexes sorted in %q", msg)
	}
}

func TestDecodeIndexesForms(t *testing.T) {
	cases := []struct {
		in      any
		want    []int
		wantErr bool
	}{
		{[]int{1, 2}, []int{1, 2}, false},
		{[]any{float64(0), float64(3)}, []int{0, 3}, false},
		{[]any{"one"}, nil, true},
		{"nope", nil, true},
		{nil, nil, false},
	}
	for _, tc := range cases {
		got, err := decodeIndexes(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("decodeIndexes(%v): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("decodeIndexes(%v): %v", tc.in, err)
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("decodeIndexes(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
