// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"context"
	"os"
	"testing"
)

// connectTestDB dials the database named by METRIKA_TEST_DATABASE_URL
// and skips the test when it is unset.
func connectTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("METRIKA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("set METRIKA_TEST_DATABASE_URL to run database integration tests")
	}
	db, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema should be safe to re-run: %v", err)
	}
}

func TestUpsertKPIKeepsSingleRow(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	const name = "it_monthly_revenue"
	cleanupKPI(t, db, name)

	if err := db.UpsertKPI(ctx, KPI{
		Name:    name,
		Formula: "SELECT SUM(amount) FROM orders",
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := db.UpsertKPI(ctx, KPI{
		Name:        name,
		Description: "revenue per calendar month",
		Formula:     "SELECT SUM(total) FROM orders",
		TableName:   "orders",
		Columns:     []string{"total"},
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var count int
	if err := db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM kpi WHERE name = $1`, name).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for %s, got %d", name, count)
	}

	kpi, err := db.GetKPI(ctx, name)
	if err != nil {
		t.Fatalf("GetKPI failed: %v", err)
	}
	if kpi == nil {
		t.Fatalf("kpi %s not found after upsert", name)
	}
	if kpi.Formula != "SELECT SUM(total) FROM orders" {
		t.Errorf("second upsert should overwrite formula, got %s", kpi.Formula)
	}
	if kpi.TableName != "orders" || len(kpi.Columns) != 1 || kpi.Columns[0] != "total" {
		t.Errorf("unexpected kpi after overwrite: %+v", kpi)
	}
}

func TestDeleteKPIDetachesInsights(t *testing.T) {
	db := connectTestDB(t)
	ctx := context.Background()

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	const name = "it_orphaned_kpi"
	cleanupKPI(t, db, name)

	if err := db.UpsertKPI(ctx, KPI{Name: name, Formula: "SELECT 1"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	id, err := db.InsertInsight(ctx, Insight{
		Name:    "it_orphaned_insight",
		KPIName: name,
		Formula: "the metric trended flat",
	})
	if err != nil {
		t.Fatalf("InsertInsight failed: %v", err)
	}

	if err := db.DeleteKPI(ctx, name); err != nil {
		t.Fatalf("DeleteKPI failed: %v", err)
	}

	var kpiName *string
	if err := db.Pool().QueryRow(ctx,
		`SELECT kpi_name FROM insight WHERE id = $1`, id).Scan(&kpiName); err != nil {
		t.Fatalf("insight lookup failed: %v", err)
	}
	if kpiName != nil {
		t.Errorf("deleting the kpi should null kpi_name, got %s", *kpiName)
	}
}

// cleanupKPI removes test rows before and after each run so reruns
// against a shared database start clean.
func cleanupKPI(t *testing.T, db *DB, name string) {
	t.Helper()
	clean := func() {
		ctx := context.Background()
		db.Pool().Exec(ctx, `DELETE FROM insight WHERE name LIKE 'it_%'`)
		db.Pool().Exec(ctx, `DELETE FROM kpi WHERE name = $1`, name)
	}
	clean()
	t.Cleanup(clean)
}
