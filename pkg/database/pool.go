// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package database provides the PostgreSQL access layer: pooled
// connections, idempotent schema setup, catalog introspection, bounded
// query execution, and the KPI/Insight stores.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool shared by every tool and workflow step.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a pooled connection using the given URL
// (typically from DATABASE_URL).
func Connect(ctx context.Context, url string) (*DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pool for callers that manage their own SQL.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
