// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// metrika-init creates or migrates the application schema and exits.
// Run it once before starting metrikad against a fresh database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/metrikahq/metrika/pkg/config"
	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrika-init: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("database schema ready")
}
