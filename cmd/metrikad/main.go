// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// metrikad is the long-running composition root: it wires telemetry,
// the database pool, conversation memory, the agents, and the workflow
// engine, then serves the tool surface to MCP clients on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/metrikahq/metrika/internal/app"
	"github.com/metrikahq/metrika/pkg/config"
	"github.com/metrikahq/metrika/pkg/mcp"
	"github.com/metrikahq/metrika/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		var watcher *config.Watcher
		watcher, cfg, err = config.WatchConfig(ctx, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "metrikad: %v\n", err)
			os.Exit(1)
		}
		defer watcher.Stop()
		// Log settings take effect on reload; everything else is
		// wired at startup and keeps its original configuration.
		watcher.OnChange(func(c *config.Config) {
			telemetry.ConfigureSlog(os.Stderr, c.Log.Level, c.Log.Format)
		})
	} else {
		cfg, err = config.Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "metrikad: %v\n", err)
			os.Exit(1)
		}
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metrikad: %v\n", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	// Schema failures are logged but do not halt the daemon; a
	// concurrently running metrika-init may still be completing.
	if err := a.DB.EnsureSchema(ctx); err != nil {
		a.Logger.Error("schema setup failed", slog.String("error", err.Error()))
	} else {
		a.Logger.Info("database schema ready")
	}

	server := mcp.NewServer("metrika", app.Version)
	if err := server.RegisterTools(app.ToolSet(a.DB)...); err != nil {
		a.Logger.Error("tool registration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	a.Logger.Info("serving tools over MCP stdio",
		slog.String("version", app.Version),
		slog.Any("workflows", a.Engine.Workflows()))

	if err := server.ServeStdio(); err != nil {
		a.Logger.Error("mcp server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
