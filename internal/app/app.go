// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration, telemetry, storage, agents, and
// workflows into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/metrikahq/metrika/pkg/agent"
	"github.com/metrikahq/metrika/pkg/config"
	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/flows"
	"github.com/metrikahq/metrika/pkg/llm"
	"github.com/metrikahq/metrika/pkg/memory"
	"github.com/metrikahq/metrika/pkg/telemetry"
	"github.com/metrikahq/metrika/pkg/workflow"

	anthropicprovider "github.com/metrikahq/metrika/providers/anthropic"
	openaiprovider "github.com/metrikahq/metrika/providers/openai"
)

// Version is stamped at build time.
var Version = "dev"

// App holds every wired component of the running system.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *database.DB
	Memory  memory.Store
	Metrics *telemetry.Metrics

	Assistant *agent.Agent
	Analyst   *agent.Agent

	Engine   *workflow.Engine
	RunStore workflow.RunStore

	telemetryShutdown telemetry.ShutdownFunc
	sqliteStore       *workflow.SQLiteRunStore
}

// New builds the application from config: logging, telemetry, the
// database pool, conversation memory, agents, and the workflow engine
// with all three flows registered.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init(ctx, "metrika", Version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	a := &App{
		Config:            cfg,
		Logger:            logger,
		telemetryShutdown: shutdown,
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Warn("metrics unavailable", slog.String("error", err.Error()))
	}
	a.Metrics = metrics

	db, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.DB = db

	mem, err := a.buildMemory(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Memory = mem

	provider, err := NewProvider(cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if a.Assistant, err = NewDataAssistant(provider, cfg, db, mem, metrics); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if a.Analyst, err = NewInsightAnalyst(provider, cfg, db, metrics); err != nil {
		a.Close(ctx)
		return nil, err
	}
	sqlWriter, err := NewSQLWriter(provider, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	store, err := a.buildRunStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.RunStore = store

	a.Engine = workflow.NewEngine(store, workflow.WithMetrics(metrics))
	writer := NewAgentSQLWriter(sqlWriter)
	analyst := NewAgentAnalyst(a.Analyst)
	for _, wf := range []*workflow.Workflow{
		flows.NewKPIBuilder(db, writer),
		flows.NewKPIBuilderByName(db, writer),
		flows.NewInsightBuilder(db, analyst),
	} {
		if err := a.Engine.Register(wf); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	return a, nil
}

// NewProvider selects the LLM backend from config. The mock provider
// exists for offline runs and tests.
func NewProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic", "":
		var opts []anthropicprovider.Option
		if cfg.LLM.Model != "" {
			opts = append(opts, anthropicprovider.WithModel(cfg.LLM.Model))
		}
		if cfg.LLM.MaxTokens > 0 {
			opts = append(opts, anthropicprovider.WithMaxTokens(cfg.LLM.MaxTokens))
		}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, anthropicprovider.WithAPIKey(cfg.LLM.APIKey))
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, anthropicprovider.WithBaseURL(cfg.LLM.BaseURL))
		}
		return anthropicprovider.New(opts...), nil
	case "openai":
		var opts []openaiprovider.Option
		if cfg.LLM.Model != "" {
			opts = append(opts, openaiprovider.WithModel(cfg.LLM.Model))
		}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, openaiprovider.WithAPIKey(cfg.LLM.APIKey))
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openaiprovider.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openaiprovider.New(opts...), nil
	case "mock":
		return llm.NewScriptedMockProvider("this deployment uses the mock provider"), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func (a *App) buildMemory(ctx context.Context) (memory.Store, error) {
	memCfg := memory.Config{
		TruncationStrategy: memory.NewWindowStrategy(a.Config.Agent.HistoryWindow, true),
	}

	switch a.Config.Memory.Backend {
	case "postgres":
		store, err := memory.NewPostgresStore(memory.PostgresConfig{
			Pool:      a.DB.Pool(),
			TableName: a.Config.Memory.Table,
			Config:    memCfg,
		})
		if err != nil {
			return nil, err
		}
		if err := store.Initialize(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "inmemory", "":
		return memory.NewInMemoryStore(memCfg), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", a.Config.Memory.Backend)
	}
}

func (a *App) buildRunStore(ctx context.Context) (workflow.RunStore, error) {
	switch a.Config.Workflow.Store {
	case "postgres":
		return workflow.NewPostgresRunStore(ctx, a.DB.Pool())
	case "sqlite":
		store, err := workflow.NewSQLiteRunStore(ctx, a.Config.Workflow.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.sqliteStore = store
		return store, nil
	case "memory", "":
		return workflow.NewInMemoryRunStore(), nil
	default:
		return nil, fmt.Errorf("unknown workflow store %q", a.Config.Workflow.Store)
	}
}

// Close releases the pool, the run store, and telemetry, tolerating a
// partially built App.
func (a *App) Close(ctx context.Context) {
	if a.sqliteStore != nil {
		if err := a.sqliteStore.Close(); err != nil {
			a.Logger.Warn("failed to close run store", slog.String("error", err.Error()))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
}
