package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected default provider anthropic, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxToolIterations != 8 {
		t.Errorf("expected 8 tool iterations, got %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Workflow.Store != "memory" {
		t.Errorf("expected memory run store, got %s", cfg.Workflow.Store)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metrika.yaml")
	content := `
log:
  level: debug
  format: json
llm:
  provider: openai
  model: gpt-4o
workflow:
  store: sqlite
  sqlite_path: /tmp/runs.db
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Workflow.Store != "sqlite" || cfg.Workflow.SQLitePath != "/tmp/runs.db" {
		t.Errorf("unexpected workflow config: %+v", cfg.Workflow)
	}
}

func TestLoad_EnvUnderscoreKeys(t *testing.T) {
	t.Setenv("METRIKA_LLM_MAX_TOKENS", "1024")
	t.Setenv("METRIKA_AGENT_MAX_TOOL_ITERATIONS", "3")
	t.Setenv("METRIKA_WORKFLOW_SQLITE_PATH", "/tmp/env-runs.db")
	t.Setenv("METRIKA_TELEMETRY_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("expected max_tokens 1024, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Agent.MaxToolIterations != 3 {
		t.Errorf("expected 3 tool iterations, got %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Workflow.SQLitePath != "/tmp/env-runs.db" {
		t.Errorf("expected sqlite path from env, got %s", cfg.Workflow.SQLitePath)
	}
	if cfg.Telemetry.OTLPEndpoint != "collector:4317" {
		t.Errorf("expected otlp endpoint from env, got %s", cfg.Telemetry.OTLPEndpoint)
	}
}

func TestLoad_DatabaseURLWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://direct:5432/app")
	t.Setenv("METRIKA_DATABASE_URL", "postgres://fallback:5432/app")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://direct:5432/app" {
		t.Errorf("DATABASE_URL should win, got %s", cfg.Database.URL)
	}
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("METRIKA_DATABASE_URL", "postgres://fallback:5432/app")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://fallback:5432/app" {
		t.Errorf("expected fallback URL, got %s", cfg.Database.URL)
	}
}
