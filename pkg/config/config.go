package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	LLM       LLMConfig       `koanf:"llm"`
	Agent     AgentConfig     `koanf:"agent"`
	Memory    MemoryConfig    `koanf:"memory"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type LLMConfig struct {
	Provider  string  `koanf:"provider"` // anthropic, openai, mock
	Model     string  `koanf:"model"`
	BaseURL   string  `koanf:"base_url"`
	APIKey    string  `koanf:"api_key"`
	MaxTokens int64   `koanf:"max_tokens"`
	Temp      float64 `koanf:"temperature"`
}

type AgentConfig struct {
	// MaxToolIterations bounds the provider/tool loop per chat turn.
	MaxToolIterations int `koanf:"max_tool_iterations"`
	// HistoryWindow is the number of recent conversation messages
	// replayed to the provider on each turn.
	HistoryWindow int `koanf:"history_window"`
}

type MemoryConfig struct {
	// Backend selects conversation storage: inmemory, postgres.
	Backend string `koanf:"backend"`
	Table   string `koanf:"table"`
}

type WorkflowConfig struct {
	// Store selects run-state persistence: memory, sqlite, postgres.
	Store      string `koanf:"store"`
	SQLitePath string `koanf:"sqlite_path"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load builds the configuration from defaults, an optional YAML file,
// and METRIKA_-prefixed environment variables, in that order.
// DATABASE_URL is honored directly; METRIKA_DATABASE_URL is the fallback.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "anthropic")
	k.Set("llm.model", "claude-sonnet-4-20250514")
	k.Set("llm.max_tokens", 4096)
	k.Set("agent.max_tool_iterations", 8)
	k.Set("agent.history_window", 20)
	k.Set("memory.backend", "inmemory")
	k.Set("memory.table", "conversation_messages")
	k.Set("workflow.store", "memory")
	k.Set("workflow.sqlite_path", "metrika-runs.db")
	k.Set("telemetry.exporter", "stdout")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (METRIKA_LLM_MAX_TOKENS -> llm.max_tokens).
	// Only the first underscore separates the section from the key, so
	// keys that themselves contain underscores stay reachable.
	if err := k.Load(env.Provider("METRIKA_", ".", func(s string) string {
		parts := strings.SplitN(strings.ToLower(
			strings.TrimPrefix(s, "METRIKA_")), "_", 2)
		return strings.Join(parts, ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// DATABASE_URL wins over everything else when set.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	return &cfg, nil
}
