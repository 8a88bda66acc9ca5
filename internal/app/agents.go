// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/metrikahq/metrika/pkg/agent"
	"github.com/metrikahq/metrika/pkg/config"
	"github.com/metrikahq/metrika/pkg/database"
	"github.com/metrikahq/metrika/pkg/llm"
	"github.com/metrikahq/metrika/pkg/memory"
	"github.com/metrikahq/metrika/pkg/telemetry"
	"github.com/metrikahq/metrika/pkg/tools"
)

const dataAssistantPrompt = `You are a data assistant for a business metrics system.
You help users explore their database, define KPIs (named SQL queries that
compute a metric), and record insights. Use the tools to inspect tables and
columns before writing SQL. Always preview a query with run_query before
saving it as a KPI. Keep answers short and concrete.`

const insightAnalystPrompt = `You are a data analyst. Given a KPI definition and a sample of its
query results, you write a short narrative summary of what the data shows:
the headline number, the trend if visible, and anything unusual. You have
read-only access to the database for context. Never invent numbers that are
not in the data.`

const sqlWriterPrompt = `You translate a plain-language metric description into a single SQL
SELECT statement for PostgreSQL. Reply with the SQL statement only: no
markdown fences, no commentary, no trailing semicolon.`

// ToolSet is every tool the application exposes, in registration order.
func ToolSet(db *database.DB) []agent.Tool {
	return []agent.Tool{
		tools.NewListTablesTool(db),
		tools.NewGetTableSchemaTool(db),
		tools.NewRunQueryTool(db),
		tools.NewSaveKPITool(db),
		tools.NewListKPIsTool(db),
		tools.NewSaveInsightTool(db),
	}
}

// readOnlyToolSet is the subset safe for the analyst: introspection and
// bounded reads, no persistence.
func readOnlyToolSet(db *database.DB) []agent.Tool {
	return []agent.Tool{
		tools.NewListTablesTool(db),
		tools.NewGetTableSchemaTool(db),
		tools.NewRunQueryTool(db),
		tools.NewListKPIsTool(db),
	}
}

// NewDataAssistant builds the main conversational agent, bound to the
// full tool set.
func NewDataAssistant(provider llm.Provider, cfg *config.Config, db *database.DB,
	mem memory.Store, metrics *telemetry.Metrics) (*agent.Agent, error) {
	return agent.New("data-assistant", provider,
		agent.WithSystemPrompt(dataAssistantPrompt),
		agent.WithModel(cfg.LLM.Model),
		agent.WithTemperature(cfg.LLM.Temp),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
		agent.WithTools(ToolSet(db)...),
		agent.WithMemory(mem),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithMaxToolIterations(cfg.Agent.MaxToolIterations),
		agent.WithMetrics(metrics),
	)
}

// NewInsightAnalyst builds the narrative agent with read-only tools.
func NewInsightAnalyst(provider llm.Provider, cfg *config.Config, db *database.DB,
	metrics *telemetry.Metrics) (*agent.Agent, error) {
	return agent.New("insight-analyst", provider,
		agent.WithSystemPrompt(insightAnalystPrompt),
		agent.WithModel(cfg.LLM.Model),
		agent.WithTemperature(cfg.LLM.Temp),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
		agent.WithTools(readOnlyToolSet(db)...),
		agent.WithMaxToolIterations(cfg.Agent.MaxToolIterations),
		agent.WithMetrics(metrics),
	)
}

// NewSQLWriter builds the tool-less agent that turns intents into SQL
// for the KPI flows.
func NewSQLWriter(provider llm.Provider, cfg *config.Config) (*agent.Agent, error) {
	return agent.New("sql-writer", provider,
		agent.WithSystemPrompt(sqlWriterPrompt),
		agent.WithModel(cfg.LLM.Model),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
	)
}

// AgentSQLWriter adapts an agent into the flows.SQLWriter contract.
type AgentSQLWriter struct {
	agent *agent.Agent
}

// NewAgentSQLWriter wraps the SQL-writer agent.
func NewAgentSQLWriter(a *agent.Agent) *AgentSQLWriter {
	return &AgentSQLWriter{agent: a}
}

// WriteSQL asks the agent for one statement. Each call uses a fresh
// session; intent resolution carries no conversational state.
func (w *AgentSQLWriter) WriteSQL(ctx context.Context, intent, table string, columns []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Metric description: %s\n", intent)
	if table != "" {
		fmt.Fprintf(&b, "Table: %s\n", table)
	}
	if len(columns) > 0 {
		fmt.Fprintf(&b, "Relevant columns: %s\n", strings.Join(columns, ", "))
	}

	reply, err := w.agent.Chat(ctx, "sqlwriter-"+uuid.New().String(), b.String())
	if err != nil {
		return "", err
	}
	return cleanSQL(reply), nil
}

// AgentAnalyst adapts an agent into the flows.Analyst contract.
type AgentAnalyst struct {
	agent *agent.Agent
}

// NewAgentAnalyst wraps the insight-analyst agent.
func NewAgentAnalyst(a *agent.Agent) *AgentAnalyst {
	return &AgentAnalyst{agent: a}
}

// Analyze prompts the analyst with the KPI metadata and sample rows.
func (an *AgentAnalyst) Analyze(ctx context.Context, kpi database.KPI, preview *database.QueryResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "KPI: %s\n", kpi.Name)
	if kpi.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", kpi.Description)
	}
	fmt.Fprintf(&b, "Query: %s\n", kpi.Formula)
	fmt.Fprintf(&b, "Sample results:\n%s\n", renderPreview(preview))
	b.WriteString("Write a short narrative insight about this data.")

	return an.agent.Chat(ctx, "analyst-"+uuid.New().String(), b.String())
}

// cleanSQL strips markdown fences and a trailing terminator from a
// model reply, leaving bare SQL.
func cleanSQL(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

// renderPreview formats a bounded query result as a compact text table.
func renderPreview(result *database.QueryResult) string {
	if result == nil || len(result.Columns) == 0 {
		return "(no rows)"
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	for _, row := range result.Rows {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}
