// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the provider tool-calling loop that binds an
// LLM, a tool set, and conversation memory into a chat surface.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/metrikahq/metrika/pkg/core"
	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/llm"
	"github.com/metrikahq/metrika/pkg/memory"
	"github.com/metrikahq/metrika/pkg/telemetry"
)

const (
	// DefaultMaxToolIterations caps provider round-trips in one Chat call.
	DefaultMaxToolIterations = 8
	// DefaultHistoryWindow is how many prior messages are replayed.
	DefaultHistoryWindow = 20
)

// Tool is an executable capability with an LLM manifest.
type Tool interface {
	core.Tool
	Definition() llm.Tool
}

// Agent binds a system prompt, an LLM provider, and a tool set into a
// multi-turn chat loop.
type Agent struct {
	id           string
	systemPrompt string
	provider     llm.Provider
	model        string
	temperature  float64
	maxTokens    int64
	tools        []Tool
	memory       memory.Store
	window       int
	maxIter      int
	metrics      *telemetry.Metrics
}

// Option configures an Agent.
type Option func(*Agent)

// New creates an agent with the given id and provider.
func New(id string, provider llm.Provider, opts ...Option) (*Agent, error) {
	if id == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "agent id is required")
	}
	if provider == nil {
		return nil, errors.Newf(errors.CodeInvalidInput, "llm provider is required")
	}

	a := &Agent{
		id:       id,
		provider: provider,
		window:   DefaultHistoryWindow,
		maxIter:  DefaultMaxToolIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// WithSystemPrompt sets the system prompt sent on every request.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithModel sets the model identifier passed to the provider.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(a *Agent) { a.temperature = temp }
}

// WithMaxTokens caps the completion length per provider call.
func WithMaxTokens(maxTokens int64) Option {
	return func(a *Agent) { a.maxTokens = maxTokens }
}

// WithTools binds executable tools to the agent.
func WithTools(tools ...Tool) Option {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithMemory attaches conversation memory. Without it each Chat call is
// stateless.
func WithMemory(mem memory.Store) Option {
	return func(a *Agent) { a.memory = mem }
}

// WithHistoryWindow sets how many prior messages are replayed per call.
func WithHistoryWindow(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.window = n
		}
	}
}

// WithMaxToolIterations sets the provider round-trip cap per Chat call.
func WithMaxToolIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIter = n
		}
	}
}

// WithMetrics attaches a metrics recorder. Nil is accepted.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Tools returns the bound tool set.
func (a *Agent) Tools() []Tool { return a.tools }

// Chat sends a user message through the tool-calling loop and returns
// the assistant's final text. Tool calls returned by the provider are
// executed and their results fed back until the provider answers in
// plain text or the iteration cap is reached.
func (a *Agent) Chat(ctx context.Context, sessionID, userMsg string) (string, error) {
	ctx, runID := core.EnsureRunID(ctx)

	ctx, span := otel.Tracer("metrika/agent").Start(ctx, "agent.chat",
		trace.WithAttributes(telemetry.AgentAttributes(a.id, a.model, runID, a.maxIter)...))
	defer span.End()

	messages, err := a.buildMessages(ctx, sessionID, userMsg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(telemetry.SessionAttributes(sessionID, len(messages))...)

	manifest := a.toolManifest()
	log := slog.Default()

	for iter := 0; iter < a.maxIter; iter++ {
		resp, err := a.provider.Chat(ctx, llm.ChatRequest{
			Model:       a.model,
			Messages:    messages,
			Tools:       manifest,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.RecordError(ctx, err, "agent")
			return "", errors.New(errors.CodeLLMError, "provider call failed", err).
				WithContext("agent", a.id)
		}
		a.metrics.RecordLLMUsage(ctx, a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		if len(resp.ToolCalls) == 0 {
			if err := a.remember(ctx, sessionID, userMsg, resp.Content); err != nil {
				log.Warn("failed to persist conversation turn",
					slog.String("agent", a.id),
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
			}
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := a.executeTool(ctx, call)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	err = errors.Newf(errors.CodeLLMError, "agent %s exceeded %d tool iterations", a.id, a.maxIter)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

// buildMessages assembles system prompt, replayed history, and the new
// user message. The user message is not yet persisted; remember() stores
// the full turn once the provider answers.
func (a *Agent) buildMessages(ctx context.Context, sessionID, userMsg string) ([]llm.Message, error) {
	var messages []llm.Message
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}

	if a.memory != nil {
		history, err := a.memory.GetRecentMessages(ctx, sessionID, a.window)
		if err != nil {
			return nil, errors.New(errors.CodeStorageError, "failed to load conversation history", err).
				WithContext("session_id", sessionID)
		}
		for _, msg := range history {
			messages = append(messages, llm.Message{
				Role:    llm.Role(msg.Role),
				Content: msg.Content,
			})
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: userMsg}), nil
}

// remember persists the user/assistant turn. Intermediate tool traffic
// stays in-request; only the surface conversation is replayed later.
func (a *Agent) remember(ctx context.Context, sessionID, userMsg, reply string) error {
	if a.memory == nil {
		return nil
	}
	if err := a.memory.AppendMessage(ctx, sessionID, memory.Message{
		Role:    string(llm.RoleUser),
		Content: userMsg,
	}); err != nil {
		return err
	}
	return a.memory.AppendMessage(ctx, sessionID, memory.Message{
		Role:    string(llm.RoleAssistant),
		Content: reply,
	})
}

func (a *Agent) toolManifest() []llm.Tool {
	if len(a.tools) == 0 {
		return nil
	}
	manifest := make([]llm.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		manifest = append(manifest, t.Definition())
	}
	return manifest
}

// executeTool runs one tool call and stringifies the outcome for the
// provider. Execution errors are fed back as the tool result so the
// model can recover or report; only provider errors abort the loop.
func (a *Agent) executeTool(ctx context.Context, call llm.ToolCall) string {
	name := call.Function.Name
	start := time.Now()

	ctx, span := otel.Tracer("metrika/agent").Start(ctx, "agent.tool."+name)
	defer span.End()

	tool := a.findTool(name)
	if tool == nil {
		msg := fmt.Sprintf("error: unknown tool %q", name)
		span.SetStatus(codes.Error, msg)
		a.metrics.RecordToolCall(ctx, name, float64(time.Since(start).Milliseconds()), false)
		return msg
	}

	out, err := tool.Call(ctx, call.Function.Arguments)
	durationMs := float64(time.Since(start).Milliseconds())
	span.SetAttributes(telemetry.ToolCallAttributes(name, call.ID, durationMs, err == nil)...)
	a.metrics.RecordToolCall(ctx, name, durationMs, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.RecordError(ctx, err, "tool")
		slog.Default().Warn("tool call failed",
			slog.String("agent", a.id),
			slog.String("tool", name),
			slog.String("error", err.Error()))
		return fmt.Sprintf("error: %s", err.Error())
	}

	switch v := out.(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: failed to encode tool result: %s", err.Error())
		}
		return string(raw)
	}
}

func (a *Agent) findTool(name string) Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}
