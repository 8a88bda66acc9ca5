// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic adapts the Anthropic Messages API to llm.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/metrikahq/metrika/pkg/llm"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// Provider talks to the Anthropic Messages API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	model      string
	maxTokens  int64
	clientOpts []option.RequestOption
}

// Option configures the Provider.
type Option func(*settings)

// WithModel sets the model used when the request does not name one.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithMaxTokens sets the response token ceiling.
func WithMaxTokens(tokens int64) Option {
	return func(s *settings) { s.maxTokens = tokens }
}

// WithAPIKey overrides the ANTHROPIC_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithAPIKey(apiKey))
	}
}

// WithBaseURL points the client at an alternate endpoint, such as a
// proxy or a compatible gateway.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithBaseURL(url))
	}
}

// New builds a Provider. Without options the client authenticates via
// the ANTHROPIC_API_KEY environment variable.
func New(opts ...Option) *Provider {
	s := settings{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&s)
	}
	return &Provider{
		client:    anthropic.NewClient(s.clientOpts...),
		model:     s.model,
		maxTokens: s.maxTokens,
	}
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	// The system prompt rides outside the message list.
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			params.System = []anthropic.TextBlockParam{{Type: "text", Text: msg.Content}}
			continue
		}
		params.Messages = append(params.Messages, toMessageParam(msg))
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toToolParam(tool))
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}
	return fromMessage(message), nil
}

func toMessageParam(msg llm.Message) anthropic.MessageParam {
	switch msg.Role {
	case llm.RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content))
		}
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]interface{}
			json.Unmarshal([]byte(tc.Function.Arguments), &input)
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return anthropic.MessageParam{Role: "assistant", Content: blocks}
	case llm.RoleTool:
		// Tool results go back as user messages.
		return anthropic.NewUserMessage(
			anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
		)
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func toToolParam(tool llm.Tool) anthropic.ToolUnionParam {
	var schema anthropic.ToolInputSchemaParam
	if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
		json.Unmarshal(raw, &schema)
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropic.String(tool.Function.Description),
			InputSchema: schema,
		},
	}
}

func fromMessage(message *anthropic.Message) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return resp
}
