// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai adapts the OpenAI Chat Completions API to llm.Provider.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/metrikahq/metrika/pkg/llm"
)

const defaultModel = "gpt-5-mini"

// Provider talks to the OpenAI Chat Completions API.
type Provider struct {
	client openai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	model      string
	clientOpts []option.RequestOption
}

// Option configures the Provider.
type Option func(*settings)

// WithModel sets the model used when the request does not name one.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithAPIKey(apiKey))
	}
}

// WithBaseURL points the client at an alternate endpoint, such as
// Azure OpenAI or a compatible gateway.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.clientOpts = append(s.clientOpts, option.WithBaseURL(url))
	}
}

// New builds a Provider. Without options the client authenticates via
// the OPENAI_API_KEY environment variable.
func New(opts ...Option) *Provider {
	s := settings{model: defaultModel}
	for _, opt := range opts {
		opt(&s)
	}
	return &Provider{
		client: openai.NewClient(s.clientOpts...),
		model:  s.model,
	}
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	for _, msg := range req.Messages {
		params.Messages = append(params.Messages, toMessageParam(msg))
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, toToolParam(tool))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	return fromCompletion(completion), nil
}

func toMessageParam(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content)
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		for _, tc := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		if msg.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(msg.Content),
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	case llm.RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return openai.UserMessage(msg.Content)
	}
}

func toToolParam(tool llm.Tool) openai.ChatCompletionToolParam {
	var params openai.FunctionParameters
	if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
		json.Unmarshal(raw, &params)
	}
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		},
	}
}

func fromCompletion(completion *openai.ChatCompletion) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	choice := completion.Choices[0]
	resp.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return resp
}
