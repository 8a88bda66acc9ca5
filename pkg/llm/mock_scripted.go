package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedResponse defines one turn for the scripted provider.
type ScriptedResponse struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence
// of responses. Useful for testing multi-turn interactions such as
// tool-calling loops.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []ScriptedResponse
	// Requests captures every request seen, in order.
	Requests []ChatRequest
	// CallCount tracks how many times Chat has been called.
	CallCount int
}

// NewScriptedMockProvider creates a provider that replies with the given
// plain-text responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	p := &ScriptedMockProvider{}
	for _, r := range responses {
		p.Responses = append(p.Responses, ScriptedResponse{Content: r})
	}
	return p
}

// Chat pops the next scripted response.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	next := s.Responses[0]
	s.Responses = s.Responses[1:]

	if next.Err != nil {
		return nil, next.Err
	}

	return &ChatResponse{
		Content:   next.Content,
		ToolCalls: next.ToolCalls,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// AddResponse appends a scripted response to the queue.
func (s *ScriptedMockProvider) AddResponse(r ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, r)
}

// AddToolCall appends a response that asks for a single tool invocation.
func (s *ScriptedMockProvider) AddToolCall(id, name, arguments string) {
	s.AddResponse(ScriptedResponse{
		ToolCalls: []ToolCall{{
			ID:   id,
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	})
}

// LastRequest returns the most recent request, or nil.
func (s *ScriptedMockProvider) LastRequest() *ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return nil
	}
	req := s.Requests[len(s.Requests)-1]
	return &req
}
