package llm

import (
	"context"
	"errors"
)

// MockProvider returns a fixed response, a fixed error, or delegates
// to ChatFunc when set. The zero value replies with empty content.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var _ Provider = (*MockProvider)(nil)

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   mockUsage(req, m.Response),
	}, nil
}

// FailingMockProvider fails every call.
type FailingMockProvider struct {
	Err error
}

var _ Provider = (*FailingMockProvider)(nil)

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, errors.New("mock provider failure")
	}
	return nil, f.Err
}

// mockUsage derives rough token counts from message lengths so tests
// exercising usage accounting see non-zero, deterministic numbers.
func mockUsage(req ChatRequest, reply string) Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += len(m.Content)/4 + 1
	}
	completion := len(reply)/4 + 1
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
