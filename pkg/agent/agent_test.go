// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/metrikahq/metrika/pkg/llm"
	"github.com/metrikahq/metrika/pkg/memory"
)

type echoTool struct {
	name     string
	reply    any
	err      error
	lastArgs any
	calls    int
}

func (t *echoTool) Name() string { return t.name }

func (t *echoTool) Call(_ context.Context, input any) (any, error) {
	t.calls++
	t.lastArgs = input
	return t.reply, t.err
}

func (t *echoTool) Definition() llm.Tool {
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:       t.name,
			Parameters: map[string]any{"type": "object"},
		},
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", &llm.MockProvider{Response: "x"}); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := New("a", nil); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestChatPlainText(t *testing.T) {
	provider := llm.NewScriptedMockProvider("hello there")
	a, err := New("assistant", provider, WithSystemPrompt("be brief"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reply, err := a.Chat(context.Background(), "s1", "hi")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("unexpected reply %q", reply)
	}

	req := provider.LastRequest()
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != "be brief" {
		t.Errorf("expected system prompt first, got %+v", req.Messages[0])
	}
	if last := req.Messages[len(req.Messages)-1]; last.Role != llm.RoleUser || last.Content != "hi" {
		t.Errorf("expected user message last, got %+v", last)
	}
}

func TestChatToolLoop(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCall("call-1", "list_tables", `{}`)
	provider.AddResponse(llm.ScriptedResponse{Content: "found public.sales"})

	tool := &echoTool{name: "list_tables", reply: []string{"public.sales"}}
	a, err := New("assistant", provider, WithTools(tool))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reply, err := a.Chat(context.Background(), "s1", "what tables exist?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "found public.sales" {
		t.Errorf("unexpected reply %q", reply)
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 tool call, got %d", tool.calls)
	}

	// Second request must carry the assistant tool-call turn and the
	// tool result.
	req := provider.LastRequest()
	var sawToolResult bool
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleTool && msg.ToolCallID == "call-1" {
			sawToolResult = true
			if !strings.Contains(msg.Content, "public.sales") {
				t.Errorf("tool result not fed back: %q", msg.Content)
			}
		}
	}
	if !sawToolResult {
		t.Error("expected tool result message in second request")
	}
}

func TestChatToolErrorFedBack(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCall("call-1", "run_query", `{"sql": "SELEC oops"}`)
	provider.AddResponse(llm.ScriptedResponse{Content: "that query is invalid"})

	tool := &echoTool{name: "run_query", err: context.DeadlineExceeded}
	a, _ := New("assistant", provider, WithTools(tool))

	reply, err := a.Chat(context.Background(), "s1", "run it")
	if err != nil {
		t.Fatalf("tool errors must not abort the loop: %v", err)
	}
	if reply != "that query is invalid" {
		t.Errorf("unexpected reply %q", reply)
	}

	req := provider.LastRequest()
	var sawError bool
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleTool && strings.HasPrefix(msg.Content, "error:") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("expected tool error fed back as result")
	}
}

func TestChatUnknownToolFedBack(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCall("call-1", "no_such_tool", `{}`)
	provider.AddResponse(llm.ScriptedResponse{Content: "sorry"})

	a, _ := New("assistant", provider)

	if _, err := a.Chat(context.Background(), "s1", "go"); err != nil {
		t.Fatalf("unknown tool must not abort the loop: %v", err)
	}

	req := provider.LastRequest()
	last := req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleTool || !strings.Contains(last.Content, "unknown tool") {
		t.Errorf("expected unknown-tool error fed back, got %+v", last)
	}
}

func TestChatIterationCap(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	for i := 0; i < 5; i++ {
		provider.AddToolCall("call", "loop", `{}`)
	}

	tool := &echoTool{name: "loop", reply: "again"}
	a, _ := New("assistant", provider, WithTools(tool), WithMaxToolIterations(3))

	_, err := a.Chat(context.Background(), "s1", "go")
	if err == nil {
		t.Fatal("expected iteration cap error")
	}
	if provider.CallCount != 3 {
		t.Errorf("expected 3 provider calls, got %d", provider.CallCount)
	}
}

func TestChatProviderErrorPropagates(t *testing.T) {
	provider := &llm.FailingMockProvider{}
	a, _ := New("assistant", provider)

	if _, err := a.Chat(context.Background(), "s1", "hi"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestChatMemoryRoundTrip(t *testing.T) {
	mem := memory.NewInMemoryStore(memory.Config{})
	provider := llm.NewScriptedMockProvider("first answer", "second answer")

	a, _ := New("assistant", provider, WithMemory(mem), WithHistoryWindow(10))

	if _, err := a.Chat(context.Background(), "s1", "first question"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, err := a.Chat(context.Background(), "s1", "second question"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	// The second request must replay the first turn.
	req := provider.LastRequest()
	var contents []string
	for _, msg := range req.Messages {
		contents = append(contents, msg.Content)
	}
	joined := strings.Join(contents, "|")
	if !strings.Contains(joined, "first question") || !strings.Contains(joined, "first answer") {
		t.Errorf("expected history replayed, got %v", contents)
	}

	if count := mem.MessageCount("s1"); count != 4 {
		t.Errorf("expected 4 persisted messages, got %d", count)
	}
}

func TestToolManifestSent(t *testing.T) {
	provider := llm.NewScriptedMockProvider("ok")
	tool := &echoTool{name: "save_kpi"}
	a, _ := New("assistant", provider, WithTools(tool))

	if _, err := a.Chat(context.Background(), "s1", "hi"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	req := provider.LastRequest()
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "save_kpi" {
		t.Errorf("expected tool manifest in request, got %+v", req.Tools)
	}
}
