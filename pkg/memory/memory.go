// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory stores conversation history for multi-turn agent
// sessions. Two backends exist: an in-process map for development and
// the demo driver, and a PostgreSQL table for deployments where
// history must survive restarts.
package memory

import (
	"context"
	"time"
)

// Message is one stored conversation turn.
type Message struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Role       string            `json:"role"` // system, user, assistant, tool
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store persists and retrieves ordered conversation history.
type Store interface {
	// AppendMessage adds a message to the session's history.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error

	// GetMessages returns the session's full history in order,
	// after applying the configured truncation strategy.
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)

	// GetRecentMessages returns the last limit messages in order.
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// Clear drops the session's history.
	Clear(ctx context.Context, sessionID string) error

	// DeleteOldMessages drops messages older than the given age.
	DeleteOldMessages(ctx context.Context, sessionID string, olderThan time.Duration) error
}

// TruncationStrategy bounds a loaded history before it reaches the
// caller.
type TruncationStrategy interface {
	Truncate(ctx context.Context, messages []Message) ([]Message, error)
}

// Config tunes store behavior shared by all backends.
type Config struct {
	// TruncationStrategy applied by GetMessages. Optional.
	TruncationStrategy TruncationStrategy
	// DefaultSessionTTL is how long inactive sessions are kept.
	// Zero means forever.
	DefaultSessionTTL time.Duration
}

// WindowStrategy keeps only the most recent MaxMessages entries,
// optionally pinning system messages outside the window.
type WindowStrategy struct {
	MaxMessages        int
	KeepSystemMessages bool
}

// NewWindowStrategy creates a window-based truncation strategy.
func NewWindowStrategy(maxMessages int, keepSystem bool) *WindowStrategy {
	return &WindowStrategy{
		MaxMessages:        maxMessages,
		KeepSystemMessages: keepSystem,
	}
}

func (w *WindowStrategy) Truncate(_ context.Context, messages []Message) ([]Message, error) {
	if len(messages) <= w.MaxMessages {
		return messages, nil
	}
	if !w.KeepSystemMessages {
		return messages[len(messages)-w.MaxMessages:], nil
	}

	var system, rest []Message
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	room := w.MaxMessages - len(system)
	if room < 0 {
		room = 0
	}
	if len(rest) > room {
		rest = rest[len(rest)-room:]
	}
	return append(system, rest...), nil
}
