// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps history in a process-local map. Data is lost on
// restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	config   Config
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore(config Config) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]Message),
		config:   config,
	}
}

func (s *InMemoryStore) AppendMessage(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	return nil
}

func (s *InMemoryStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	messages := make([]Message, len(s.sessions[sessionID]))
	copy(messages, s.sessions[sessionID])
	s.mu.RUnlock()

	if s.config.TruncationStrategy != nil && len(messages) > 0 {
		return s.config.TruncationStrategy.Truncate(ctx, messages)
	}
	return messages, nil
}

func (s *InMemoryStore) GetRecentMessages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sessions[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) DeleteOldMessages(_ context.Context, sessionID string, olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	cutoff := time.Now().Add(-olderThan)
	var kept []Message
	for _, msg := range messages {
		if msg.CreatedAt.After(cutoff) {
			kept = append(kept, msg)
		}
	}
	s.sessions[sessionID] = kept
	return nil
}

// ListSessions returns all session ids, sorted.
func (s *InMemoryStore) ListSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MessageCount returns the number of messages stored for a session.
func (s *InMemoryStore) MessageCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}
