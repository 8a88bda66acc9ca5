// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/metrikahq/metrika/pkg/errors"
)

// InMemoryRunStore keeps runs in a map. Suitable for tests and the demo
// driver; runs are lost on restart.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewInMemoryRunStore creates an empty in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*Run)}
}

// SaveRun inserts or replaces the run record. The run is deep-copied so
// later mutations by the engine don't leak into the store.
func (s *InMemoryRunStore) SaveRun(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.Newf(errors.CodeInvalidInput, "run id is required")
	}

	cp, err := copyRun(run)
	if err != nil {
		return errors.New(errors.CodeStorageError, "failed to encode run", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cp
	return nil
}

// GetRun returns a copy of the stored run.
func (s *InMemoryRunStore) GetRun(_ context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "run %s not found", runID)
	}
	return copyRun(run)
}

// ListRuns returns runs for a workflow, newest first.
func (s *InMemoryRunStore) ListRuns(_ context.Context, workflowID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		cp, err := copyRun(run)
		if err != nil {
			return nil, errors.New(errors.CodeStorageError, "failed to decode run", err)
		}
		runs = append(runs, cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// copyRun round-trips through JSON, which also enforces that the state
// and payloads stay serializable for the persistent stores.
func copyRun(run *Run) (*Run, error) {
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	var cp Run
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
