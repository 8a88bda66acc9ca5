// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow implements an ordered-step pipeline engine with
// explicit suspend/resume: a step can pause the run with a payload for
// a human, and the run is re-entered later with that human's answer.
package workflow

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of one workflow run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSuspended RunStatus = "suspended"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// State is the accumulated run state, merged from step outputs. It must
// stay JSON-serializable; stores persist it as JSON.
type State map[string]any

// StepResult is what a step handler returns. Output is always merged
// into the run state; a non-nil Suspend then pauses the run instead of
// advancing, so a step can stash what it computed before asking a human.
type StepResult struct {
	Output  map[string]any
	Suspend map[string]any
}

// Handler executes one step. state holds everything previous steps
// produced plus the run input. resume carries the payload passed to
// Resume when the step is re-entered after a suspension, nil otherwise.
type Handler func(ctx context.Context, state State, resume map[string]any) (StepResult, error)

// Step is one named stage of a workflow.
type Step struct {
	ID      string
	Handler Handler
}

// Workflow is an ordered sequence of steps identified by a stable id.
type Workflow struct {
	ID    string
	Steps []Step
}

// Run is the persisted record of one workflow execution.
type Run struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	Status         RunStatus      `json:"status"`
	StepIndex      int            `json:"step_index"`
	StepID         string         `json:"step_id,omitempty"`
	State          State          `json:"state,omitempty"`
	SuspendPayload map[string]any `json:"suspend_payload,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RunStore persists workflow runs across suspensions.
type RunStore interface {
	// SaveRun inserts or replaces the run record.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun returns the run or a NOT_FOUND error.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns every run for a workflow, newest first. An empty
	// workflowID lists all runs.
	ListRuns(ctx context.Context, workflowID string) ([]*Run, error)
}
