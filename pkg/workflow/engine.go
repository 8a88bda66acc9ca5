// Copyright 2026 © The Metrika Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/metrikahq/metrika/pkg/errors"
	"github.com/metrikahq/metrika/pkg/telemetry"
)

// Engine registers workflows and drives their runs through the
// suspend/resume lifecycle. Runs are independent; the engine shares only
// the store between them.
type Engine struct {
	mu        sync.RWMutex
	store     RunStore
	workflows map[string]*Workflow
	metrics   *telemetry.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics attaches a metrics recorder. Nil is accepted.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine backed by the given run store.
func NewEngine(store RunStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		workflows: make(map[string]*Workflow),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a workflow. Registering an existing id is an error.
func (e *Engine) Register(wf *Workflow) error {
	if wf == nil || wf.ID == "" {
		return errors.Newf(errors.CodeInvalidInput, "workflow id is required")
	}
	if len(wf.Steps) == 0 {
		return errors.Newf(errors.CodeInvalidInput, "workflow %s has no steps", wf.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[wf.ID]; exists {
		return errors.Newf(errors.CodeInvalidInput, "workflow %s already registered", wf.ID)
	}
	e.workflows[wf.ID] = wf
	return nil
}

// Workflows returns the registered workflow ids.
func (e *Engine) Workflows() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.workflows))
	for id := range e.workflows {
		ids = append(ids, id)
	}
	return ids
}

// Start creates a new run for the named workflow and executes steps
// until one suspends, one fails, or all complete. The returned run
// carries the suspend payload when paused.
func (e *Engine) Start(ctx context.Context, workflowID string, input map[string]any) (*Run, error) {
	e.mu.RLock()
	wf, ok := e.workflows[workflowID]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "workflow %s not registered", workflowID)
	}

	now := time.Now()
	run := &Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     StatusRunning,
		State:      State{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for k, v := range input {
		run.State[k] = v
	}

	ctx, span := otel.Tracer("metrika/workflow").Start(ctx, "workflow.start",
		trace.WithAttributes(telemetry.WorkflowAttributes(workflowID, run.ID, "", string(StatusRunning))...))
	defer span.End()

	if err := e.store.SaveRun(ctx, run); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.New(errors.CodeStorageError, "failed to persist run", err)
	}
	e.metrics.RecordRunTransition(ctx, workflowID, string(StatusRunning))

	return e.execute(ctx, wf, run, 0, nil)
}

// Resume re-enters a suspended run at its paused step, handing the
// resume payload to that step's handler, then continues. Resuming a run
// in any other state is an error.
func (e *Engine) Resume(ctx context.Context, runID string, resume map[string]any) (*Run, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != StatusSuspended {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"run %s is not suspended (status %s)", runID, run.Status)
	}

	e.mu.RLock()
	wf, ok := e.workflows[run.WorkflowID]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "workflow %s not registered", run.WorkflowID)
	}

	ctx, span := otel.Tracer("metrika/workflow").Start(ctx, "workflow.resume",
		trace.WithAttributes(telemetry.WorkflowAttributes(run.WorkflowID, run.ID, run.StepID, string(run.Status))...))
	defer span.End()

	run.Status = StatusRunning
	run.SuspendPayload = nil
	e.metrics.RecordRunTransition(ctx, run.WorkflowID, string(StatusRunning))

	return e.execute(ctx, wf, run, run.StepIndex, resume)
}

// GetRun exposes the stored run record.
func (e *Engine) GetRun(ctx context.Context, runID string) (*Run, error) {
	return e.store.GetRun(ctx, runID)
}

// execute drives steps from startIdx. resume is delivered only to the
// first step executed, which is the re-entered one on Resume.
func (e *Engine) execute(ctx context.Context, wf *Workflow, run *Run, startIdx int, resume map[string]any) (*Run, error) {
	log := slog.Default()

	var lastOutput map[string]any
	for i := startIdx; i < len(wf.Steps); i++ {
		step := wf.Steps[i]
		run.StepIndex = i
		run.StepID = step.ID

		stepCtx, stepSpan := otel.Tracer("metrika/workflow").Start(ctx, "workflow.step",
			trace.WithAttributes(telemetry.WorkflowAttributes(wf.ID, run.ID, step.ID, string(run.Status))...))

		var stepResume map[string]any
		if i == startIdx {
			stepResume = resume
		}

		result, err := step.Handler(stepCtx, run.State, stepResume)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			run.Status = StatusFailed
			run.Error = err.Error()
			run.UpdatedAt = time.Now()
			if saveErr := e.store.SaveRun(ctx, run); saveErr != nil {
				log.Error("failed to persist failed run",
					slog.String("run_id", run.ID),
					slog.String("error", saveErr.Error()))
			}
			e.metrics.RecordRunTransition(ctx, wf.ID, string(StatusFailed))
			e.metrics.RecordError(ctx, err, "workflow")
			log.Warn("workflow step failed",
				slog.String("workflow_id", wf.ID),
				slog.String("run_id", run.ID),
				slog.String("step_id", step.ID),
				slog.String("error", err.Error()))
			return run, err
		}
		stepSpan.End()

		for k, v := range result.Output {
			run.State[k] = v
		}

		if result.Suspend != nil {
			run.Status = StatusSuspended
			run.SuspendPayload = result.Suspend
			run.UpdatedAt = time.Now()
			if err := e.store.SaveRun(ctx, run); err != nil {
				return nil, errors.New(errors.CodeStorageError, "failed to persist suspended run", err)
			}
			e.metrics.RecordRunTransition(ctx, wf.ID, string(StatusSuspended))
			log.Info("workflow suspended",
				slog.String("workflow_id", wf.ID),
				slog.String("run_id", run.ID),
				slog.String("step_id", step.ID))
			return run, nil
		}

		lastOutput = result.Output
		run.UpdatedAt = time.Now()
		if err := e.store.SaveRun(ctx, run); err != nil {
			return nil, errors.New(errors.CodeStorageError, "failed to checkpoint run", err)
		}
	}

	run.Status = StatusCompleted
	run.Output = lastOutput
	run.UpdatedAt = time.Now()
	if err := e.store.SaveRun(ctx, run); err != nil {
		return nil, errors.New(errors.CodeStorageError, "failed to persist completed run", err)
	}
	e.metrics.RecordRunTransition(ctx, wf.ID, string(StatusCompleted))
	log.Info("workflow completed",
		slog.String("workflow_id", wf.ID),
		slog.String("run_id", run.ID))
	return run, nil
}
