// Package engine implements the orchestration state machine that drives a
// workflow instance through start, advance, and resume transitions.
//
// The engine owns WorkflowInstance mutation. It consumes three ports: the
// definition source (read-only), the instance store, and the decision
// provider. COMPLETED and FAILED are terminal; operations on a terminal
// instance short-circuit without side effects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caldermoor/maestro"
)

// Fixed instruction messages used when the definition cannot supply one
const (
	completedMessage         = "Workflow Completed."
	completedFallbackMessage = "Workflow Completed successfully."
	failedMessage            = "Workflow Failed."
)

// recentHistoryLimit caps the history entries handed to the decision provider
const recentHistoryLimit = 20

// Engine coordinates workflow execution across the definition source, the
// instance store, and the decision provider
type Engine struct {
	defs     maestro.DefinitionSource
	store    maestro.InstanceStore
	provider maestro.DecisionProvider
	logger   zerolog.Logger
	locks    *instanceLocks
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a new orchestration engine.
// If no logger is provided, a default stdout logger with Info level is used.
func NewEngine(defs maestro.DefinitionSource, store maestro.InstanceStore, provider maestro.DecisionProvider, opts ...EngineOption) *Engine {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	eng := &Engine{
		defs:     defs,
		store:    store,
		provider: provider,
		logger:   defaultLogger,
		locks:    newInstanceLocks(),
	}

	for _, opt := range opts {
		opt(eng)
	}

	return eng
}

// ListWorkflows returns the names of all workflows the definition source
// currently serves
func (e *Engine) ListWorkflows() []string {
	return e.defs.ListWorkflows()
}

// GetWorkflowStatus returns the persisted state of an instance
func (e *Engine) GetWorkflowStatus(ctx context.Context, instanceID string) (*maestro.WorkflowInstance, error) {
	return e.store.GetInstance(ctx, instanceID)
}

// GetWorkflowHistory returns the append-only history of an instance, oldest
// first. A non-positive limit returns everything.
func (e *Engine) GetWorkflowHistory(ctx context.Context, instanceID string, limit int) ([]*maestro.HistoryEntry, error) {
	return e.store.GetHistory(ctx, instanceID, limit)
}

// StartWorkflow creates a new instance of the named workflow, RUNNING at the
// first step of the definition's canonical order, with the supplied initial
// context. Definition and store errors propagate unchanged; no partial
// instance is created.
func (e *Engine) StartWorkflow(ctx context.Context, workflowName string, initialContext map[string]any) (*maestro.StartResult, error) {
	def, err := e.defs.Load(workflowName)
	if err != nil {
		return nil, err
	}

	firstStep := def.FirstStep()
	if firstStep == "" {
		return nil, fmt.Errorf("workflow %q has no steps defined", workflowName)
	}

	currentContext := maestro.CloneContext(initialContext)
	if currentContext == nil {
		currentContext = map[string]any{}
	}

	now := time.Now().UTC()
	instance := &maestro.WorkflowInstance{
		InstanceID:      uuid.New().String(),
		WorkflowName:    workflowName,
		CurrentStepName: firstStep,
		Status:          maestro.StatusRunning,
		Context:         currentContext,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.CreateInstance(ctx, instance); err != nil {
		return nil, err
	}

	instructions, _ := def.Instructions(firstStep)

	maestro.LogInstanceStarted(e.logger, instance.InstanceID, workflowName, firstStep)

	return &maestro.StartResult{
		InstanceID:     instance.InstanceID,
		NextStep:       maestro.NextStep{StepName: firstStep, Instructions: instructions},
		CurrentContext: maestro.CloneContext(instance.Context),
	}, nil
}

// AdvanceWorkflow advances an instance based on the caller's report on the
// current step. Terminal instances short-circuit: the terminal step identity
// and its fixed instructions are returned with no further side effects.
func (e *Engine) AdvanceWorkflow(ctx context.Context, instanceID string, report *maestro.Report, contextUpdates map[string]any) (*maestro.StepResult, error) {
	unlock := e.locks.lock(instanceID)
	defer unlock()

	return e.transition(ctx, "advance", instanceID, "", report, contextUpdates)
}

// ResumeWorkflow resumes an instance whose caller lost track of its state.
// The history entry records the caller's assumed step with a RESUMING
// outcome, and the decision provider reconciles the assumption against the
// persisted step; the persisted state remains authoritative.
func (e *Engine) ResumeWorkflow(ctx context.Context, instanceID, assumedStep string, report *maestro.Report, contextUpdates map[string]any) (*maestro.StepResult, error) {
	unlock := e.locks.lock(instanceID)
	defer unlock()

	return e.transition(ctx, "resume", instanceID, assumedStep, report, contextUpdates)
}

// transition loads the instance, runs the shared advance/resume flow, and
// applies the failure-containment policy: any error after the instance was
// loaded triggers at most one best-effort FAILED write, and the caller always
// receives the original cause wrapped in an engine error.
func (e *Engine) transition(ctx context.Context, op, instanceID, assumedStep string, report *maestro.Report, contextUpdates map[string]any) (*maestro.StepResult, error) {
	instance, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		// Nothing to flip: the instance could not be loaded at all
		return nil, maestro.NewEngineError(op, instanceID, err)
	}

	result, err := e.run(ctx, op, instance, assumedStep, report, contextUpdates)
	if err != nil {
		e.containFailure(ctx, instanceID, err)
		return nil, maestro.NewEngineError(op, instanceID, err)
	}

	return result, nil
}

// run is the shared advance/resume flow on an already-loaded instance
func (e *Engine) run(ctx context.Context, op string, instance *maestro.WorkflowInstance, assumedStep string, report *maestro.Report, contextUpdates map[string]any) (*maestro.StepResult, error) {
	if instance.Status.IsTerminal() {
		return e.terminalResult(instance), nil
	}

	ilog := maestro.InstanceLogger(e.logger, instance.InstanceID, instance.WorkflowName)

	if report == nil {
		report = &maestro.Report{}
	}

	merged := maestro.MergeContexts(instance.Context, contextUpdates)

	entry := &maestro.HistoryEntry{
		InstanceID:    instance.InstanceID,
		Timestamp:     time.Now().UTC(),
		StepName:      instance.CurrentStepName,
		Report:        report,
		OutcomeStatus: report.Status,
	}
	if op == "resume" {
		entry.StepName = assumedStep
		entry.OutcomeStatus = maestro.OutcomeResuming
	}
	if err := e.store.CreateHistoryEntry(ctx, entry); err != nil {
		return nil, err
	}

	def, err := e.defs.Load(instance.WorkflowName)
	if err != nil {
		return nil, err
	}

	// History is advisory input for the provider; a read failure is not fatal
	history, err := e.store.GetHistory(ctx, instance.InstanceID, recentHistoryLimit)
	if err != nil {
		maestro.LogStoreError(ilog, instance.InstanceID, "get_history", err)
		history = nil
	}

	var decision *maestro.StepDecision
	if op == "resume" {
		decision, err = e.provider.ReconcileAndDetermineNextStep(ctx, def.Blob, instance, assumedStep, report, history)
	} else {
		decision, err = e.provider.DetermineNextStep(ctx, def.Blob, instance, report, history)
	}
	if err != nil {
		return nil, err
	}

	maestro.LogDecisionReceived(ilog, instance.InstanceID, decision.NextStepName, decision.StatusSuggestion)

	// Decision context updates layer on top of the caller's
	merged = maestro.MergeContexts(merged, decision.UpdatedContext)

	updated := e.applyDecision(instance, decision, merged)
	if err := e.store.UpdateInstance(ctx, updated); err != nil {
		return nil, err
	}

	instructions, err := e.resolveInstructions(ctx, def, updated, decision.NextStepName)
	if err != nil {
		return nil, err
	}

	if op == "resume" {
		maestro.LogInstanceResumed(ilog, instance.InstanceID, assumedStep, instance.CurrentStepName, decision.NextStepName)
	} else {
		maestro.LogInstanceAdvanced(ilog, instance.InstanceID, instance.CurrentStepName, decision.NextStepName, updated.Status)
	}
	if updated.Status == maestro.StatusCompleted {
		maestro.LogInstanceCompleted(ilog, instance.InstanceID)
	}

	return &maestro.StepResult{
		InstanceID:     instance.InstanceID,
		NextStep:       maestro.NextStep{StepName: decision.NextStepName, Instructions: instructions},
		CurrentContext: maestro.CloneContext(updated.Context),
	}, nil
}

// terminalResult builds the read-only output for an already-terminal
// instance
func (e *Engine) terminalResult(instance *maestro.WorkflowInstance) *maestro.StepResult {
	stepName := instance.CurrentStepName
	instructions := failedMessage

	if instance.Status == maestro.StatusCompleted {
		stepName = maestro.StepFinish
		instructions = completedMessage
		if def, err := e.defs.Load(instance.WorkflowName); err == nil {
			if instr, ok := def.Instructions(maestro.StepFinish); ok {
				instructions = instr
			}
		}
	}

	maestro.LogTerminalShortCircuit(e.logger, instance.InstanceID, instance.Status)

	return &maestro.StepResult{
		InstanceID:     instance.InstanceID,
		NextStep:       maestro.NextStep{StepName: stepName, Instructions: instructions},
		CurrentContext: maestro.CloneContext(instance.Context),
	}
}

// applyDecision resolves the new status and produces the updated instance.
// Status precedence: a FINISH next step completes the instance
// unconditionally; otherwise a recognized status suggestion is adopted;
// otherwise the status is unchanged. An unrecognized suggestion is ignored
// with a diagnostic.
func (e *Engine) applyDecision(instance *maestro.WorkflowInstance, decision *maestro.StepDecision, mergedContext map[string]any) *maestro.WorkflowInstance {
	newStatus := instance.Status

	if decision.NextStepName == maestro.StepFinish {
		newStatus = maestro.StatusCompleted
	} else if decision.StatusSuggestion != "" {
		if decision.StatusSuggestion.IsValid() {
			newStatus = decision.StatusSuggestion
		} else {
			maestro.LogDecisionStatusIgnored(e.logger, instance.InstanceID, decision.StatusSuggestion)
		}
	}

	now := time.Now().UTC()
	updated := instance.Clone()
	updated.CurrentStepName = decision.NextStepName
	updated.Status = newStatus
	updated.Context = mergedContext
	updated.UpdatedAt = now
	if newStatus.IsTerminal() {
		updated.CompletedAt = &now
	}

	return updated
}

// resolveInstructions looks up the client instructions for the decided step.
// A RUNNING/SUSPENDED instance pointed at a step the definition does not
// contain is a fatal inconsistency: the instance is forced to FAILED
// (best-effort persisted) and the operation fails naming the invalid step.
func (e *Engine) resolveInstructions(ctx context.Context, def *maestro.Definition, instance *maestro.WorkflowInstance, nextStepName string) (string, error) {
	switch instance.Status {
	case maestro.StatusCompleted:
		if instr, ok := def.Instructions(maestro.StepFinish); ok {
			return instr, nil
		}
		return completedFallbackMessage, nil

	case maestro.StatusFailed:
		return failedMessage, nil

	default:
		if instr, ok := def.Instructions(nextStepName); ok {
			return instr, nil
		}

		now := time.Now().UTC()
		instance.Status = maestro.StatusFailed
		instance.CompletedAt = &now
		instance.UpdatedAt = now
		if err := e.store.UpdateInstance(ctx, instance); err != nil {
			maestro.LogStoreError(e.logger, instance.InstanceID, "update_instance_failed_flip", err)
		}

		cause := fmt.Errorf("%w: decision named step %q not present in workflow %q, workflow set to FAILED",
			maestro.ErrInvalidNextStep, nextStepName, instance.WorkflowName)
		maestro.LogInstanceFailed(e.logger, instance.InstanceID, cause)
		return "", &failureRecordedError{err: cause}
	}
}

// failureRecordedError marks errors whose handling already persisted the
// FAILED flip, so containFailure performs no second write
type failureRecordedError struct {
	err error
}

func (e *failureRecordedError) Error() string {
	return e.err.Error()
}

func (e *failureRecordedError) Unwrap() error {
	return e.err
}

// containFailure makes at most one best-effort attempt to flip the instance
// to FAILED after an error in the advance/resume flow. The attempt is skipped
// when the flip was already persisted, when the triggering error came from
// the store (writing again would compound the failure), or when the instance
// cannot be re-loaded. Its own failures are logged, never re-raised.
func (e *Engine) containFailure(ctx context.Context, instanceID string, cause error) {
	var recorded *failureRecordedError
	if errors.As(cause, &recorded) {
		return
	}

	if maestro.IsStoreError(cause) {
		e.logger.Warn().
			Str("instance_id", instanceID).
			Err(cause).
			Msg("Original error came from the store, skipping FAILED status update")
		return
	}

	instance, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		maestro.LogStoreError(e.logger, instanceID, "get_instance_failed_flip", err)
		return
	}
	if instance.Status.IsTerminal() {
		return
	}

	now := time.Now().UTC()
	instance.Status = maestro.StatusFailed
	instance.CompletedAt = &now
	instance.UpdatedAt = now
	if err := e.store.UpdateInstance(ctx, instance); err != nil {
		maestro.LogStoreError(e.logger, instanceID, "update_instance_failed_flip", err)
		return
	}

	maestro.LogInstanceFailed(e.logger, instanceID, cause)
}
