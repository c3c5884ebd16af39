package maestro

import (
	"time"
)

// InstanceStatus represents the lifecycle state of a workflow instance
type InstanceStatus string

const (
	StatusRunning   InstanceStatus = "RUNNING"
	StatusSuspended InstanceStatus = "SUSPENDED"
	StatusCompleted InstanceStatus = "COMPLETED"
	StatusFailed    InstanceStatus = "FAILED"
)

// IsTerminal returns true if the status is a final state
func (s InstanceStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the status is one of the four recognized values
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusRunning, StatusSuspended, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// String returns the string representation
func (s InstanceStatus) String() string {
	return string(s)
}

// Reserved step names. Neither is backed by a step file; the decision provider
// uses them to signal termination.
const (
	StepFinish = "FINISH"
	StepFailed = "FAILED"
)

// OutcomeResuming is the history outcome label recorded for resume attempts
const OutcomeResuming = "RESUMING"

// WorkflowInstance is one execution of a workflow definition
type WorkflowInstance struct {
	// Identity
	InstanceID   string `json:"instanceId" dynamodbav:"instance_id"`
	WorkflowName string `json:"workflowName" dynamodbav:"workflow_name"`

	// State
	CurrentStepName string         `json:"currentStepName" dynamodbav:"current_step_name"`
	Status          InstanceStatus `json:"status" dynamodbav:"status"`

	// Accumulated key/value context, carried across steps
	Context map[string]any `json:"context,omitempty" dynamodbav:"context,omitempty"`

	// Timing
	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
	CompletedAt *time.Time `json:"completedAt,omitempty" dynamodbav:"completed_at,omitempty"`
}

// Clone returns a shallow copy with its own context map
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	cp := *w
	cp.Context = CloneContext(w.Context)
	return &cp
}

// HistoryEntry is an append-only record of a reported event for an instance
type HistoryEntry struct {
	InstanceID string    `json:"instanceId" dynamodbav:"instance_id"`
	Timestamp  time.Time `json:"timestamp" dynamodbav:"timestamp"`

	// The step being reported on, or the assumed step for resume attempts
	StepName string `json:"stepName" dynamodbav:"step_name"`

	// The caller's raw report and the outcome label derived from it
	Report        *Report `json:"report,omitempty" dynamodbav:"report,omitempty"`
	OutcomeStatus string  `json:"outcomeStatus,omitempty" dynamodbav:"outcome_status,omitempty"`

	// The step the orchestrator decided next, when known at write time
	DeterminedNextStep string `json:"determinedNextStep,omitempty" dynamodbav:"determined_next_step,omitempty"`
}

// Report is the caller's account of what happened during the previous step
type Report struct {
	StepID  string         `json:"stepId,omitempty" dynamodbav:"step_id,omitempty"`
	Status  string         `json:"status" dynamodbav:"status"`
	Result  any            `json:"result,omitempty" dynamodbav:"result,omitempty"`
	Details map[string]any `json:"details,omitempty" dynamodbav:"details,omitempty"`
	Message string         `json:"message,omitempty" dynamodbav:"message,omitempty"`
	Error   string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// StepDecision is the decision provider's answer: where to go next
type StepDecision struct {
	// Required. Either a step name from the definition or FINISH/FAILED.
	NextStepName string `json:"nextStepName"`

	// Merged on top of the instance context, never replaces it wholesale
	UpdatedContext map[string]any `json:"updatedContext,omitempty"`

	// Optional status suggestion; ignored with a diagnostic when unrecognized
	StatusSuggestion InstanceStatus `json:"statusSuggestion,omitempty"`

	// Diagnostic only
	Reasoning string `json:"reasoning,omitempty"`
}

// Step is one named unit of work within a workflow definition
type Step struct {
	Name         string `json:"name"`
	Guidance     string `json:"guidance"`
	Instructions string `json:"instructions"`
	FullText     string `json:"fullText"`
}

// Definition is an assembled, validated workflow definition. It is an
// immutable snapshot: the catalog replaces it wholesale on rebuild.
type Definition struct {
	Name      string          `json:"name"`
	StepOrder []string        `json:"stepOrder"`
	Steps     map[string]Step `json:"steps"`
	Blob      string          `json:"-"`
	Checksum  string          `json:"checksum"`
}

// FirstStep returns the first step of the canonical order
func (d *Definition) FirstStep() string {
	if len(d.StepOrder) == 0 {
		return ""
	}
	return d.StepOrder[0]
}

// Instructions returns the client instructions for a step, and whether the
// step exists in the definition
func (d *Definition) Instructions(stepName string) (string, bool) {
	step, ok := d.Steps[stepName]
	if !ok {
		return "", false
	}
	return step.Instructions, true
}

// HasStep reports whether the definition contains the named step
func (d *Definition) HasStep(stepName string) bool {
	_, ok := d.Steps[stepName]
	return ok
}

// NextStep describes the step the caller should execute next
type NextStep struct {
	StepName     string `json:"stepName"`
	Instructions string `json:"instructions"`
}

// StartResult is returned by Engine.StartWorkflow
type StartResult struct {
	InstanceID     string         `json:"instanceId"`
	NextStep       NextStep       `json:"nextStep"`
	CurrentContext map[string]any `json:"currentContext"`
}

// StepResult is returned by Engine.AdvanceWorkflow and Engine.ResumeWorkflow
type StepResult struct {
	InstanceID     string         `json:"instanceId"`
	NextStep       NextStep       `json:"nextStep"`
	CurrentContext map[string]any `json:"currentContext"`
}
