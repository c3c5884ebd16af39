package maestro

import "context"

// DecisionProvider is the port to the external decision service that picks
// the next step of a workflow. Implementations fail with *ProviderError; the
// engine treats every provider failure uniformly.
type DecisionProvider interface {
	// DetermineFirstStep picks the opening step for a brand-new instance.
	// The engine normally selects the definition's first step itself; this
	// operation exists for providers that want to override that choice.
	DetermineFirstStep(ctx context.Context, definitionBlob string) (*StepDecision, error)

	// DetermineNextStep picks the next step given the current state and the
	// caller's report on the previous step.
	DetermineNextStep(ctx context.Context, definitionBlob string, current *WorkflowInstance, report *Report, history []*HistoryEntry) (*StepDecision, error)

	// ReconcileAndDetermineNextStep reconciles the caller's assumed step
	// against the persisted state before picking the next step. The persisted
	// state is authoritative; the assumption is auxiliary information.
	ReconcileAndDetermineNextStep(ctx context.Context, definitionBlob string, persisted *WorkflowInstance, assumedStep string, report *Report, history []*HistoryEntry) (*StepDecision, error)
}
