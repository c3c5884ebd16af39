package provider

import (
	"context"
	"fmt"

	"github.com/caldermoor/maestro"
)

// StubProvider is a deterministic maestro.DecisionProvider for tests and
// local runs without an API key. By default it walks the definition blob's
// step order and finishes after the last step; a DecideFunc or a scripted
// decision queue overrides that.
type StubProvider struct {
	// DecideFunc, when set, answers every call
	DecideFunc func(definitionBlob string, current *maestro.WorkflowInstance, report *maestro.Report) (*maestro.StepDecision, error)

	// Decisions are consumed in order before the default behavior applies
	Decisions []*maestro.StepDecision

	// Err, when set, fails every call
	Err error

	calls int
}

// NewStubProvider creates a stub that walks the blob's step order
func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

var _ maestro.DecisionProvider = (*StubProvider)(nil)

// Calls returns how many decisions the stub has been asked for
func (s *StubProvider) Calls() int {
	return s.calls
}

// DetermineFirstStep returns the blob's first step
func (s *StubProvider) DetermineFirstStep(ctx context.Context, definitionBlob string) (*maestro.StepDecision, error) {
	return s.next(definitionBlob, nil, nil)
}

// DetermineNextStep returns the step after the instance's current step in
// the blob's order, or FINISH past the end
func (s *StubProvider) DetermineNextStep(ctx context.Context, definitionBlob string, current *maestro.WorkflowInstance, report *maestro.Report, history []*maestro.HistoryEntry) (*maestro.StepDecision, error) {
	return s.next(definitionBlob, current, report)
}

// ReconcileAndDetermineNextStep behaves like DetermineNextStep using the
// persisted state, which is authoritative
func (s *StubProvider) ReconcileAndDetermineNextStep(ctx context.Context, definitionBlob string, persisted *maestro.WorkflowInstance, assumedStep string, report *maestro.Report, history []*maestro.HistoryEntry) (*maestro.StepDecision, error) {
	return s.next(definitionBlob, persisted, report)
}

func (s *StubProvider) next(definitionBlob string, current *maestro.WorkflowInstance, report *maestro.Report) (*maestro.StepDecision, error) {
	s.calls++

	if s.Err != nil {
		return nil, s.Err
	}

	if s.DecideFunc != nil {
		return s.DecideFunc(definitionBlob, current, report)
	}

	if len(s.Decisions) > 0 {
		decision := s.Decisions[0]
		s.Decisions = s.Decisions[1:]
		return decision, nil
	}

	steps := stepHeadingPattern.FindAllStringSubmatch(definitionBlob, -1)
	if len(steps) == 0 {
		return nil, maestro.NewProviderError(maestro.ProviderErrCodeInvalidResponse, "definition blob contains no steps")
	}

	if current == nil {
		return &maestro.StepDecision{NextStepName: steps[0][1]}, nil
	}

	for i, step := range steps {
		if step[1] == current.CurrentStepName {
			if i+1 < len(steps) {
				return &maestro.StepDecision{NextStepName: steps[i+1][1]}, nil
			}
			return &maestro.StepDecision{NextStepName: maestro.StepFinish}, nil
		}
	}

	return nil, maestro.NewProviderError(maestro.ProviderErrCodeInvalidResponse,
		fmt.Sprintf("current step %q not found in definition blob", current.CurrentStepName))
}
