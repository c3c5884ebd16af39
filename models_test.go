package maestro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstanceStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusSuspended.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestInstanceStatus_IsValid(t *testing.T) {
	assert.True(t, StatusRunning.IsValid())
	assert.True(t, StatusSuspended.IsValid())
	assert.True(t, StatusCompleted.IsValid())
	assert.True(t, StatusFailed.IsValid())

	assert.False(t, InstanceStatus("PAUSED").IsValid())
	assert.False(t, InstanceStatus("").IsValid())
}

func TestWorkflowInstance_Clone(t *testing.T) {
	completed := time.Now()
	original := &WorkflowInstance{
		InstanceID:      "i-1",
		WorkflowName:    "pipeline",
		CurrentStepName: "gather",
		Status:          StatusRunning,
		Context:         map[string]any{"k": "v"},
		CompletedAt:     &completed,
	}

	cp := original.Clone()
	cp.Context["k"] = "changed"
	cp.CurrentStepName = "process"

	assert.Equal(t, "v", original.Context["k"])
	assert.Equal(t, "gather", original.CurrentStepName)
	assert.Equal(t, original.CompletedAt, cp.CompletedAt)
}

func TestDefinition_FirstStep(t *testing.T) {
	def := &Definition{StepOrder: []string{"gather", "process"}}
	assert.Equal(t, "gather", def.FirstStep())

	empty := &Definition{}
	assert.Equal(t, "", empty.FirstStep())
}

func TestDefinition_Instructions(t *testing.T) {
	def := &Definition{
		Steps: map[string]Step{
			"gather": {Name: "gather", Instructions: "Gather the inputs."},
		},
	}

	instructions, ok := def.Instructions("gather")
	assert.True(t, ok)
	assert.Equal(t, "Gather the inputs.", instructions)

	_, ok = def.Instructions("missing")
	assert.False(t, ok)

	assert.True(t, def.HasStep("gather"))
	assert.False(t, def.HasStep("missing"))
}
