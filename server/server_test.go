package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldermoor/maestro"
	"github.com/caldermoor/maestro/definition"
	"github.com/caldermoor/maestro/engine"
	"github.com/caldermoor/maestro/provider"
	"github.com/caldermoor/maestro/store"
)

type staticDefs struct {
	defs map[string]*maestro.Definition
}

func (s *staticDefs) ListWorkflows() []string {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	return names
}

func (s *staticDefs) Load(workflowName string) (*maestro.Definition, error) {
	def, ok := s.defs[workflowName]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowName, definition.ErrNotFound)
	}
	return def, nil
}

func (s *staticDefs) Validate(workflowName string) error {
	_, err := s.Load(workflowName)
	return err
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	defs := &staticDefs{
		defs: map[string]*maestro.Definition{
			"pipeline": {
				Name:      "pipeline",
				StepOrder: []string{"gather", "process"},
				Steps: map[string]maestro.Step{
					"gather":  {Name: "gather", Instructions: "Gather the inputs."},
					"process": {Name: "process", Instructions: "Process the data."},
				},
				Blob: "# Pipeline\n\n---\n\n## Step: gather\n\nbody\n\n---\n\n## Step: process\n\nbody",
			},
		},
	}

	eng := engine.NewEngine(defs, store.NewMemoryStore(), provider.NewStubProvider(),
		engine.WithLogger(zerolog.Nop()))

	return NewServer(eng, WithLogger(zerolog.Nop()))
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleListWorkflows(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleListWorkflows(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Workflows []string `json:"workflows"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Equal(t, []string{"pipeline"}, payload.Workflows)
}

func TestHandleStartWorkflow(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStartWorkflow(context.Background(), toolRequest(map[string]any{
		"workflow_name": "pipeline",
		"context":       map[string]any{"repo": "demo"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var start maestro.StartResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &start))
	assert.NotEmpty(t, start.InstanceID)
	assert.Equal(t, "gather", start.NextStep.StepName)
	assert.Equal(t, "Gather the inputs.", start.NextStep.Instructions)
	assert.Equal(t, map[string]any{"repo": "demo"}, start.CurrentContext)
}

func TestHandleStartWorkflow_MissingName(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStartWorkflow(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAdvanceWorkflow(t *testing.T) {
	s := newTestServer(t)

	started, err := s.handleStartWorkflow(context.Background(), toolRequest(map[string]any{
		"workflow_name": "pipeline",
	}))
	require.NoError(t, err)

	var start maestro.StartResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, started)), &start))

	result, err := s.handleAdvanceWorkflow(context.Background(), toolRequest(map[string]any{
		"instance_id": start.InstanceID,
		"report":      map[string]any{"status": "success"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var step maestro.StepResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &step))
	assert.Equal(t, "process", step.NextStep.StepName)
}

func TestHandleAdvanceWorkflow_MissingReport(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleAdvanceWorkflow(context.Background(), toolRequest(map[string]any{
		"instance_id": "i-1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetWorkflowStatus_UnknownInstance(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetWorkflowStatus(context.Background(), toolRequest(map[string]any{
		"instance_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDecodeReport(t *testing.T) {
	report, err := decodeReport(map[string]any{
		"status":  "success",
		"message": "done",
		"details": map[string]any{"files": float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, "done", report.Message)
	assert.Equal(t, float64(3), report.Details["files"])
}

func TestDecodeReport_Nil(t *testing.T) {
	report, err := decodeReport(nil)
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestDecodeReport_NotAnObject(t *testing.T) {
	_, err := decodeReport("success")
	require.Error(t, err)
}
