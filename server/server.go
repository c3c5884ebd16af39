// Package server exposes the orchestration engine as MCP tools over stdio
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/caldermoor/maestro"
	"github.com/caldermoor/maestro/engine"
)

// getArgs extracts arguments from request as map[string]any
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// Server wraps the MCP server around the orchestration engine
type Server struct {
	engine    *engine.Engine
	mcpServer *mcpserver.MCPServer
	logger    zerolog.Logger
}

// ServerOption configures the server
type ServerOption func(*Server)

// WithLogger sets a custom logger for the server
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP server exposing the engine's operations as tools
func NewServer(eng *engine.Engine, opts ...ServerOption) *Server {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	s := &Server{
		engine: eng,
		logger: defaultLogger,
	}

	for _, opt := range opts {
		opt(s)
	}

	mcpServer := mcpserver.NewMCPServer(
		"maestro",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.mcpServer = mcpServer

	return s
}

// registerTools adds all MCP tools
func (s *Server) registerTools(mcpServer *mcpserver.MCPServer) {
	listTool := mcp.NewTool("list_workflows",
		mcp.WithDescription("List the names of all available workflow definitions"),
	)
	mcpServer.AddTool(listTool, s.handleListWorkflows)

	startTool := mcp.NewTool("start_workflow",
		mcp.WithDescription("Start a new instance of a named workflow and get the first step's instructions"),
		mcp.WithString("workflow_name",
			mcp.Required(),
			mcp.Description("Name of the workflow definition to start"),
		),
		mcp.WithObject("context",
			mcp.Description("Optional initial key/value context for the instance"),
		),
	)
	mcpServer.AddTool(startTool, s.handleStartWorkflow)

	advanceTool := mcp.NewTool("advance_workflow",
		mcp.WithDescription("Report the outcome of the current step and get the next step's instructions"),
		mcp.WithString("instance_id",
			mcp.Required(),
			mcp.Description("The workflow instance to advance"),
		),
		mcp.WithObject("report",
			mcp.Required(),
			mcp.Description("Report on the step just executed, e.g. {\"status\": \"success\", \"message\": \"...\"}"),
		),
		mcp.WithObject("context_updates",
			mcp.Description("Optional key/value updates merged into the instance context"),
		),
	)
	mcpServer.AddTool(advanceTool, s.handleAdvanceWorkflow)

	resumeTool := mcp.NewTool("resume_workflow",
		mcp.WithDescription("Resume an instance after losing track of its state. The persisted state stays authoritative; the assumed step is reconciled against it."),
		mcp.WithString("instance_id",
			mcp.Required(),
			mcp.Description("The workflow instance to resume"),
		),
		mcp.WithString("assumed_step",
			mcp.Required(),
			mcp.Description("The step the caller believes it was executing"),
		),
		mcp.WithObject("report",
			mcp.Description("Optional report on work done before losing track"),
		),
		mcp.WithObject("context_updates",
			mcp.Description("Optional key/value updates merged into the instance context"),
		),
	)
	mcpServer.AddTool(resumeTool, s.handleResumeWorkflow)

	statusTool := mcp.NewTool("get_workflow_status",
		mcp.WithDescription("Get the persisted state of a workflow instance"),
		mcp.WithString("instance_id",
			mcp.Required(),
			mcp.Description("The workflow instance to inspect"),
		),
	)
	mcpServer.AddTool(statusTool, s.handleGetWorkflowStatus)

	historyTool := mcp.NewTool("get_workflow_history",
		mcp.WithDescription("Get the execution history of a workflow instance, oldest first"),
		mcp.WithString("instance_id",
			mcp.Required(),
			mcp.Description("The workflow instance to inspect"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Optional cap on entries; a positive limit returns the most recent"),
		),
	)
	mcpServer.AddTool(historyTool, s.handleGetWorkflowHistory)
}

// handleListWorkflows returns the available workflow names
func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.engine.ListWorkflows()
	return jsonResult(map[string]any{"workflows": names})
}

// handleStartWorkflow starts a new instance
func (s *Server) handleStartWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	workflowName, ok := args["workflow_name"].(string)
	if !ok || workflowName == "" {
		return mcp.NewToolResultError("workflow_name parameter is required"), nil
	}

	initialContext, _ := args["context"].(map[string]any)

	result, err := s.engine.StartWorkflow(ctx, workflowName, initialContext)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start workflow: %v", err)), nil
	}

	return jsonResult(result)
}

// handleAdvanceWorkflow advances an instance based on the caller's report
func (s *Server) handleAdvanceWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("instance_id parameter is required"), nil
	}

	report, err := decodeReport(args["report"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report: %v", err)), nil
	}
	if report == nil {
		return mcp.NewToolResultError("report parameter is required"), nil
	}

	contextUpdates, _ := args["context_updates"].(map[string]any)

	result, err := s.engine.AdvanceWorkflow(ctx, instanceID, report, contextUpdates)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to advance workflow: %v", err)), nil
	}

	return jsonResult(result)
}

// handleResumeWorkflow resumes an instance from an assumed step
func (s *Server) handleResumeWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("instance_id parameter is required"), nil
	}

	assumedStep, ok := args["assumed_step"].(string)
	if !ok || assumedStep == "" {
		return mcp.NewToolResultError("assumed_step parameter is required"), nil
	}

	report, err := decodeReport(args["report"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report: %v", err)), nil
	}

	contextUpdates, _ := args["context_updates"].(map[string]any)

	result, err := s.engine.ResumeWorkflow(ctx, instanceID, assumedStep, report, contextUpdates)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resume workflow: %v", err)), nil
	}

	return jsonResult(result)
}

// handleGetWorkflowStatus returns the persisted instance state
func (s *Server) handleGetWorkflowStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("instance_id parameter is required"), nil
	}

	instance, err := s.engine.GetWorkflowStatus(ctx, instanceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get workflow status: %v", err)), nil
	}

	return jsonResult(instance)
}

// handleGetWorkflowHistory returns the instance history
func (s *Server) handleGetWorkflowHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	instanceID, ok := args["instance_id"].(string)
	if !ok || instanceID == "" {
		return mcp.NewToolResultError("instance_id parameter is required"), nil
	}

	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	history, err := s.engine.GetWorkflowHistory(ctx, instanceID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get workflow history: %v", err)), nil
	}

	return jsonResult(map[string]any{"history": history})
}

// decodeReport converts the raw tool argument into a Report
func decodeReport(raw any) (*maestro.Report, error) {
	if raw == nil {
		return nil, nil
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("report must be an object")
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	var report maestro.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, err
	}

	return &report, nil
}

// jsonResult renders a value as a JSON tool result
func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// Run starts the MCP server in stdio mode
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().Msg("Starting MCP server in stdio mode")
	return mcpserver.ServeStdio(s.mcpServer)
}
