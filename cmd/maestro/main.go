package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/caldermoor/maestro"
	"github.com/caldermoor/maestro/definition"
	"github.com/caldermoor/maestro/engine"
	"github.com/caldermoor/maestro/provider"
	"github.com/caldermoor/maestro/server"
	"github.com/caldermoor/maestro/store"
)

// Shared state used by both transport modes
var (
	cfg      maestro.Config
	wfEngine *engine.Engine
)

// initializeApp wires the catalog, store, provider and engine from config
func initializeApp() {
	cfg = maestro.LoadConfig()

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	catalog := definition.NewCatalog(cfg.DefinitionsDir, definition.WithLogger(log.Logger))

	var instanceStore maestro.InstanceStore
	if cfg.TableName != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS configuration")
		}
		instanceStore = store.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
		log.Info().Str("table", cfg.TableName).Msg("Using DynamoDB instance store")
	} else {
		instanceStore = store.NewMemoryStore()
		log.Info().Msg("Using in-memory instance store")
	}

	var decisionProvider maestro.DecisionProvider
	if cfg.UseStubProvider || cfg.GeminiAPIKey == "" {
		decisionProvider = provider.NewStubProvider()
		log.Info().Msg("Using stub decision provider")
	} else {
		decisionProvider = provider.NewGeminiProvider(cfg.GeminiAPIKey,
			provider.WithModel(cfg.GeminiModel),
			provider.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
			provider.WithLogger(log.Logger),
		)
		log.Info().Str("model", cfg.GeminiModel).Msg("Using Gemini decision provider")
	}

	wfEngine = engine.NewEngine(catalog, instanceStore, decisionProvider, engine.WithLogger(log.Logger))

	log.Info().Strs("workflows", wfEngine.ListWorkflows()).Msg("Orchestration engine initialized")
}

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App) {
	// Health check endpoint
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "maestro",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := app.Group("/api/v1")

	workflows := v1.Group("/workflows")
	workflows.Get("/", handleListWorkflows)
	workflows.Post("/:workflowName/start", handleStartWorkflow)

	instances := v1.Group("/instances")
	instances.Post("/:instanceId/advance", handleAdvanceWorkflow)
	instances.Post("/:instanceId/resume", handleResumeWorkflow)
	instances.Get("/:instanceId", handleGetStatus)
	instances.Get("/:instanceId/history", handleGetHistory)
}

// handleListWorkflows returns the available workflow names
func handleListWorkflows(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"workflows": wfEngine.ListWorkflows(),
	})
}

type startRequest struct {
	Context map[string]any `json:"context"`
}

// handleStartWorkflow starts a new workflow instance
func handleStartWorkflow(c fiber.Ctx) error {
	workflowName := c.Params("workflowName")

	var req startRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	result, err := wfEngine.StartWorkflow(c.Context(), workflowName, req.Context)
	if err != nil {
		log.Error().Err(err).Str("workflow", workflowName).Msg("Failed to start workflow")
		if definition.IsDefinitionError(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start workflow",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

type advanceRequest struct {
	Report         *maestro.Report `json:"report"`
	ContextUpdates map[string]any  `json:"contextUpdates"`
}

// handleAdvanceWorkflow advances an instance based on the caller's report
func handleAdvanceWorkflow(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")

	var req advanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Report == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "report is required",
		})
	}

	result, err := wfEngine.AdvanceWorkflow(c.Context(), instanceID, req.Report, req.ContextUpdates)
	if err != nil {
		return engineErrorResponse(c, instanceID, "advance", err)
	}

	return c.JSON(result)
}

type resumeRequest struct {
	AssumedStep    string          `json:"assumedStep"`
	Report         *maestro.Report `json:"report"`
	ContextUpdates map[string]any  `json:"contextUpdates"`
}

// handleResumeWorkflow resumes an instance from an assumed step
func handleResumeWorkflow(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")

	var req resumeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.AssumedStep == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "assumedStep is required",
		})
	}

	result, err := wfEngine.ResumeWorkflow(c.Context(), instanceID, req.AssumedStep, req.Report, req.ContextUpdates)
	if err != nil {
		return engineErrorResponse(c, instanceID, "resume", err)
	}

	return c.JSON(result)
}

// handleGetStatus returns the persisted instance state
func handleGetStatus(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")

	instance, err := wfEngine.GetWorkflowStatus(c.Context(), instanceID)
	if err != nil {
		return engineErrorResponse(c, instanceID, "status", err)
	}

	return c.JSON(instance)
}

// handleGetHistory returns the instance history
func handleGetHistory(c fiber.Ctx) error {
	instanceID := c.Params("instanceId")
	limit := fiber.Query(c, "limit", 0)

	history, err := wfEngine.GetWorkflowHistory(c.Context(), instanceID, limit)
	if err != nil {
		return engineErrorResponse(c, instanceID, "history", err)
	}

	return c.JSON(fiber.Map{
		"instanceId": instanceID,
		"history":    history,
	})
}

// engineErrorResponse maps engine failures onto HTTP responses
func engineErrorResponse(c fiber.Ctx, instanceID, op string, err error) error {
	log.Error().Err(err).Str("instance_id", instanceID).Str("op", op).Msg("Engine operation failed")

	if errors.Is(err, maestro.ErrInstanceNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Workflow instance not found",
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	initializeApp()

	if *mcpMode {
		srv := server.NewServer(wfEngine, server.WithLogger(log.Logger))
		if err := srv.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("MCP server exited")
		}
		return
	}

	app := fiber.New()
	registerRoutes(app)

	go func() {
		log.Info().Str("address", cfg.HTTPAddr).Msg("Starting HTTP server")
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
