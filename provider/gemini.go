// Package provider implements the decision provider port: a Gemini-backed
// provider for production and a deterministic stub for tests and local runs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldermoor/maestro"
)

const (
	// DefaultBaseURL is the default base URL for the Gemini API
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the model used when none is configured
	DefaultModel = "gemini-2.0-flash"

	// DefaultRetryAfter is the wait before retrying a retryable failure
	DefaultRetryAfter = 2 * time.Second

	// DefaultTimeout bounds a single generateContent call
	DefaultTimeout = 60 * time.Second
)

// stepHeadingPattern extracts step names from the definition blob so the
// response schema can constrain the decision to real steps
var stepHeadingPattern = regexp.MustCompile(`(?m)^## Step: (.+)$`)

// GeminiProvider implements maestro.DecisionProvider against the Gemini
// generateContent REST API. Responses are constrained by a JSON schema whose
// step-name enum is derived from the definition blob.
type GeminiProvider struct {
	// Configuration
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client

	// One retry on retryable failures (HTTP 429 and 5xx)
	RetryAfter time.Duration

	logger zerolog.Logger
}

// GeminiOption configures the provider
type GeminiOption func(*GeminiProvider)

// WithLogger sets a custom logger for the provider
func WithLogger(logger zerolog.Logger) GeminiOption {
	return func(p *GeminiProvider) {
		p.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(p *GeminiProvider) {
		p.HTTPClient = client
	}
}

// WithBaseURL overrides the API base URL
func WithBaseURL(baseURL string) GeminiOption {
	return func(p *GeminiProvider) {
		p.BaseURL = baseURL
	}
}

// WithModel sets the Gemini model name
func WithModel(model string) GeminiOption {
	return func(p *GeminiProvider) {
		p.Model = model
	}
}

// NewGeminiProvider creates a new Gemini-backed decision provider
func NewGeminiProvider(apiKey string, opts ...GeminiOption) *GeminiProvider {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	p := &GeminiProvider{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		Model:   DefaultModel,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		RetryAfter: DefaultRetryAfter,
		logger:     defaultLogger,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

var _ maestro.DecisionProvider = (*GeminiProvider)(nil)

// Request and response shapes for the generateContent API

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64        `json:"temperature"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *promptFeedback   `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// rawDecision is the schema-constrained shape the model produces. Context
// updates arrive as key/value pairs because the schema cannot express a
// free-form object.
type rawDecision struct {
	NextStepName     string `json:"nextStepName"`
	StatusSuggestion string `json:"statusSuggestion,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
	UpdatedContext   []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"updatedContext,omitempty"`
}

const systemPreamble = `You are a workflow orchestrator. You are given a workflow definition, the current state of one running instance, and the client's report on the step it just executed. Decide the single next step. Respond only with the requested JSON.`

// DetermineFirstStep picks the opening step for a brand-new instance
func (p *GeminiProvider) DetermineFirstStep(ctx context.Context, definitionBlob string) (*maestro.StepDecision, error) {
	prompt := fmt.Sprintf("Workflow definition:\n\n%s\n\nTask: name the first step a new instance of this workflow should execute.", definitionBlob)
	return p.decide(ctx, definitionBlob, prompt)
}

// DetermineNextStep picks the next step from the current state and the
// caller's report
func (p *GeminiProvider) DetermineNextStep(ctx context.Context, definitionBlob string, current *maestro.WorkflowInstance, report *maestro.Report, history []*maestro.HistoryEntry) (*maestro.StepDecision, error) {
	prompt := p.buildPrompt(definitionBlob, current, report, history,
		fmt.Sprintf("Task: the client reported on step %q. Decide the next step.", current.CurrentStepName))
	return p.decide(ctx, definitionBlob, prompt)
}

// ReconcileAndDetermineNextStep reconciles the caller's assumed step against
// the persisted state before picking the next step
func (p *GeminiProvider) ReconcileAndDetermineNextStep(ctx context.Context, definitionBlob string, persisted *maestro.WorkflowInstance, assumedStep string, report *maestro.Report, history []*maestro.HistoryEntry) (*maestro.StepDecision, error) {
	prompt := p.buildPrompt(definitionBlob, persisted, report, history,
		fmt.Sprintf("Task: the client is resuming and believes it was on step %q, while the persisted state says step %q. The persisted state is authoritative. Reconcile and decide the next step.", assumedStep, persisted.CurrentStepName))
	return p.decide(ctx, definitionBlob, prompt)
}

func (p *GeminiProvider) buildPrompt(definitionBlob string, instance *maestro.WorkflowInstance, report *maestro.Report, history []*maestro.HistoryEntry, task string) string {
	var buf bytes.Buffer

	buf.WriteString("Workflow definition:\n\n")
	buf.WriteString(definitionBlob)

	buf.WriteString("\n\nCurrent instance state:\n")
	stateJSON, _ := json.MarshalIndent(instance, "", "  ")
	buf.Write(stateJSON)

	if report != nil {
		buf.WriteString("\n\nClient report:\n")
		reportJSON, _ := json.MarshalIndent(report, "", "  ")
		buf.Write(reportJSON)
	}

	if len(history) > 0 {
		buf.WriteString("\n\nRecent history (oldest first):\n")
		historyJSON, _ := json.MarshalIndent(history, "", "  ")
		buf.Write(historyJSON)
	}

	buf.WriteString("\n\n")
	buf.WriteString(task)

	return buf.String()
}

// decide performs one schema-constrained generateContent call, retrying once
// on retryable failures
func (p *GeminiProvider) decide(ctx context.Context, definitionBlob, prompt string) (*maestro.StepDecision, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemPreamble}},
		},
		GenerationConfig: &generationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
			ResponseSchema:   decisionSchema(definitionBlob),
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "failed to marshal request",
			Err:     err,
		}
	}

	body, err := p.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	return p.parseDecision(body)
}

func (p *GeminiProvider) post(ctx context.Context, payload []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", p.BaseURL, p.Model)

	var lastErr error
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.RetryAfter):
			case <-ctx.Done():
				return nil, &maestro.ProviderError{
					Code:    maestro.ProviderErrCodeTimeout,
					Message: "request cancelled while waiting to retry",
					Err:     ctx.Err(),
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, &maestro.ProviderError{
				Code:    maestro.ProviderErrCodeAPI,
				Message: "failed to build request",
				Err:     err,
			}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", p.APIKey)

		resp, err := p.HTTPClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &maestro.ProviderError{
					Code:    maestro.ProviderErrCodeTimeout,
					Message: "decision request timed out",
					Err:     err,
				}
			}
			lastErr = &maestro.ProviderError{
				Code:    maestro.ProviderErrCodeAPI,
				Message: "decision request failed",
				Err:     err,
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = &maestro.ProviderError{
				Code:    maestro.ProviderErrCodeAPI,
				Message: "failed to read response body",
				Err:     readErr,
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		apiErr := &maestro.ProviderError{
			Code:       maestro.ProviderErrCodeAPI,
			Message:    fmt.Sprintf("Gemini API returned %s", http.StatusText(resp.StatusCode)),
			StatusCode: resp.StatusCode,
			Raw:        string(body),
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			p.logger.Warn().
				Int("status_code", resp.StatusCode).
				Int("attempt", attempt+1).
				Msg("Retryable Gemini API failure")
			lastErr = apiErr
			continue
		}

		return nil, apiErr
	}

	return nil, lastErr
}

func (p *GeminiProvider) parseDecision(body []byte) (*maestro.StepDecision, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "response is not valid JSON",
			Raw:     string(body),
			Err:     err,
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodePolicyRejection,
			Message: fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
			Raw:     string(body),
		}
	}

	if len(resp.Candidates) == 0 {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "response contains no candidates",
			Raw:     string(body),
		}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodePolicyRejection,
			Message: "candidate blocked by safety filter",
			Raw:     string(body),
		}
	}

	if len(candidate.Content.Parts) == 0 {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "candidate contains no content",
			Raw:     string(body),
		}
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(candidate.Content.Parts[0].Text), &raw); err != nil {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "decision payload is not valid JSON",
			Raw:     candidate.Content.Parts[0].Text,
			Err:     err,
		}
	}

	if raw.NextStepName == "" {
		return nil, &maestro.ProviderError{
			Code:    maestro.ProviderErrCodeInvalidResponse,
			Message: "decision is missing nextStepName",
			Raw:     candidate.Content.Parts[0].Text,
		}
	}

	decision := &maestro.StepDecision{
		NextStepName:     raw.NextStepName,
		StatusSuggestion: maestro.InstanceStatus(raw.StatusSuggestion),
		Reasoning:        raw.Reasoning,
	}
	if len(raw.UpdatedContext) > 0 {
		decision.UpdatedContext = make(map[string]any, len(raw.UpdatedContext))
		for _, pair := range raw.UpdatedContext {
			decision.UpdatedContext[pair.Key] = pair.Value
		}
	}

	return decision, nil
}

// decisionSchema builds the response schema for one call, constraining the
// next step to the blob's steps plus the reserved terminators
func decisionSchema(definitionBlob string) map[string]any {
	stepNames := []string{maestro.StepFinish, maestro.StepFailed}
	for _, match := range stepHeadingPattern.FindAllStringSubmatch(definitionBlob, -1) {
		stepNames = append(stepNames, match[1])
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"nextStepName": map[string]any{
				"type": "string",
				"enum": stepNames,
			},
			"statusSuggestion": map[string]any{
				"type": "string",
				"enum": []string{"", "RUNNING", "SUSPENDED", "COMPLETED", "FAILED"},
			},
			"reasoning": map[string]any{
				"type": "string",
			},
			"updatedContext": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"key":   map[string]any{"type": "string"},
						"value": map[string]any{"type": "string"},
					},
					"required": []string{"key", "value"},
				},
			},
		},
		"required": []string{"nextStepName"},
	}
}
