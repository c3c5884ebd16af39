package maestro

import (
	"github.com/rs/zerolog"
)

// Log event names
const (
	// Instance-level events
	EventInstanceStarted   = "instance_started"
	EventInstanceAdvanced  = "instance_advanced"
	EventInstanceResumed   = "instance_resumed"
	EventInstanceCompleted = "instance_completed"
	EventInstanceFailed    = "instance_failed"
	EventInstanceTerminal  = "instance_terminal_shortcircuit"

	// Decision events
	EventDecisionReceived = "decision_received"
	EventDecisionIgnored  = "decision_status_ignored"

	// Definition events
	EventDefinitionLoaded  = "definition_loaded"
	EventDefinitionRebuilt = "definition_rebuilt"
	EventDefinitionSkipped = "definition_skipped"
	EventChecksumReadError = "checksum_read_error"

	// Persistence events
	EventStoreError = "store_error"
)

// LogInstanceStarted logs the creation of a new workflow instance
func LogInstanceStarted(logger zerolog.Logger, instanceID, workflowName, firstStep string) {
	logger.Info().
		Str("event", EventInstanceStarted).
		Str("instance_id", instanceID).
		Str("workflow_name", workflowName).
		Str("first_step", firstStep).
		Msg("Workflow instance started")
}

// LogInstanceAdvanced logs a successful advance transition
func LogInstanceAdvanced(logger zerolog.Logger, instanceID, fromStep, toStep string, status InstanceStatus) {
	logger.Info().
		Str("event", EventInstanceAdvanced).
		Str("instance_id", instanceID).
		Str("from_step", fromStep).
		Str("to_step", toStep).
		Str("status", status.String()).
		Msg("Workflow instance advanced")
}

// LogInstanceResumed logs a successful resume transition
func LogInstanceResumed(logger zerolog.Logger, instanceID, assumedStep, persistedStep, toStep string) {
	logger.Info().
		Str("event", EventInstanceResumed).
		Str("instance_id", instanceID).
		Str("assumed_step", assumedStep).
		Str("persisted_step", persistedStep).
		Str("to_step", toStep).
		Msg("Workflow instance resumed")
}

// LogInstanceCompleted logs an instance entering COMPLETED
func LogInstanceCompleted(logger zerolog.Logger, instanceID string) {
	logger.Info().
		Str("event", EventInstanceCompleted).
		Str("instance_id", instanceID).
		Msg("Workflow instance completed")
}

// LogInstanceFailed logs an instance entering FAILED
func LogInstanceFailed(logger zerolog.Logger, instanceID string, err error) {
	logger.Error().
		Str("event", EventInstanceFailed).
		Str("instance_id", instanceID).
		Err(err).
		Msg("Workflow instance failed")
}

// LogTerminalShortCircuit logs a read-only return for an already-terminal instance
func LogTerminalShortCircuit(logger zerolog.Logger, instanceID string, status InstanceStatus) {
	logger.Info().
		Str("event", EventInstanceTerminal).
		Str("instance_id", instanceID).
		Str("status", status.String()).
		Msg("Instance already terminal, returning final output")
}

// LogDecisionReceived logs the provider's step decision
func LogDecisionReceived(logger zerolog.Logger, instanceID, nextStep string, suggestion InstanceStatus) {
	logger.Info().
		Str("event", EventDecisionReceived).
		Str("instance_id", instanceID).
		Str("next_step", nextStep).
		Str("status_suggestion", suggestion.String()).
		Msg("Decision received")
}

// LogDecisionStatusIgnored logs an unrecognized status suggestion being dropped
func LogDecisionStatusIgnored(logger zerolog.Logger, instanceID string, suggestion InstanceStatus) {
	logger.Warn().
		Str("event", EventDecisionIgnored).
		Str("instance_id", instanceID).
		Str("status_suggestion", suggestion.String()).
		Msg("Ignoring unrecognized status suggestion")
}

// LogDefinitionLoaded logs a definition served from cache or built fresh
func LogDefinitionLoaded(logger zerolog.Logger, workflowName string, steps []string) {
	logger.Info().
		Str("event", EventDefinitionLoaded).
		Str("workflow_name", workflowName).
		Strs("steps", steps).
		Msg("Workflow definition loaded")
}

// LogDefinitionRebuilt logs a cache entry being replaced after a checksum change
func LogDefinitionRebuilt(logger zerolog.Logger, workflowName, checksum string) {
	logger.Debug().
		Str("event", EventDefinitionRebuilt).
		Str("workflow_name", workflowName).
		Str("checksum", checksum).
		Msg("Workflow definition rebuilt")
}

// LogDefinitionSkipped logs a workflow excluded from the cache during the startup scan
func LogDefinitionSkipped(logger zerolog.Logger, workflowName string, err error) {
	logger.Error().
		Str("event", EventDefinitionSkipped).
		Str("workflow_name", workflowName).
		Err(err).
		Msg("Workflow failed validation during startup scan")
}

// LogChecksumReadError logs a file omitted from a checksum computation
func LogChecksumReadError(logger zerolog.Logger, workflowName, file string, err error) {
	logger.Warn().
		Str("event", EventChecksumReadError).
		Str("workflow_name", workflowName).
		Str("file", file).
		Err(err).
		Msg("Could not read file during checksum calculation")
}

// LogStoreError logs errors during persistence operations
func LogStoreError(logger zerolog.Logger, instanceID, operation string, err error) {
	logger.Error().
		Str("event", EventStoreError).
		Str("instance_id", instanceID).
		Str("operation", operation).
		Err(err).
		Msg("Store error")
}

// InstanceLogger creates a logger enriched with instance context
func InstanceLogger(baseLogger zerolog.Logger, instanceID, workflowName string) zerolog.Logger {
	return baseLogger.With().
		Str("instance_id", instanceID).
		Str("workflow_name", workflowName).
		Logger()
}
