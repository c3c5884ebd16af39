package maestro

// DefinitionSource serves validated, assembled workflow definitions. The
// concrete implementation is the catalog in the definition package; the
// engine only ever reads through this interface.
type DefinitionSource interface {
	// ListWorkflows returns the names of all workflows currently cached as
	// valid.
	ListWorkflows() []string

	// Load returns the assembled definition for the named workflow,
	// rebuilding it first if the underlying files changed.
	Load(workflowName string) (*Definition, error)

	// Validate loads the named workflow and discards the result, surfacing
	// definition errors without handing the caller the blob.
	Validate(workflowName string) error
}
