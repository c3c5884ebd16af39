package maestro

import "context"

// InstanceStore defines the persistence port for workflow instances and
// their history. It is defined here, in the root package, so that the engine
// and the store implementations can share it without import cycles.
type InstanceStore interface {
	// Instances
	CreateInstance(ctx context.Context, instance *WorkflowInstance) error
	GetInstance(ctx context.Context, instanceID string) (*WorkflowInstance, error)
	UpdateInstance(ctx context.Context, instance *WorkflowInstance) error

	// History (append-only)
	CreateHistoryEntry(ctx context.Context, entry *HistoryEntry) error
	GetHistory(ctx context.Context, instanceID string, limit int) ([]*HistoryEntry, error)
}
