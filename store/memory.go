package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/caldermoor/maestro"
)

// MemoryStore implements maestro.InstanceStore using in-memory storage
// (for testing and local runs)
type MemoryStore struct {
	instances map[string]*maestro.WorkflowInstance
	history   map[string][]*maestro.HistoryEntry // instanceID -> entries, append order
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory instance store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*maestro.WorkflowInstance),
		history:   make(map[string][]*maestro.HistoryEntry),
	}
}

var _ maestro.InstanceStore = (*MemoryStore)(nil)

// Instance operations

func (s *MemoryStore) CreateInstance(ctx context.Context, instance *maestro.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.InstanceID]; exists {
		return maestro.NewStoreError(maestro.StoreErrCodeQuery, "create_instance",
			fmt.Errorf("workflow instance %s already exists", instance.InstanceID))
	}

	s.instances[instance.InstanceID] = instance.Clone()
	s.history[instance.InstanceID] = nil

	return nil
}

func (s *MemoryStore) GetInstance(ctx context.Context, instanceID string) (*maestro.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, exists := s.instances[instanceID]
	if !exists {
		return nil, maestro.NewStoreError(maestro.StoreErrCodeNotFound, "get_instance",
			fmt.Errorf("%w: %s", maestro.ErrInstanceNotFound, instanceID))
	}

	return instance.Clone(), nil
}

func (s *MemoryStore) UpdateInstance(ctx context.Context, instance *maestro.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.InstanceID]; !exists {
		return maestro.NewStoreError(maestro.StoreErrCodeNotFound, "update_instance",
			fmt.Errorf("%w: %s", maestro.ErrInstanceNotFound, instance.InstanceID))
	}

	s.instances[instance.InstanceID] = instance.Clone()

	return nil
}

// History operations

func (s *MemoryStore) CreateHistoryEntry(ctx context.Context, entry *maestro.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryCopy := *entry
	s.history[entry.InstanceID] = append(s.history[entry.InstanceID], &entryCopy)

	return nil
}

// GetHistory returns history entries oldest first. A positive limit returns
// the most recent entries, still in oldest-first order.
func (s *MemoryStore) GetHistory(ctx context.Context, instanceID string, limit int) ([]*maestro.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[instanceID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	result := make([]*maestro.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		entryCopy := *entry
		result = append(result, &entryCopy)
	}

	return result, nil
}
