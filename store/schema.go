package store

import (
	"fmt"
	"time"
)

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrEntityType = "entity_type"

	// Entity types
	EntityTypeInstance = "WorkflowInstance"
	EntityTypeHistory  = "HistoryEntry"
)

// historyTimeFormat is RFC3339 with fixed-width nanoseconds so that history
// sort keys order lexicographically
const historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Key builders for single-table design

// WorkflowInstance keys: PK=INSTANCE#{instanceID}, SK=META
func instancePK(instanceID string) string {
	return fmt.Sprintf("INSTANCE#%s", instanceID)
}

func instanceSK() string {
	return "META"
}

// HistoryEntry keys: PK=INSTANCE#{instanceID}, SK=HIST#{timestamp}#{seq}
func historyPK(instanceID string) string {
	return fmt.Sprintf("INSTANCE#%s", instanceID)
}

func historySK(timestamp time.Time, seq uint64) string {
	return fmt.Sprintf("HIST#%s#%08d", timestamp.UTC().Format(historyTimeFormat), seq)
}

// Prefix for range queries
func historyPrefix() string {
	return "HIST#"
}
