// Package audit records hierarchy mutations as operation log entries and
// exports aged entries to object storage.
package audit

import "time"

// Entry is one recorded operation. BusinessKey identifies the affected node
// ("role:42", "permission:oauth2.read"); Description is human readable.
type Entry struct {
	ID          string    `json:"id"`
	Operation   string    `json:"operation"`
	BusinessKey string    `json:"business_key"`
	Description string    `json:"description"`
	ActorID     string    `json:"actor_id"`
	RequestID   string    `json:"request_id"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Operation names recorded by the hierarchy engine.
const (
	OpNodeCreated    = "node.created"
	OpNodeUpdated    = "node.updated"
	OpNodeDeleted    = "node.deleted"
	OpNodeArchived   = "node.archived"
	OpNodeRecovered  = "node.recovered"
	OpNodePurged     = "node.purged"
	OpEdgeAdded      = "edge.added"
	OpEdgeRemoved    = "edge.removed"
	OpEdgeMoved      = "edge.moved"
)
