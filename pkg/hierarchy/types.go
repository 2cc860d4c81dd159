package hierarchy

import (
	"strings"
	"time"
)

// Kind identifies which node catalog an engine operates on.
type Kind string

const (
	KindRole       Kind = "role"
	KindPermission Kind = "permission"
)

// Valid reports whether the kind is one of the known catalogs.
func (k Kind) Valid() bool {
	return k == KindRole || k == KindPermission
}

// Table returns the live table name for the kind.
func (k Kind) Table() string {
	return string(k) + "s"
}

// ArchiveTable returns the archive table name for the kind.
func (k Kind) ArchiveTable() string {
	return string(k) + "s_archived"
}

// PathTable returns the closure table name for the kind.
func (k Kind) PathTable() string {
	return string(k) + "_paths"
}

// Node is a role or permission managed by the hierarchy engine.
//
// HasDescendant is derived from the path store at read time and never
// persisted on the node row itself.
type Node struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	HasDescendant bool      `json:"has_descendant"`
	Archived      bool      `json:"archived,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// NodePayload carries caller-supplied fields for create/update operations.
// A nil pointer means "leave unchanged" on update.
type NodePayload struct {
	ID          *int64  `json:"id,omitempty"`
	Code        *string `json:"code,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdatedSnapshot reports the before/after state of an update so callers can
// describe what changed.
type UpdatedSnapshot struct {
	Before *Node `json:"before"`
	After  *Node `json:"after"`
}

// ChangedFields lists the field names that differ between Before and After.
func (s UpdatedSnapshot) ChangedFields() []string {
	if s.Before == nil || s.After == nil {
		return nil
	}
	var changed []string
	if s.Before.Code != s.After.Code {
		changed = append(changed, "code")
	}
	if s.Before.Name != s.After.Name {
		changed = append(changed, "name")
	}
	if s.Before.Description != s.After.Description {
		changed = append(changed, "description")
	}
	return changed
}

// Filter restricts findAll queries. Zero values match everything.
type Filter struct {
	Code string
	Name string
}

// IsZero reports whether the filter matches all nodes.
func (f Filter) IsZero() bool {
	return f.Code == "" && f.Name == ""
}

// PageRequest is a 1-based page selector.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps a page request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	if p.Size > 500 {
		p.Size = 500
	}
	return p
}

// Offset returns the row offset for the request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// Page is a page of results with a total count.
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}

// Slice is a page of results without a total count, only a has-next marker.
// Cheaper than Page for large tables since it skips the COUNT query.
type Slice[T any] struct {
	Items   []T  `json:"items"`
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	HasNext bool `json:"has_next"`
}

// Edge is an ancestor→descendant pair in the closure table. Depth 0 rows are
// node self-loops, depth 1 rows are direct edges, deeper rows are implied
// closure entries.
type Edge struct {
	AncestorID   int64 `json:"ancestor_id"`
	DescendantID int64 `json:"descendant_id"`
	Depth        int64 `json:"depth"`
}

// PurgeJob is a durable request to hard-delete an archived node at RunAt.
type PurgeJob struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	NodeID    int64     `json:"node_id"`
	RunAt     time.Time `json:"run_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PathSeparator joins node codes when rendering ancestor path strings.
const PathSeparator = "/"

// JoinPath renders a chain of codes as a single path string.
func JoinPath(codes []string) string {
	return strings.Join(codes, PathSeparator)
}
