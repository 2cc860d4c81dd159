package hierarchy

import (
	"context"
	"time"
)

// NodeStore is durable storage for live and archived node rows.
//
// Implementations enforce id/code uniqueness across the live and archive
// tables together: a code held by an archived row may not be reused until the
// archive row is purged.
//
// Mutations that detach a node from the hierarchy (Delete, MoveToArchive,
// PurgeArchived) must remove the node's closure rows in the same transaction
// so a crash can never leave a dangling edge.
type NodeStore interface {
	// Create persists a new node and assigns its id when the payload carries
	// none, inserting the node's depth-0 self row in the closure table within
	// the same transaction. Fails with ErrDuplicateCode/ErrDuplicateID when
	// the code or id is already taken by a live or archived row.
	Create(ctx context.Context, node *Node) error

	// Update replaces the row by id. When the code changed it re-validates
	// uniqueness against both tables first.
	Update(ctx context.Context, node *Node) error

	// Delete removes a live node, its closure rows, and any archive row with
	// the same id. Fails with ErrNotFound when no live row exists.
	Delete(ctx context.Context, id int64) error

	FindByID(ctx context.Context, id int64) (*Node, error)
	FindByCode(ctx context.Context, code string) (*Node, error)
	FindAllByID(ctx context.Context, ids []int64) ([]*Node, error)
	FindByCodeIn(ctx context.Context, codes []string) ([]*Node, error)

	FindAll(ctx context.Context, filter Filter, page PageRequest) (Page[*Node], error)
	FindAllSlice(ctx context.Context, filter Filter, page PageRequest) (Slice[*Node], error)
	FindArchivedAll(ctx context.Context, filter Filter, page PageRequest) (Page[*Node], error)

	// MoveToArchive copies the live row into the archive table with
	// archived=true, removes the live row, and removes the node's closure
	// rows, all in one transaction.
	MoveToArchive(ctx context.Context, id int64) error

	// RestoreFromArchive moves an archived row back to the live table with
	// archived=false and returns it. Closure rows are NOT restored.
	RestoreFromArchive(ctx context.Context, id int64) (*Node, error)

	// PurgeArchived hard-deletes an archive row and any residual closure
	// rows. Purging an id with no archive row is a no-op.
	PurgeArchived(ctx context.Context, id int64) error

	ExistsByID(ctx context.Context, id int64) (bool, error)
	// ExistsByCode checks the live and archive tables together.
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// PathStore maintains the transitive closure of the ancestor/descendant
// relation. Every node has a depth-0 self row; direct edges are depth 1.
type PathStore interface {
	// AddEdge inserts the direct pair and backfills the closure for every
	// existing ancestor of ancestorID crossed with every existing descendant
	// of descendantID, in one transaction. Fails with ErrSelfReferential,
	// ErrCycleDetected, or ErrEdgeExists.
	AddEdge(ctx context.Context, ancestorID, descendantID int64) error

	// RemoveEdge deletes the direct pair and prunes closure rows no longer
	// justified by any chain of direct edges.
	RemoveEdge(ctx context.Context, ancestorID, descendantID int64) error

	// Move atomically re-parents descendantID from originalAncestorID to
	// targetAncestorID. If the add half fails validation nothing is applied.
	Move(ctx context.Context, originalAncestorID, targetAncestorID, descendantID int64) error

	FindDescendants(ctx context.Context, ancestorID int64, page PageRequest) (Page[int64], error)
	FindAncestors(ctx context.Context, descendantID int64) ([]int64, error)
	// FindDirectAncestors returns only depth-1 parents, used to walk chains
	// when rendering ancestor path strings.
	FindDirectAncestors(ctx context.Context, descendantID int64) ([]int64, error)
	FindDirectDescendants(ctx context.Context, ancestorID int64, page PageRequest) (Page[int64], error)
	FindRoots(ctx context.Context, page PageRequest) (Page[int64], error)

	// ExistsDescendant is a cheap probe used to populate Node.HasDescendant.
	ExistsDescendant(ctx context.Context, nodeID int64) (bool, error)
	// FindAncestorIDsWithDescendants is the batch variant for list views: it
	// returns the subset of ids that have at least one descendant.
	FindAncestorIDsWithDescendants(ctx context.Context, ids []int64) (map[int64]bool, error)

	// DeleteAllInvolving removes every row where id appears as ancestor or
	// descendant, including its self row.
	DeleteAllInvolving(ctx context.Context, id int64) error
}

// NodeCache mirrors node rows for fast reads. Misses return (nil, nil).
// The only mutation is delete-on-write; entries are never updated in place.
type NodeCache interface {
	Get(ctx context.Context, id int64) (*Node, error)
	GetByCode(ctx context.Context, code string) (*Node, error)
	Set(ctx context.Context, node *Node) error
	Delete(ctx context.Context, id int64, code string) error
}

// PurgeScheduler registers delayed hard-delete jobs for archived nodes. Jobs
// must survive process restarts.
type PurgeScheduler interface {
	ScheduleHardDelete(ctx context.Context, kind Kind, nodeID int64, after time.Duration) error
	// CancelHardDelete drops the pending job for the node; canceling a node
	// with no pending job is a no-op.
	CancelHardDelete(ctx context.Context, kind Kind, nodeID int64) error
}

// Translator rewrites a node's display name for the caller's locale at read
// time. Implementations return the original name when no translation exists.
type Translator interface {
	Translate(ctx context.Context, locale, code, name string) string
}

// Recorder receives fire-and-forget operation events. Delivery failure must
// never fail the primary operation.
type Recorder interface {
	Record(ctx context.Context, operation, businessKey, description string)
}
