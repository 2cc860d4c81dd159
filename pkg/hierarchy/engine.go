package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Engine orchestrates one kind's node catalog: store writes, closure
// maintenance, cache coherence, archival and operation recording. One engine
// instance serves one Kind.
//
// Cache policy is delete-on-write: every mutation invalidates the touched
// entries and the next read repopulates them. Entries are never updated in
// place, so a concurrent reader can see a stale value but never a partial
// one.
type Engine struct {
	kind       Kind
	nodes      NodeStore
	paths      PathStore
	cache      NodeCache
	scheduler  PurgeScheduler
	translator Translator
	recorder   Recorder
	logger     *observability.Logger
	metrics    *observability.Metrics
	retention  time.Duration

	group singleflight.Group
}

// EngineOptions wires an engine's dependencies. Cache, Translator and
// Recorder are optional; the engine degrades gracefully without them.
type EngineOptions struct {
	Nodes      NodeStore
	Paths      PathStore
	Cache      NodeCache
	Scheduler  PurgeScheduler
	Translator Translator
	Recorder   Recorder
	Logger     *observability.Logger
	Metrics    *observability.Metrics

	// Retention is how long archived nodes survive before their scheduled
	// hard delete.
	Retention time.Duration
}

// NewEngine creates an engine for the given kind
func NewEngine(kind Kind, opts EngineOptions) (*Engine, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid kind %q", kind)
	}
	if opts.Nodes == nil || opts.Paths == nil {
		return nil, fmt.Errorf("node and path stores are required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("purge scheduler is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}

	return &Engine{
		kind:       kind,
		nodes:      opts.Nodes,
		paths:      opts.Paths,
		cache:      opts.Cache,
		scheduler:  opts.Scheduler,
		translator: opts.Translator,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		retention:  opts.Retention,
	}, nil
}

// Kind returns the catalog this engine serves.
func (e *Engine) Kind() Kind {
	return e.kind
}

// AddNode validates and persists a new node, returning it with its assigned
// id. Nothing is cached yet for a new node, so there is no cache interaction.
func (e *Engine) AddNode(ctx context.Context, payload NodePayload) (node *Node, err error) {
	defer e.observe("addNode", time.Now(), &err)

	node = &Node{}
	if payload.ID != nil {
		node.ID = *payload.ID
	}
	if payload.Code != nil {
		node.Code = *payload.Code
	}
	if payload.Name != nil {
		node.Name = *payload.Name
	}
	if payload.Description != nil {
		node.Description = *payload.Description
	}

	if err = e.nodes.Create(ctx, node); err != nil {
		return nil, err
	}

	e.record(ctx, audit.OpNodeCreated, node.ID, fmt.Sprintf("created %s %q", e.kind, node.Code))
	return node, nil
}

// UpdateNode applies the payload to the node and reports the before/after
// snapshot. Unset payload fields are left unchanged.
func (e *Engine) UpdateNode(ctx context.Context, id int64, payload NodePayload) (snapshot UpdatedSnapshot, err error) {
	defer e.observe("updateNode", time.Now(), &err)

	if id == 0 {
		return snapshot, ErrPrimaryKeyRequired
	}

	before, err := e.nodes.FindByID(ctx, id)
	if err != nil {
		return snapshot, err
	}

	after := before.Clone()
	if payload.Code != nil {
		after.Code = *payload.Code
	}
	if payload.Name != nil {
		after.Name = *payload.Name
	}
	if payload.Description != nil {
		after.Description = *payload.Description
	}

	if err = e.nodes.Update(ctx, after); err != nil {
		return snapshot, err
	}

	e.invalidate(ctx, before.ID, before.Code)
	if after.Code != before.Code {
		e.invalidate(ctx, after.ID, after.Code)
	}

	snapshot = UpdatedSnapshot{Before: before, After: after}
	e.record(ctx, audit.OpNodeUpdated, id,
		fmt.Sprintf("updated %s %q fields %v", e.kind, after.Code, snapshot.ChangedFields()))
	return snapshot, nil
}

// DeleteByID hard-deletes a live node, its closure rows, and any archive row
// sharing the id.
func (e *Engine) DeleteByID(ctx context.Context, id int64) (err error) {
	defer e.observe("deleteById", time.Now(), &err)
	return e.deleteNode(ctx, id)
}

// DeleteByCode resolves the code to a live node and hard-deletes it.
func (e *Engine) DeleteByCode(ctx context.Context, code string) (err error) {
	defer e.observe("deleteByCode", time.Now(), &err)

	node, err := e.nodes.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	return e.deleteNode(ctx, node.ID)
}

func (e *Engine) deleteNode(ctx context.Context, id int64) error {
	node, err := e.nodes.FindByID(ctx, id)
	if err != nil {
		return err
	}
	// Capture the parents before the delete severs the edges; their
	// hasDescendant projections may flip with it.
	parents, err := e.paths.FindDirectAncestors(ctx, id)
	if err != nil {
		return err
	}

	if err := e.nodes.Delete(ctx, id); err != nil {
		return err
	}

	e.invalidate(ctx, node.ID, node.Code)
	e.invalidateByID(ctx, parents)
	e.record(ctx, audit.OpNodeDeleted, id, fmt.Sprintf("deleted %s %q", e.kind, node.Code))
	return nil
}

// ArchiveByID moves the node into the archive, detaching it from the
// hierarchy, and registers its delayed hard delete. Archival is reversible
// for the node's own data but not for its edges. A scheduling failure fails
// the operation: the archive is not clean without its pending purge.
func (e *Engine) ArchiveByID(ctx context.Context, id int64) (err error) {
	defer e.observe("archiveById", time.Now(), &err)

	node, err := e.nodes.FindByID(ctx, id)
	if err != nil {
		return err
	}
	parents, err := e.paths.FindDirectAncestors(ctx, id)
	if err != nil {
		return err
	}

	if err = e.nodes.MoveToArchive(ctx, id); err != nil {
		return err
	}
	e.invalidate(ctx, node.ID, node.Code)
	e.invalidateByID(ctx, parents)

	if err = e.scheduler.ScheduleHardDelete(ctx, e.kind, id, e.retention); err != nil {
		return fmt.Errorf("archived but failed to schedule hard delete: %w", err)
	}

	e.record(ctx, audit.OpNodeArchived, id, fmt.Sprintf("archived %s %q", e.kind, node.Code))
	return nil
}

// RecoverFromArchiveByID restores an archived node's row and cancels its
// pending hard delete. Its prior edges were removed at archive time and
// cannot come back; the caller re-links the node explicitly if desired.
func (e *Engine) RecoverFromArchiveByID(ctx context.Context, id int64) (node *Node, err error) {
	defer e.observe("recoverFromArchiveById", time.Now(), &err)

	node, err = e.nodes.RestoreFromArchive(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = e.scheduler.CancelHardDelete(ctx, e.kind, id); err != nil {
		return nil, fmt.Errorf("recovered but failed to cancel hard delete: %w", err)
	}

	e.invalidate(ctx, node.ID, node.Code)
	e.record(ctx, audit.OpNodeRecovered, id, fmt.Sprintf("recovered %s %q from archive", e.kind, node.Code))
	return node, nil
}

// AddDescendant links descendantID directly under ancestorID.
func (e *Engine) AddDescendant(ctx context.Context, ancestorID, descendantID int64) (err error) {
	defer e.observe("addDescendant", time.Now(), &err)

	if err = e.paths.AddEdge(ctx, ancestorID, descendantID); err != nil {
		return err
	}

	e.invalidateEndpoints(ctx, ancestorID, descendantID)
	e.record(ctx, audit.OpEdgeAdded, ancestorID,
		fmt.Sprintf("linked %s %d under %d", e.kind, descendantID, ancestorID))
	return nil
}

// DeletePath removes the direct edge between the pair.
func (e *Engine) DeletePath(ctx context.Context, ancestorID, descendantID int64) (err error) {
	defer e.observe("deletePath", time.Now(), &err)

	if err = e.paths.RemoveEdge(ctx, ancestorID, descendantID); err != nil {
		return err
	}

	e.invalidateEndpoints(ctx, ancestorID, descendantID)
	e.record(ctx, audit.OpEdgeRemoved, ancestorID,
		fmt.Sprintf("unlinked %s %d from %d", e.kind, descendantID, ancestorID))
	return nil
}

// Move atomically re-parents descendantID from originalAncestorID to
// targetAncestorID.
func (e *Engine) Move(ctx context.Context, originalAncestorID, targetAncestorID, descendantID int64) (err error) {
	defer e.observe("move", time.Now(), &err)

	if err = e.paths.Move(ctx, originalAncestorID, targetAncestorID, descendantID); err != nil {
		return err
	}

	e.invalidateEndpoints(ctx, originalAncestorID, descendantID)
	e.invalidateEndpoints(ctx, targetAncestorID, descendantID)
	e.record(ctx, audit.OpEdgeMoved, descendantID,
		fmt.Sprintf("moved %s %d from %d to %d", e.kind, descendantID, originalAncestorID, targetAncestorID))
	return nil
}

// FindByID is a cache-first read. On a miss the node is loaded from the
// store, its hasDescendant projection computed, and the entry written
// through. Concurrent misses for the same id are collapsed to one store
// read.
func (e *Engine) FindByID(ctx context.Context, id int64) (node *Node, err error) {
	defer e.observe("findById", time.Now(), &err)

	if e.cache != nil {
		if cached, cerr := e.cache.Get(ctx, id); cerr == nil && cached != nil {
			return e.translated(ctx, cached), nil
		}
	}

	v, err, _ := e.group.Do(fmt.Sprintf("id:%d", id), func() (interface{}, error) {
		return e.loadAndCache(ctx, func(ctx context.Context) (*Node, error) {
			return e.nodes.FindByID(ctx, id)
		})
	})
	if err != nil {
		return nil, err
	}
	return e.translated(ctx, v.(*Node)), nil
}

// FindByCode is the code-keyed variant of FindByID.
func (e *Engine) FindByCode(ctx context.Context, code string) (node *Node, err error) {
	defer e.observe("findByCode", time.Now(), &err)

	if e.cache != nil {
		if cached, cerr := e.cache.GetByCode(ctx, code); cerr == nil && cached != nil {
			return e.translated(ctx, cached), nil
		}
	}

	v, err, _ := e.group.Do("code:"+code, func() (interface{}, error) {
		return e.loadAndCache(ctx, func(ctx context.Context) (*Node, error) {
			return e.nodes.FindByCode(ctx, code)
		})
	})
	if err != nil {
		return nil, err
	}
	return e.translated(ctx, v.(*Node)), nil
}

func (e *Engine) loadAndCache(ctx context.Context, load func(context.Context) (*Node, error)) (*Node, error) {
	node, err := load(ctx)
	if err != nil {
		return nil, err
	}

	node.HasDescendant, err = e.paths.ExistsDescendant(ctx, node.ID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, node); err != nil {
			e.logger.WithError(err).Warnf("failed to cache %s %d", e.kind, node.ID)
		}
	}
	return node, nil
}

// FindAllByID resolves a batch of ids to nodes with hasDescendant populated.
func (e *Engine) FindAllByID(ctx context.Context, ids []int64) (nodes []*Node, err error) {
	defer e.observe("findAllById", time.Now(), &err)

	nodes, err = e.nodes.FindAllByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err = e.decorate(ctx, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindByCodeIn resolves a batch of codes to nodes with hasDescendant
// populated.
func (e *Engine) FindByCodeIn(ctx context.Context, codes []string) (nodes []*Node, err error) {
	defer e.observe("findByCodeIn", time.Now(), &err)

	nodes, err = e.nodes.FindByCodeIn(ctx, codes)
	if err != nil {
		return nil, err
	}
	if err = e.decorate(ctx, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindAll returns a filtered page of live nodes with a total count. The page
// bypasses the cache: arbitrary filters are not cache keys. hasDescendant is
// computed for the whole page in one batch query.
func (e *Engine) FindAll(ctx context.Context, filter Filter, page PageRequest) (result Page[*Node], err error) {
	defer e.observe("findAll", time.Now(), &err)

	result, err = e.nodes.FindAll(ctx, filter, page)
	if err != nil {
		return result, err
	}
	if err = e.decorate(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}

// FindAllSlice is the countless variant of FindAll.
func (e *Engine) FindAllSlice(ctx context.Context, filter Filter, page PageRequest) (result Slice[*Node], err error) {
	defer e.observe("findAllSlice", time.Now(), &err)

	result, err = e.nodes.FindAllSlice(ctx, filter, page)
	if err != nil {
		return result, err
	}
	if err = e.decorate(ctx, result.Items); err != nil {
		return result, err
	}
	return result, nil
}

// FindArchivedAll lists archived nodes. Archived nodes have no edges, so
// hasDescendant stays false.
func (e *Engine) FindArchivedAll(ctx context.Context, filter Filter, page PageRequest) (result Page[*Node], err error) {
	defer e.observe("findArchivedAll", time.Now(), &err)

	result, err = e.nodes.FindArchivedAll(ctx, filter, page)
	if err != nil {
		return result, err
	}
	for i, node := range result.Items {
		result.Items[i] = e.translated(ctx, node)
	}
	return result, nil
}

// FindRoots returns the page of nodes that never appear as a descendant.
func (e *Engine) FindRoots(ctx context.Context, page PageRequest) (result Page[*Node], err error) {
	defer e.observe("findRoots", time.Now(), &err)

	ids, err := e.paths.FindRoots(ctx, page)
	if err != nil {
		return result, err
	}
	return e.resolveIDPage(ctx, ids)
}

// FindDirectDescendants returns the page of depth-1 children of ancestorID.
func (e *Engine) FindDirectDescendants(ctx context.Context, ancestorID int64, page PageRequest) (result Page[*Node], err error) {
	defer e.observe("findDirectDescendants", time.Now(), &err)

	ids, err := e.paths.FindDirectDescendants(ctx, ancestorID, page)
	if err != nil {
		return result, err
	}
	return e.resolveIDPage(ctx, ids)
}

// FindDescendants returns the page of all transitive descendants of
// ancestorID.
func (e *Engine) FindDescendants(ctx context.Context, ancestorID int64, page PageRequest) (result Page[*Node], err error) {
	defer e.observe("findDescendants", time.Now(), &err)

	ids, err := e.paths.FindDescendants(ctx, ancestorID, page)
	if err != nil {
		return result, err
	}
	return e.resolveIDPage(ctx, ids)
}

// FindAncestors returns every transitive ancestor of the node, nearest
// first.
func (e *Engine) FindAncestors(ctx context.Context, descendantID int64) (nodes []*Node, err error) {
	defer e.observe("findAncestors", time.Now(), &err)

	if _, err = e.nodes.FindByID(ctx, descendantID); err != nil {
		return nil, err
	}

	ids, err := e.paths.FindAncestors(ctx, descendantID)
	if err != nil {
		return nil, err
	}

	resolved, err := e.nodes.FindAllByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err = e.decorate(ctx, resolved); err != nil {
		return nil, err
	}

	// FindAllByID orders by id; restore the nearest-first closure order.
	byID := make(map[int64]*Node, len(resolved))
	for _, node := range resolved {
		byID[node.ID] = node
	}
	nodes = make([]*Node, 0, len(ids))
	for _, id := range ids {
		if node, ok := byID[id]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (e *Engine) resolveIDPage(ctx context.Context, ids Page[int64]) (Page[*Node], error) {
	result := Page[*Node]{Page: ids.Page, Size: ids.Size, Total: ids.Total, Items: []*Node{}}

	nodes, err := e.nodes.FindAllByID(ctx, ids.Items)
	if err != nil {
		return result, err
	}
	if err := e.decorate(ctx, nodes); err != nil {
		return result, err
	}
	result.Items = nodes
	return result, nil
}

// decorate batch-computes hasDescendant for the nodes and translates their
// display names. One query for the whole set instead of one per row.
func (e *Engine) decorate(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}

	ids := make([]int64, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}

	withDescendants, err := e.paths.FindAncestorIDsWithDescendants(ctx, ids)
	if err != nil {
		return err
	}

	for i, node := range nodes {
		node.HasDescendant = withDescendants[node.ID]
		nodes[i] = e.translated(ctx, node)
	}
	return nil
}

// FindAllAncestorPathStrings renders every root-to-descendant chain ending at
// the node as a path of codes, e.g. "root/child/grandchild". Used for
// diagnostics and operation log display.
func (e *Engine) FindAllAncestorPathStrings(ctx context.Context, descendantID int64) (paths []string, err error) {
	defer e.observe("findAllAncestorPathStrings", time.Now(), &err)

	node, err := e.nodes.FindByID(ctx, descendantID)
	if err != nil {
		return nil, err
	}

	codes := map[int64]string{node.ID: node.Code}
	seen := map[string]bool{}

	var walk func(id int64, tail []string) error
	walk = func(id int64, tail []string) error {
		parents, err := e.paths.FindDirectAncestors(ctx, id)
		if err != nil {
			return err
		}
		if len(parents) == 0 {
			path := JoinPath(tail)
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
			return nil
		}
		for _, parent := range parents {
			code, err := e.codeOf(ctx, parent, codes)
			if err != nil {
				return err
			}
			chain := append([]string{code}, tail...)
			if err := walk(parent, chain); err != nil {
				return err
			}
		}
		return nil
	}

	if err = walk(descendantID, []string{node.Code}); err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

func (e *Engine) codeOf(ctx context.Context, id int64, memo map[int64]string) (string, error) {
	if code, ok := memo[id]; ok {
		return code, nil
	}
	node, err := e.nodes.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	memo[id] = node.Code
	return node.Code, nil
}

// invalidateEndpoints drops the cache entries of both edge endpoints; their
// hasDescendant projections may have changed.
func (e *Engine) invalidateEndpoints(ctx context.Context, ancestorID, descendantID int64) {
	e.invalidateByID(ctx, []int64{ancestorID, descendantID})
}

// invalidateByID resolves each id and drops its cache entries. Ids that no
// longer resolve are skipped.
func (e *Engine) invalidateByID(ctx context.Context, ids []int64) {
	for _, id := range ids {
		node, err := e.nodes.FindByID(ctx, id)
		if err != nil {
			continue
		}
		e.invalidate(ctx, node.ID, node.Code)
	}
}

// invalidate drops a node's cache entries. One inline retry; after that a
// stale entry is left to TTL expiry, logged and counted but never failing
// the operation that triggered it.
func (e *Engine) invalidate(ctx context.Context, id int64, code string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, id, code); err == nil {
		return
	}
	if err := e.cache.Delete(ctx, id, code); err != nil {
		observability.FromContext(ctx).WithError(err).
			Warnf("cache invalidation failed for %s %d, entry left to expire", e.kind, id)
		if e.metrics != nil {
			e.metrics.RecordCacheInvalidationError(string(e.kind))
		}
	}
}

// translated returns a copy of the node with its display name rewritten for
// the caller's locale. The stored node is never mutated.
func (e *Engine) translated(ctx context.Context, node *Node) *Node {
	if e.translator == nil || node == nil {
		return node
	}
	out := node.Clone()
	out.Name = e.translator.Translate(ctx, "", out.Code, out.Name)
	return out
}

func (e *Engine) record(ctx context.Context, operation string, id int64, description string) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, operation, fmt.Sprintf("%s:%d", e.kind, id), description)
}

// observe records the operation outcome; used as
// `defer e.observe("op", time.Now(), &err)` so the final error is read at
// return time.
func (e *Engine) observe(operation string, start time.Time, err *error) {
	if e.metrics != nil {
		e.metrics.ObserveEngineOp(string(e.kind), operation, *err, start)
	}
}
