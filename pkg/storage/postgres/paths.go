package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/warden/pkg/hierarchy"
)

// PathStore maintains the transitive closure of one kind's hierarchy.
//
// Rows are (ancestor_id, descendant_id, depth) with a uniqueness constraint
// on the pair. Depth 0 rows are node self-loops inserted at node creation,
// depth 1 rows are direct edges, and deeper rows are implied closure entries
// holding the length of the shortest justifying chain.
type PathStore struct {
	db    *ConnectionManager
	kind  hierarchy.Kind
	table string
}

// NewPathStore creates a path store for the given kind
func NewPathStore(db *ConnectionManager, kind hierarchy.Kind) *PathStore {
	return &PathStore{
		db:    db,
		kind:  kind,
		table: kind.PathTable(),
	}
}

// dbtx is satisfied by *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// AddEdge inserts a direct edge and backfills the closure so every ancestor
// of ancestorID reaches every descendant of descendantID. The whole operation
// runs in one transaction; readers never observe a partially closed set.
func (s *PathStore) AddEdge(ctx context.Context, ancestorID, descendantID int64) error {
	if ancestorID == descendantID {
		return fmt.Errorf("%w: %d", hierarchy.ErrSelfReferential, ancestorID)
	}

	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin add edge", err)
	}
	defer tx.Rollback()

	if err := s.addEdgeTx(ctx, tx, ancestorID, descendantID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit add edge", err)
	}
	return nil
}

func (s *PathStore) addEdgeTx(ctx context.Context, tx dbtx, ancestorID, descendantID int64) error {
	ancestors, err := s.chainRows(ctx, tx, "descendant_id", ancestorID)
	if err != nil {
		return err
	}
	descendants, err := s.chainRows(ctx, tx, "ancestor_id", descendantID)
	if err != nil {
		return err
	}

	// Cycle guard: the new descendant may not already be an ancestor of the
	// new ancestor.
	if _, ok := ancestors[descendantID]; ok {
		return fmt.Errorf("%w: %d is an ancestor of %d", hierarchy.ErrCycleDetected, descendantID, ancestorID)
	}

	var existingDepth sql.NullInt64
	query := fmt.Sprintf(`SELECT depth FROM %s WHERE ancestor_id = $1 AND descendant_id = $2`, s.table)
	err = tx.QueryRowContext(ctx, query, ancestorID, descendantID).Scan(&existingDepth)
	if err != nil && err != sql.ErrNoRows {
		return hierarchy.NewStorageFailure("check existing edge", err)
	}
	if existingDepth.Valid && existingDepth.Int64 == 1 {
		return fmt.Errorf("%w: %d -> %d", hierarchy.ErrEdgeExists, ancestorID, descendantID)
	}

	// Backfill ancestors(a) x descendants(d); both sets include the endpoint
	// itself at depth 0.
	for x, dx := range ancestors {
		for y, dy := range descendants {
			if err := s.upsertPair(ctx, tx, x, y, dx+dy+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// chainRows returns node id -> depth for every row matching the given side
// of the pair, the queried node itself included via its depth-0 self row.
func (s *PathStore) chainRows(ctx context.Context, tx dbtx, column string, id int64) (map[int64]int64, error) {
	other := "ancestor_id"
	if column == "ancestor_id" {
		other = "descendant_id"
	}
	query := fmt.Sprintf(`SELECT %s, depth FROM %s WHERE %s = $1`, other, s.table, column)

	rows, err := tx.QueryContext(ctx, query, id)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("load chain", err)
	}
	defer rows.Close()

	chain := make(map[int64]int64)
	for rows.Next() {
		var nodeID, depth int64
		if err := rows.Scan(&nodeID, &depth); err != nil {
			return nil, hierarchy.NewStorageFailure("scan chain", err)
		}
		chain[nodeID] = depth
	}
	if err := rows.Err(); err != nil {
		return nil, hierarchy.NewStorageFailure("iterate chain", err)
	}
	if _, ok := chain[id]; !ok {
		return nil, fmt.Errorf("%w: %s %d", hierarchy.ErrNotFound, s.kind, id)
	}
	return chain, nil
}

// upsertPair inserts the pair or shortens the recorded depth, keeping the
// pair-uniqueness invariant.
func (s *PathStore) upsertPair(ctx context.Context, tx dbtx, ancestorID, descendantID, depth int64) error {
	var current sql.NullInt64
	query := fmt.Sprintf(`SELECT depth FROM %s WHERE ancestor_id = $1 AND descendant_id = $2`, s.table)
	err := tx.QueryRowContext(ctx, query, ancestorID, descendantID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		insert := fmt.Sprintf(`INSERT INTO %s (ancestor_id, descendant_id, depth) VALUES ($1, $2, $3)`, s.table)
		if _, err := tx.ExecContext(ctx, insert, ancestorID, descendantID, depth); err != nil {
			return hierarchy.NewStorageFailure("insert path", err)
		}
	case err != nil:
		return hierarchy.NewStorageFailure("check path", err)
	case depth < current.Int64:
		update := fmt.Sprintf(`UPDATE %s SET depth = $1 WHERE ancestor_id = $2 AND descendant_id = $3`, s.table)
		if _, err := tx.ExecContext(ctx, update, depth, ancestorID, descendantID); err != nil {
			return hierarchy.NewStorageFailure("update path depth", err)
		}
	}
	return nil
}

// RemoveEdge deletes the direct pair and recomputes the affected closure
// rows from the remaining direct edges. Pairs still justified by an
// alternate chain are retained with their new shortest depth.
func (s *PathStore) RemoveEdge(ctx context.Context, ancestorID, descendantID int64) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin remove edge", err)
	}
	defer tx.Rollback()

	if err := s.removeEdgeTx(ctx, tx, ancestorID, descendantID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit remove edge", err)
	}
	return nil
}

func (s *PathStore) removeEdgeTx(ctx context.Context, tx dbtx, ancestorID, descendantID int64) error {
	var depth int64
	query := fmt.Sprintf(`SELECT depth FROM %s WHERE ancestor_id = $1 AND descendant_id = $2`, s.table)
	err := tx.QueryRowContext(ctx, query, ancestorID, descendantID).Scan(&depth)
	if err == sql.ErrNoRows || (err == nil && depth != 1) {
		return fmt.Errorf("%w: no direct edge %d -> %d", hierarchy.ErrNotFound, ancestorID, descendantID)
	}
	if err != nil {
		return hierarchy.NewStorageFailure("check edge", err)
	}

	// Affected pairs before the edge goes away.
	ancestors, err := s.chainRows(ctx, tx, "descendant_id", ancestorID)
	if err != nil {
		return err
	}
	descendants, err := s.chainRows(ctx, tx, "ancestor_id", descendantID)
	if err != nil {
		return err
	}

	del := fmt.Sprintf(`DELETE FROM %s WHERE ancestor_id = $1 AND descendant_id = $2`, s.table)
	if _, err := tx.ExecContext(ctx, del, ancestorID, descendantID); err != nil {
		return hierarchy.NewStorageFailure("delete edge", err)
	}

	return s.recomputeAffected(ctx, tx, ancestors, descendants)
}

// recomputeAffected re-derives shortest reachability for every pair in
// ancestors x descendants over the remaining direct edges, deleting pairs no
// chain justifies anymore. Removal is rare relative to reads, so a BFS over
// the direct-edge set is acceptable here.
func (s *PathStore) recomputeAffected(ctx context.Context, tx dbtx, ancestors, descendants map[int64]int64) error {
	direct, err := s.directEdges(ctx, tx)
	if err != nil {
		return err
	}

	targets := make(map[int64]bool, len(descendants))
	for y := range descendants {
		targets[y] = true
	}

	for x := range ancestors {
		dist := bfsDistances(direct, x)
		for y := range targets {
			if x == y {
				continue
			}
			d, reachable := dist[y]
			if reachable {
				if err := s.setPairDepth(ctx, tx, x, y, d); err != nil {
					return err
				}
				continue
			}
			del := fmt.Sprintf(`DELETE FROM %s WHERE ancestor_id = $1 AND descendant_id = $2`, s.table)
			if _, err := tx.ExecContext(ctx, del, x, y); err != nil {
				return hierarchy.NewStorageFailure("prune path", err)
			}
		}
	}
	return nil
}

func (s *PathStore) setPairDepth(ctx context.Context, tx dbtx, ancestorID, descendantID, depth int64) error {
	update := fmt.Sprintf(`UPDATE %s SET depth = $1 WHERE ancestor_id = $2 AND descendant_id = $3`, s.table)
	res, err := tx.ExecContext(ctx, update, depth, ancestorID, descendantID)
	if err != nil {
		return hierarchy.NewStorageFailure("set path depth", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		insert := fmt.Sprintf(`INSERT INTO %s (ancestor_id, descendant_id, depth) VALUES ($1, $2, $3)`, s.table)
		if _, err := tx.ExecContext(ctx, insert, ancestorID, descendantID, depth); err != nil {
			return hierarchy.NewStorageFailure("insert path", err)
		}
	}
	return nil
}

// directEdges loads every depth-1 row into an adjacency map.
func (s *PathStore) directEdges(ctx context.Context, tx dbtx) (map[int64][]int64, error) {
	query := fmt.Sprintf(`SELECT ancestor_id, descendant_id FROM %s WHERE depth = 1`, s.table)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("load direct edges", err)
	}
	defer rows.Close()

	adjacency := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, hierarchy.NewStorageFailure("scan direct edge", err)
		}
		adjacency[from] = append(adjacency[from], to)
	}
	return adjacency, rows.Err()
}

// bfsDistances returns shortest hop counts from start over the adjacency map.
func bfsDistances(adjacency map[int64][]int64, start int64) map[int64]int64 {
	dist := map[int64]int64{start: 0}
	queue := []int64{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[current] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

// Move re-parents descendantID from originalAncestorID to targetAncestorID in
// one transaction. If the add half fails validation, nothing is applied.
func (s *PathStore) Move(ctx context.Context, originalAncestorID, targetAncestorID, descendantID int64) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin move", err)
	}
	defer tx.Rollback()

	if err := s.removeEdgeTx(ctx, tx, originalAncestorID, descendantID); err != nil {
		return err
	}
	if err := s.addEdgeTx(ctx, tx, targetAncestorID, descendantID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit move", err)
	}
	return nil
}

// InsertSelf writes the depth-0 self row for a newly created node.
func (s *PathStore) InsertSelf(ctx context.Context, tx dbtx, id int64) error {
	return s.setPairDepth(ctx, tx, id, id, 0)
}

// FindDescendants returns a page of all descendant ids of ancestorID.
func (s *PathStore) FindDescendants(ctx context.Context, ancestorID int64, page hierarchy.PageRequest) (hierarchy.Page[int64], error) {
	page = page.Normalize()
	where := `WHERE ancestor_id = $1 AND depth > 0`
	return s.pageIDs(ctx, "descendant_id", where, page, ancestorID)
}

// FindDirectDescendants returns a page of depth-1 descendants of ancestorID.
func (s *PathStore) FindDirectDescendants(ctx context.Context, ancestorID int64, page hierarchy.PageRequest) (hierarchy.Page[int64], error) {
	page = page.Normalize()
	where := `WHERE ancestor_id = $1 AND depth = 1`
	return s.pageIDs(ctx, "descendant_id", where, page, ancestorID)
}

// FindRoots returns a page of ids that never appear as a descendant.
func (s *PathStore) FindRoots(ctx context.Context, page hierarchy.PageRequest) (hierarchy.Page[int64], error) {
	page = page.Normalize()

	where := fmt.Sprintf(`WHERE depth = 0 AND NOT EXISTS
		(SELECT 1 FROM %s b WHERE b.descendant_id = %s.ancestor_id AND b.depth > 0)`, s.table, s.table)
	return s.pageIDs(ctx, "ancestor_id", where, page)
}

func (s *PathStore) pageIDs(ctx context.Context, column, where string, page hierarchy.PageRequest, args ...interface{}) (hierarchy.Page[int64], error) {
	result := hierarchy.Page[int64]{Page: page.Page, Size: page.Size, Items: []int64{}}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where)
	if err := s.db.Replica().QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return result, hierarchy.NewStorageFailure("count paths", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY %s ASC LIMIT $%d OFFSET $%d`,
		column, s.table, where, column, n+1, n+2)
	rows, err := s.db.Replica().QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return result, hierarchy.NewStorageFailure("query paths", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return result, hierarchy.NewStorageFailure("scan path id", err)
		}
		result.Items = append(result.Items, id)
	}
	return result, rows.Err()
}

// FindAncestors returns every ancestor id of descendantID, nearest first.
func (s *PathStore) FindAncestors(ctx context.Context, descendantID int64) ([]int64, error) {
	return s.listIDs(ctx, fmt.Sprintf(
		`SELECT ancestor_id FROM %s WHERE descendant_id = $1 AND depth > 0 ORDER BY depth ASC, ancestor_id ASC`,
		s.table), descendantID)
}

// FindDirectAncestors returns only the depth-1 parents of descendantID.
func (s *PathStore) FindDirectAncestors(ctx context.Context, descendantID int64) ([]int64, error) {
	return s.listIDs(ctx, fmt.Sprintf(
		`SELECT ancestor_id FROM %s WHERE descendant_id = $1 AND depth = 1 ORDER BY ancestor_id ASC`,
		s.table), descendantID)
}

func (s *PathStore) listIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("query ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, hierarchy.NewStorageFailure("scan id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExistsDescendant reports whether nodeID has at least one descendant.
func (s *PathStore) ExistsDescendant(ctx context.Context, nodeID int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE ancestor_id = $1 AND depth = 1)`, s.table)
	if err := s.db.Replica().QueryRowContext(ctx, query, nodeID).Scan(&exists); err != nil {
		return false, hierarchy.NewStorageFailure("probe descendant", err)
	}
	return exists, nil
}

// FindAncestorIDsWithDescendants returns the subset of ids that have at least
// one descendant. One query for the whole batch; list views call this instead
// of probing per row.
func (s *PathStore) FindAncestorIDsWithDescendants(ctx context.Context, ids []int64) (map[int64]bool, error) {
	result := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	placeholders := make([]string, len(sorted))
	args := make([]interface{}, len(sorted))
	for i, id := range sorted {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT DISTINCT ancestor_id FROM %s WHERE depth = 1 AND ancestor_id IN (%s)`,
		s.table, strings.Join(placeholders, ", "))
	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("batch descendant probe", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, hierarchy.NewStorageFailure("scan batch probe", err)
		}
		result[id] = true
	}
	return result, rows.Err()
}

// DeleteAllInvolving removes every row where id appears on either side,
// the self row included.
func (s *PathStore) DeleteAllInvolving(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE ancestor_id = $1 OR descendant_id = $1`, s.table)
	if _, err := s.db.Primary().ExecContext(ctx, query, id); err != nil {
		return hierarchy.NewStorageFailure("delete paths", err)
	}
	return nil
}

func (s *PathStore) deleteAllInvolvingTx(ctx context.Context, tx dbtx, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE ancestor_id = $1 OR descendant_id = $1`, s.table)
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return hierarchy.NewStorageFailure("delete paths", err)
	}
	return nil
}
