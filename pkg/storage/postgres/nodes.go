package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/hierarchy"
)

const nodeColumns = "id, code, name, description, created_at, updated_at"

// NodeStore persists one kind's live and archived rows. All multi-row
// mutations (create with self path, delete with closure cascade, archive
// moves) run in a single transaction.
type NodeStore struct {
	db           *ConnectionManager
	kind         hierarchy.Kind
	table        string
	archiveTable string
	paths        *PathStore
}

// NewNodeStore creates a node store for the given kind
func NewNodeStore(db *ConnectionManager, kind hierarchy.Kind, paths *PathStore) *NodeStore {
	return &NodeStore{
		db:           db,
		kind:         kind,
		table:        kind.Table(),
		archiveTable: kind.ArchiveTable(),
		paths:        paths,
	}
}

// Create inserts a new node and its depth-0 self path row. The id is assigned
// by the database unless the caller provides one. Uniqueness of id and code is
// checked against the live and archive tables together.
func (s *NodeStore) Create(ctx context.Context, node *hierarchy.Node) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin create", err)
	}
	defer tx.Rollback()

	if node.ID != 0 {
		taken, err := s.idTaken(ctx, tx, node.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s id %d", hierarchy.ErrDuplicateID, s.kind, node.ID)
		}
	}
	taken, err := s.codeTaken(ctx, tx, node.Code, 0)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s code %q", hierarchy.ErrDuplicateCode, s.kind, node.Code)
	}

	now := time.Now().UTC()
	node.CreatedAt = now
	node.UpdatedAt = now

	if node.ID != 0 {
		query := fmt.Sprintf(
			`INSERT INTO %s (id, code, name, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
		if _, err := tx.ExecContext(ctx, query,
			node.ID, node.Code, node.Name, node.Description, node.CreatedAt, node.UpdatedAt); err != nil {
			return hierarchy.NewStorageFailure("insert node", err)
		}
	} else {
		query := fmt.Sprintf(
			`INSERT INTO %s (code, name, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`, s.table)
		if err := tx.QueryRowContext(ctx, query,
			node.Code, node.Name, node.Description, node.CreatedAt, node.UpdatedAt).Scan(&node.ID); err != nil {
			return hierarchy.NewStorageFailure("insert node", err)
		}
	}

	if err := s.paths.InsertSelf(ctx, tx, node.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit create", err)
	}
	return nil
}

// Update replaces the row by id, re-validating code uniqueness when the code
// changed.
func (s *NodeStore) Update(ctx context.Context, node *hierarchy.Node) error {
	if node.ID == 0 {
		return hierarchy.ErrPrimaryKeyRequired
	}

	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin update", err)
	}
	defer tx.Rollback()

	current, err := s.findByIDIn(ctx, tx, s.table, node.ID)
	if err != nil {
		return err
	}

	if node.Code != current.Code {
		taken, err := s.codeTaken(ctx, tx, node.Code, node.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s code %q", hierarchy.ErrDuplicateCode, s.kind, node.Code)
		}
	}

	node.CreatedAt = current.CreatedAt
	node.UpdatedAt = time.Now().UTC()

	query := fmt.Sprintf(
		`UPDATE %s SET code = $1, name = $2, description = $3, updated_at = $4 WHERE id = $5`, s.table)
	if _, err := tx.ExecContext(ctx, query,
		node.Code, node.Name, node.Description, node.UpdatedAt, node.ID); err != nil {
		return hierarchy.NewStorageFailure("update node", err)
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit update", err)
	}
	return nil
}

// Delete removes the live row, every closure row involving the id, and any
// archive row with the same id.
func (s *NodeStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin delete", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return hierarchy.NewStorageFailure("delete node", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %d", hierarchy.ErrNotFound, s.kind, id)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.archiveTable), id); err != nil {
		return hierarchy.NewStorageFailure("delete archive row", err)
	}
	if err := s.paths.deleteAllInvolvingTx(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit delete", err)
	}
	return nil
}

// FindByID returns the live node with the given id.
func (s *NodeStore) FindByID(ctx context.Context, id int64) (*hierarchy.Node, error) {
	return s.findByIDIn(ctx, s.db.Replica(), s.table, id)
}

func (s *NodeStore) findByIDIn(ctx context.Context, q dbtx, table string, id int64) (*hierarchy.Node, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, nodeColumns, table)
	node, err := scanNode(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %d", hierarchy.ErrNotFound, s.kind, id)
	}
	if err != nil {
		return nil, hierarchy.NewStorageFailure("find node by id", err)
	}
	node.Archived = table == s.archiveTable
	return node, nil
}

// FindByCode returns the live node with the given code.
func (s *NodeStore) FindByCode(ctx context.Context, code string) (*hierarchy.Node, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code = $1`, nodeColumns, s.table)
	node, err := scanNode(s.db.Replica().QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s code %q", hierarchy.ErrNotFound, s.kind, code)
	}
	if err != nil {
		return nil, hierarchy.NewStorageFailure("find node by code", err)
	}
	return node, nil
}

// FindAllByID returns the live nodes matching ids. Missing ids are skipped.
func (s *NodeStore) FindAllByID(ctx context.Context, ids []int64) ([]*hierarchy.Node, error) {
	if len(ids) == 0 {
		return []*hierarchy.Node{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id IN (%s) ORDER BY id ASC`,
		nodeColumns, s.table, strings.Join(placeholders, ", "))
	return s.queryNodes(ctx, query, args...)
}

// FindByCodeIn returns the live nodes matching codes. Missing codes are
// skipped.
func (s *NodeStore) FindByCodeIn(ctx context.Context, codes []string) ([]*hierarchy.Node, error) {
	if len(codes) == 0 {
		return []*hierarchy.Node{}, nil
	}
	placeholders := make([]string, len(codes))
	args := make([]interface{}, len(codes))
	for i, code := range codes {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = code
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code IN (%s) ORDER BY id ASC`,
		nodeColumns, s.table, strings.Join(placeholders, ", "))
	return s.queryNodes(ctx, query, args...)
}

// FindAll returns a filtered page of live nodes with a total count.
func (s *NodeStore) FindAll(ctx context.Context, filter hierarchy.Filter, page hierarchy.PageRequest) (hierarchy.Page[*hierarchy.Node], error) {
	return s.findPage(ctx, s.table, false, filter, page)
}

// FindArchivedAll returns a filtered page of archived nodes.
func (s *NodeStore) FindArchivedAll(ctx context.Context, filter hierarchy.Filter, page hierarchy.PageRequest) (hierarchy.Page[*hierarchy.Node], error) {
	return s.findPage(ctx, s.archiveTable, true, filter, page)
}

func (s *NodeStore) findPage(ctx context.Context, table string, archived bool, filter hierarchy.Filter, page hierarchy.PageRequest) (hierarchy.Page[*hierarchy.Node], error) {
	page = page.Normalize()
	result := hierarchy.Page[*hierarchy.Node]{Page: page.Page, Size: page.Size, Items: []*hierarchy.Node{}}

	where, args := buildNodeFilter(filter)

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, table, where)
	if err := s.db.Replica().QueryRowContext(ctx, countQuery, args...).Scan(&result.Total); err != nil {
		return result, hierarchy.NewStorageFailure("count nodes", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY id ASC LIMIT $%d OFFSET $%d`,
		nodeColumns, table, where, n+1, n+2)
	nodes, err := s.queryNodes(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return result, err
	}
	for _, node := range nodes {
		node.Archived = archived
	}
	result.Items = nodes
	return result, nil
}

// FindAllSlice is the countless variant of FindAll; it fetches one extra row
// to decide HasNext.
func (s *NodeStore) FindAllSlice(ctx context.Context, filter hierarchy.Filter, page hierarchy.PageRequest) (hierarchy.Slice[*hierarchy.Node], error) {
	page = page.Normalize()
	result := hierarchy.Slice[*hierarchy.Node]{Page: page.Page, Size: page.Size, Items: []*hierarchy.Node{}}

	where, args := buildNodeFilter(filter)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY id ASC LIMIT $%d OFFSET $%d`,
		nodeColumns, s.table, where, n+1, n+2)
	nodes, err := s.queryNodes(ctx, query, append(args, page.Size+1, page.Offset())...)
	if err != nil {
		return result, err
	}

	if len(nodes) > page.Size {
		result.HasNext = true
		nodes = nodes[:page.Size]
	}
	result.Items = nodes
	return result, nil
}

func buildNodeFilter(filter hierarchy.Filter) (string, []interface{}) {
	if filter.IsZero() {
		return "", nil
	}
	var conditions []string
	var args []interface{}
	if filter.Code != "" {
		args = append(args, "%"+filter.Code+"%")
		conditions = append(conditions, fmt.Sprintf("code LIKE $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		conditions = append(conditions, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// MoveToArchive copies the live row into the archive table, removes the live
// row, and cascades closure-row removal, all in one transaction.
func (s *NodeStore) MoveToArchive(ctx context.Context, id int64) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin archive", err)
	}
	defer tx.Rollback()

	node, err := s.findByIDIn(ctx, tx, s.table, id)
	if err != nil {
		return err
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (id, code, name, description, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.archiveTable)
	if _, err := tx.ExecContext(ctx, insert,
		node.ID, node.Code, node.Name, node.Description, true, node.CreatedAt, time.Now().UTC()); err != nil {
		return hierarchy.NewStorageFailure("insert archive row", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id); err != nil {
		return hierarchy.NewStorageFailure("delete live row", err)
	}
	if err := s.paths.deleteAllInvolvingTx(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit archive", err)
	}
	return nil
}

// RestoreFromArchive moves an archived row back to the live table and
// restores its depth-0 self row. Edges are not restored; the node comes back
// detached.
func (s *NodeStore) RestoreFromArchive(ctx context.Context, id int64) (*hierarchy.Node, error) {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("begin restore", err)
	}
	defer tx.Rollback()

	node, err := s.findByIDIn(ctx, tx, s.archiveTable, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.archiveTable), id); err != nil {
		return nil, hierarchy.NewStorageFailure("delete archive row", err)
	}

	node.Archived = false
	node.UpdatedAt = time.Now().UTC()
	insert := fmt.Sprintf(
		`INSERT INTO %s (id, code, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
	if _, err := tx.ExecContext(ctx, insert,
		node.ID, node.Code, node.Name, node.Description, node.CreatedAt, node.UpdatedAt); err != nil {
		return nil, hierarchy.NewStorageFailure("insert live row", err)
	}

	if err := s.paths.InsertSelf(ctx, tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, hierarchy.NewStorageFailure("commit restore", err)
	}
	return node, nil
}

// PurgeArchived hard-deletes the archive row and any residual closure rows.
// Running it twice for the same id is harmless. When no archive row exists
// (already purged, or the node was recovered and is live again) nothing is
// touched: a stale purge job must never strip a live node's closure.
func (s *NodeStore) PurgeArchived(ctx context.Context, id int64) error {
	tx, err := s.db.Primary().BeginTx(ctx, nil)
	if err != nil {
		return hierarchy.NewStorageFailure("begin purge", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.archiveTable), id)
	if err != nil {
		return hierarchy.NewStorageFailure("delete archive row", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	if err := s.paths.deleteAllInvolvingTx(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return hierarchy.NewStorageFailure("commit purge", err)
	}
	return nil
}

// ExistsByID reports whether a live row with the id exists.
func (s *NodeStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.table)
	if err := s.db.Replica().QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, hierarchy.NewStorageFailure("probe id", err)
	}
	return exists, nil
}

// ExistsByCode reports whether the code is held by a live or archived row.
func (s *NodeStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE code = $1)
		     OR EXISTS (SELECT 1 FROM %s WHERE code = $1)`, s.table, s.archiveTable)
	if err := s.db.Replica().QueryRowContext(ctx, query, code).Scan(&exists); err != nil {
		return false, hierarchy.NewStorageFailure("probe code", err)
	}
	return exists, nil
}

func (s *NodeStore) idTaken(ctx context.Context, tx dbtx, id int64) (bool, error) {
	var taken bool
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)
		     OR EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.table, s.archiveTable)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&taken); err != nil {
		return false, hierarchy.NewStorageFailure("probe id", err)
	}
	return taken, nil
}

// codeTaken checks both tables; excludeID ignores the live row being updated.
func (s *NodeStore) codeTaken(ctx context.Context, tx dbtx, code string, excludeID int64) (bool, error) {
	var taken bool
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE code = $1 AND id <> $2)
		     OR EXISTS (SELECT 1 FROM %s WHERE code = $1)`, s.table, s.archiveTable)
	if err := tx.QueryRowContext(ctx, query, code, excludeID).Scan(&taken); err != nil {
		return false, hierarchy.NewStorageFailure("probe code", err)
	}
	return taken, nil
}

func (s *NodeStore) queryNodes(ctx context.Context, query string, args ...interface{}) ([]*hierarchy.Node, error) {
	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("query nodes", err)
	}
	defer rows.Close()

	nodes := []*hierarchy.Node{}
	for rows.Next() {
		node := &hierarchy.Node{}
		if err := rows.Scan(&node.ID, &node.Code, &node.Name, &node.Description,
			&node.CreatedAt, &node.UpdatedAt); err != nil {
			return nil, hierarchy.NewStorageFailure("scan node", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*hierarchy.Node, error) {
	node := &hierarchy.Node{}
	err := row.Scan(&node.ID, &node.Code, &node.Name, &node.Description,
		&node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return node, nil
}
