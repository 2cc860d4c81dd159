package postgres

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/hierarchy"
)

// PurgeJobStore persists delayed purge jobs in the scheduled_purges table so
// they survive restarts.
type PurgeJobStore struct {
	db *ConnectionManager
}

// NewPurgeJobStore creates a purge job store
func NewPurgeJobStore(db *ConnectionManager) *PurgeJobStore {
	return &PurgeJobStore{db: db}
}

// Schedule registers a purge for (kind, nodeID). Re-archiving a node before
// its purge ran replaces the existing run time.
func (s *PurgeJobStore) Schedule(ctx context.Context, kind hierarchy.Kind, nodeID int64, runAt time.Time) error {
	query := `
		INSERT INTO scheduled_purges (kind, node_id, run_at) VALUES ($1, $2, $3)
		ON CONFLICT (kind, node_id) DO UPDATE SET run_at = EXCLUDED.run_at`
	if _, err := s.db.Primary().ExecContext(ctx, query, string(kind), nodeID, runAt.UTC()); err != nil {
		return hierarchy.NewStorageFailure("schedule purge", err)
	}
	return nil
}

// Due returns up to limit jobs whose run time has passed, oldest first.
func (s *PurgeJobStore) Due(ctx context.Context, now time.Time, limit int) ([]hierarchy.PurgeJob, error) {
	query := `
		SELECT id, kind, node_id, run_at, created_at FROM scheduled_purges
		WHERE run_at <= $1 ORDER BY run_at ASC LIMIT $2`
	rows, err := s.db.Primary().QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, hierarchy.NewStorageFailure("query due purges", err)
	}
	defer rows.Close()

	var jobs []hierarchy.PurgeJob
	for rows.Next() {
		var job hierarchy.PurgeJob
		var kind string
		if err := rows.Scan(&job.ID, &kind, &job.NodeID, &job.RunAt, &job.CreatedAt); err != nil {
			return nil, hierarchy.NewStorageFailure("scan purge job", err)
		}
		job.Kind = hierarchy.Kind(kind)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Complete removes a finished job.
func (s *PurgeJobStore) Complete(ctx context.Context, id int64) error {
	if _, err := s.db.Primary().ExecContext(ctx, `DELETE FROM scheduled_purges WHERE id = $1`, id); err != nil {
		return hierarchy.NewStorageFailure("complete purge", err)
	}
	return nil
}

// Cancel drops any pending job for the node, e.g. after recovery from the
// archive.
func (s *PurgeJobStore) Cancel(ctx context.Context, kind hierarchy.Kind, nodeID int64) error {
	query := `DELETE FROM scheduled_purges WHERE kind = $1 AND node_id = $2`
	if _, err := s.db.Primary().ExecContext(ctx, query, string(kind), nodeID); err != nil {
		return hierarchy.NewStorageFailure("cancel purge", err)
	}
	return nil
}
