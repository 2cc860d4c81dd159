// Package archive implements the delayed hard-delete half of the node
// lifecycle: registering durable purge jobs when a node is archived and
// executing the jobs that have come due.
package archive

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/hierarchy"
	"github.com/platinummonkey/warden/pkg/observability"
)

// JobQueue is the durable job store the scheduler and runner operate on.
type JobQueue interface {
	Schedule(ctx context.Context, kind hierarchy.Kind, nodeID int64, runAt time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]hierarchy.PurgeJob, error)
	Complete(ctx context.Context, id int64) error
	Cancel(ctx context.Context, kind hierarchy.Kind, nodeID int64) error
}

// Scheduler registers purge jobs against the durable queue. It implements
// the engine's scheduling dependency; a failure here fails the archive
// operation so a node can never sit in the archive without a pending purge.
type Scheduler struct {
	queue   JobQueue
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewScheduler creates a purge scheduler
func NewScheduler(queue JobQueue, logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{queue: queue, logger: logger, metrics: metrics}
}

// ScheduleHardDelete registers a purge of the archived node after the
// retention window elapses.
func (s *Scheduler) ScheduleHardDelete(ctx context.Context, kind hierarchy.Kind, nodeID int64, after time.Duration) error {
	runAt := time.Now().UTC().Add(after)
	if err := s.queue.Schedule(ctx, kind, nodeID, runAt); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.PurgeJobsScheduled.Inc()
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"kind":    string(kind),
		"node_id": nodeID,
		"run_at":  runAt.Format(time.RFC3339),
	}).Info("scheduled hard delete")
	return nil
}

// CancelHardDelete drops a pending purge, used when a node is recovered from
// the archive before its purge ran.
func (s *Scheduler) CancelHardDelete(ctx context.Context, kind hierarchy.Kind, nodeID int64) error {
	return s.queue.Cancel(ctx, kind, nodeID)
}
