package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/hierarchy"
	"github.com/platinummonkey/warden/pkg/observability"
)

const defaultBatchSize = 200

// Runner polls the durable job queue on a cron schedule and executes due
// purges. Execution is idempotent: a purge that already ran (or a node that
// was recovered and re-archived) completes without error, so a crash between
// purge and job completion is safe to replay.
type Runner struct {
	queue   JobQueue
	stores  map[hierarchy.Kind]hierarchy.NodeStore
	logger  *observability.Logger
	metrics *observability.Metrics

	cron     *cron.Cron
	schedule string
	batch    int
}

// NewRunner creates a purge runner polling on the given cron schedule.
func NewRunner(queue JobQueue, stores map[hierarchy.Kind]hierarchy.NodeStore, schedule string, logger *observability.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		queue:    queue,
		stores:   stores,
		logger:   logger,
		metrics:  metrics,
		schedule: schedule,
		batch:    defaultBatchSize,
	}
}

// Start begins the polling schedule.
func (r *Runner) Start() error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.WithError(err).Error("purge run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule purge runner: %w", err)
	}
	c.Start()
	r.cron = c
	r.logger.Infof("purge runner started with schedule %q", r.schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce executes every due job and returns how many were purged. A failing
// job is logged and left in the queue for the next run; it does not block the
// rest of the batch.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	jobs, err := r.queue.Due(ctx, time.Now().UTC(), r.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to load due purges: %w", err)
	}

	purged := 0
	for _, job := range jobs {
		if err := r.execute(ctx, job); err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"kind":    string(job.Kind),
				"node_id": job.NodeID,
			}).Error("purge job failed")
			if r.metrics != nil {
				r.metrics.PurgeJobsExecuted.WithLabelValues(string(job.Kind), "error").Inc()
			}
			continue
		}
		purged++
		if r.metrics != nil {
			r.metrics.PurgeJobsExecuted.WithLabelValues(string(job.Kind), "ok").Inc()
		}
	}

	if purged > 0 {
		r.logger.Infof("purged %d archived nodes", purged)
	}
	return purged, nil
}

func (r *Runner) execute(ctx context.Context, job hierarchy.PurgeJob) error {
	store, ok := r.stores[job.Kind]
	if !ok {
		// Unknown kinds are completed, not retried forever.
		r.logger.Warnf("dropping purge job %d for unknown kind %q", job.ID, job.Kind)
		return r.queue.Complete(ctx, job.ID)
	}

	if err := store.PurgeArchived(ctx, job.NodeID); err != nil {
		return err
	}
	return r.queue.Complete(ctx, job.ID)
}
