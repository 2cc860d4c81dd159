package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/observability"
)

// DBRecorder writes operation log entries to the operation_logs table.
//
// Record is fire-and-forget: the write runs on a background goroutine with
// its own timeout, and a failure is logged but never propagated to the
// operation that produced the entry.
type DBRecorder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBRecorder creates a new database-backed operation recorder
func NewDBRecorder(db *sql.DB, logger *observability.Logger) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBRecorder{db: db, logger: logger}, nil
}

// Record persists one entry asynchronously. The actor and request ids are
// captured from the caller's context before it is detached.
func (r *DBRecorder) Record(ctx context.Context, operation, businessKey, description string) {
	entry := Entry{
		ID:          uuid.NewString(),
		Operation:   operation,
		BusinessKey: businessKey,
		Description: description,
		ActorID:     observability.GetActorID(ctx),
		RequestID:   observability.GetRequestID(ctx),
		RecordedAt:  time.Now().UTC(),
	}

	// Detach from the request context so cancellation doesn't drop the entry.
	async.SafeGo(context.Background(), 5*time.Second, "operation log write", func(ctx context.Context) error {
		if err := r.write(ctx, entry); err != nil {
			r.logger.WithError(err).Warnf("failed to record operation %s for %s", operation, businessKey)
			return err
		}
		return nil
	})
}

func (r *DBRecorder) write(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO operation_logs (id, operation, business_key, description, actor_id, request_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Operation, entry.BusinessKey, entry.Description,
		entry.ActorID, entry.RequestID, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert operation log: %w", err)
	}
	return nil
}

// Search returns entries matching the business key, newest first.
func (r *DBRecorder) Search(ctx context.Context, businessKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, operation, business_key, description, actor_id, request_id, recorded_at
		FROM operation_logs WHERE business_key = $1 ORDER BY recorded_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, businessKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search operation logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.BusinessKey,
			&entry.Description, &entry.ActorID, &entry.RequestID, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
