package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all warden migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(100) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS roles_archived (
					id BIGINT PRIMARY KEY,
					code VARCHAR(100) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					archived BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_roles_code ON roles(code);
				CREATE INDEX idx_roles_archived_code ON roles_archived(code);
			`,
		},
		{
			Version:     2,
			Description: "Create role_paths closure table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_paths (
					ancestor_id BIGINT NOT NULL,
					descendant_id BIGINT NOT NULL,
					depth BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (ancestor_id, descendant_id)
				);

				CREATE INDEX idx_role_paths_descendant ON role_paths(descendant_id);
				CREATE INDEX idx_role_paths_ancestor_depth ON role_paths(ancestor_id, depth);
			`,
		},
		{
			Version:     3,
			Description: "Create permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(100) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS permissions_archived (
					id BIGINT PRIMARY KEY,
					code VARCHAR(100) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					archived BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_permissions_code ON permissions(code);
				CREATE INDEX idx_permissions_archived_code ON permissions_archived(code);
			`,
		},
		{
			Version:     4,
			Description: "Create permission_paths closure table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permission_paths (
					ancestor_id BIGINT NOT NULL,
					descendant_id BIGINT NOT NULL,
					depth BIGINT NOT NULL DEFAULT 0,
					PRIMARY KEY (ancestor_id, descendant_id)
				);

				CREATE INDEX idx_permission_paths_descendant ON permission_paths(descendant_id);
				CREATE INDEX idx_permission_paths_ancestor_depth ON permission_paths(ancestor_id, depth);
			`,
		},
		{
			Version:     5,
			Description: "Create scheduled_purges table",
			SQL: `
				CREATE TABLE IF NOT EXISTS scheduled_purges (
					id BIGSERIAL PRIMARY KEY,
					kind VARCHAR(32) NOT NULL,
					node_id BIGINT NOT NULL,
					run_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE (kind, node_id)
				);

				CREATE INDEX idx_scheduled_purges_run_at ON scheduled_purges(run_at);
			`,
		},
		{
			Version:     6,
			Description: "Create operation_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS operation_logs (
					id VARCHAR(36) PRIMARY KEY,
					operation VARCHAR(64) NOT NULL,
					business_key VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					actor_id VARCHAR(255) NOT NULL DEFAULT '',
					request_id VARCHAR(64) NOT NULL DEFAULT '',
					recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_operation_logs_recorded_at ON operation_logs(recorded_at);
				CREATE INDEX idx_operation_logs_business_key ON operation_logs(business_key);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS warden_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM warden_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.Infof("running migration %d: %s", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO warden_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
