package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the resource_permissions table. The unique
// constraint enforces at most one rule per (resource, grantee) pair,
// so concurrent grants resolve through upsert semantics.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS resource_permissions (
			id BIGSERIAL PRIMARY KEY,
			resource_type VARCHAR(20) NOT NULL,
			resource_id BIGINT NOT NULL,
			grantee_type VARCHAR(20) NOT NULL,
			grantee_id BIGINT NOT NULL,
			permission_type VARCHAR(20) NOT NULL,
			role VARCHAR(20) NOT NULL,
			created_by BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (resource_type, resource_id, grantee_type, grantee_id)
		);

		CREATE INDEX IF NOT EXISTS idx_resource_permissions_resource ON resource_permissions(resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS idx_resource_permissions_grantee ON resource_permissions(grantee_type, grantee_id);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create resource_permissions table: %w", err)
	}
	return nil
}
