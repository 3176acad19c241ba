package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// Store reads and mutates permission rules in PostgreSQL. Mutations
// write their audit record and bump the organization's permissions
// version in the same transaction.
type Store struct {
	db     *sql.DB
	audit  audit.Logger
	logger *observability.Logger
}

// NewStore creates a new permission store
func NewStore(db *sql.DB, auditLogger audit.Logger, logger *observability.Logger) *Store {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Store{db: db, audit: auditLogger, logger: logger}
}

// RulesFor returns all permission rules attached directly to a
// resource. Rows with unknown enum values are skipped with a warning
// instead of failing the whole resolution.
func (s *Store) RulesFor(ctx context.Context, resourceType workspace.ResourceType, resourceID int64) ([]PermissionRule, error) {
	query := `
		SELECT id, resource_type, resource_id, grantee_type, grantee_id, permission_type, role, created_by, created_at
		FROM resource_permissions
		WHERE resource_type = $1 AND resource_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission rules: %w", err)
	}
	defer rows.Close()

	var rules []PermissionRule
	for rows.Next() {
		var rule PermissionRule
		var createdBy sql.NullInt64
		if err := rows.Scan(
			&rule.ID,
			&rule.ResourceType,
			&rule.ResourceID,
			&rule.GranteeType,
			&rule.GranteeID,
			&rule.Type,
			&rule.Role,
			&createdBy,
			&rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan permission rule: %w", err)
		}
		if createdBy.Valid {
			rule.CreatedBy = createdBy.Int64
		}

		if !rule.GranteeType.Valid() || !rule.Type.Valid() || (rule.Type == RuleGrant && !rule.Role.Valid()) {
			s.logger.WithFields(map[string]interface{}{
				"rule_id":      rule.ID,
				"grantee_type": string(rule.GranteeType),
				"type":         string(rule.Type),
				"role":         string(rule.Role),
			}).Warn("Skipping malformed permission rule")
			continue
		}

		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// GrantRequest describes a permission mutation.
type GrantRequest struct {
	ResourceType workspace.ResourceType `json:"resourceType"`
	ResourceID   int64                  `json:"resourceId"`
	GranteeType  GranteeType            `json:"granteeType"`
	GranteeID    int64                  `json:"granteeId"`
	Type         RuleType               `json:"type"`
	Role         Role                   `json:"role"`
}

// Validate checks the request's enum fields
func (r *GrantRequest) Validate() error {
	if !r.ResourceType.Valid() {
		return fmt.Errorf("invalid resource type: %q", r.ResourceType)
	}
	if !r.GranteeType.Valid() {
		return fmt.Errorf("invalid grantee type: %q", r.GranteeType)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid permission type: %q", r.Type)
	}
	if r.Type == RuleGrant && !r.Role.Valid() {
		return fmt.Errorf("invalid role: %q", r.Role)
	}
	return nil
}

// Grant upserts a permission rule. The uniqueness constraint on
// (resource_type, resource_id, grantee_type, grantee_id) means
// concurrent writes for the same grantee resolve to a single row.
func (s *Store) Grant(ctx context.Context, actor Identity, req *GrantRequest) (*PermissionRule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO resource_permissions (resource_type, resource_id, grantee_type, grantee_id, permission_type, role, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (resource_type, resource_id, grantee_type, grantee_id)
		DO UPDATE SET permission_type = EXCLUDED.permission_type, role = EXCLUDED.role, created_by = EXCLUDED.created_by, created_at = EXCLUDED.created_at
		RETURNING id
	`

	role := req.Role
	if req.Type == RuleDeny {
		// Deny rows block regardless of role; store viewer for shape.
		role = RoleViewer
	}

	now := time.Now()
	rule := &PermissionRule{
		ResourceType: string(req.ResourceType),
		ResourceID:   req.ResourceID,
		GranteeType:  req.GranteeType,
		GranteeID:    req.GranteeID,
		Type:         req.Type,
		Role:         role,
		CreatedBy:    actor.UserID,
		CreatedAt:    now,
	}

	err = tx.QueryRowContext(ctx, query,
		rule.ResourceType,
		rule.ResourceID,
		rule.GranteeType,
		rule.GranteeID,
		rule.Type,
		rule.Role,
		rule.CreatedBy,
		now,
	).Scan(&rule.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert permission rule: %w", err)
	}

	if err := workspace.BumpPermissionsVersion(ctx, tx, actor.OrganizationID); err != nil {
		return nil, err
	}

	event := audit.NewEvent(audit.EventTypePermissionGrant, audit.EventStatusSuccess).
		WithActor(actor.UserID, actor.OrganizationID).
		WithResource(rule.ResourceType, strconv.FormatInt(rule.ResourceID, 10)).
		WithMetadata(map[string]interface{}{
			"grantee_type": rule.GranteeType,
			"grantee_id":   rule.GranteeID,
			"type":         rule.Type,
			"role":         rule.Role,
		})
	if err := s.audit.LogTx(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("failed to write audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit permission grant: %w", err)
	}

	return rule, nil
}

// Revoke removes the permission rule for a grantee on a resource.
// Missing rows are an error so callers can distinguish a no-op revoke.
func (s *Store) Revoke(ctx context.Context, actor Identity, resourceType workspace.ResourceType, resourceID int64, granteeType GranteeType, granteeID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM resource_permissions
		WHERE resource_type = $1 AND resource_id = $2 AND grantee_type = $3 AND grantee_id = $4
	`, resourceType, resourceID, granteeType, granteeID)
	if err != nil {
		return fmt.Errorf("failed to delete permission rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no permission rule for %s %d on %s %d", granteeType, granteeID, resourceType, resourceID)
	}

	if err := workspace.BumpPermissionsVersion(ctx, tx, actor.OrganizationID); err != nil {
		return err
	}

	event := audit.NewEvent(audit.EventTypePermissionRevoke, audit.EventStatusSuccess).
		WithActor(actor.UserID, actor.OrganizationID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10)).
		WithMetadata(map[string]interface{}{
			"grantee_type": granteeType,
			"grantee_id":   granteeID,
		})
	if err := s.audit.LogTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission revoke: %w", err)
	}

	return nil
}
