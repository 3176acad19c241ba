package links

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/workspace"
)

// Store persists public links in PostgreSQL
type Store struct {
	db    *sql.DB
	audit audit.Logger
}

// NewStore creates a new link store
func NewStore(db *sql.DB, auditLogger audit.Logger) *Store {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Store{db: db, audit: auditLogger}
}

// RunMigrations creates the public_links table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS public_links (
			id BIGSERIAL PRIMARY KEY,
			token VARCHAR(64) NOT NULL UNIQUE,
			resource_type VARCHAR(20) NOT NULL,
			resource_id BIGINT NOT NULL,
			organization_id BIGINT NOT NULL,
			created_by BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			disabled_at TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_public_links_token ON public_links(token);
		CREATE INDEX IF NOT EXISTS idx_public_links_resource ON public_links(resource_type, resource_id);
		CREATE INDEX IF NOT EXISTS idx_public_links_disabled_at ON public_links(disabled_at);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create public_links table: %w", err)
	}
	return nil
}

// Create mints a new link with a random token
func (s *Store) Create(ctx context.Context, resourceType workspace.ResourceType, resourceID, orgID, createdBy int64) (*PublicLink, error) {
	if !resourceType.Valid() {
		return nil, fmt.Errorf("invalid resource type: %q", resourceType)
	}

	link := &PublicLink{
		Token:          uuid.NewString(),
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		OrganizationID: orgID,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now(),
	}

	query := `
		INSERT INTO public_links (token, resource_type, resource_id, organization_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		link.Token,
		link.ResourceType,
		link.ResourceID,
		link.OrganizationID,
		link.CreatedBy,
		link.CreatedAt,
	).Scan(&link.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create public link: %w", err)
	}

	event := audit.NewEvent(audit.EventTypeLinkCreate, audit.EventStatusSuccess).
		WithActor(createdBy, orgID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10)).
		WithMetadata(map[string]interface{}{"link_id": link.ID})
	if err := s.audit.Log(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to write audit record: %w", err)
	}

	return link, nil
}

// GetByToken looks up a link by its token, returning nil when unknown
func (s *Store) GetByToken(ctx context.Context, token string) (*PublicLink, error) {
	query := `
		SELECT id, token, resource_type, resource_id, organization_id, created_by, created_at, disabled_at
		FROM public_links
		WHERE token = $1
	`

	var link PublicLink
	var disabledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&link.ID,
		&link.Token,
		&link.ResourceType,
		&link.ResourceID,
		&link.OrganizationID,
		&link.CreatedBy,
		&link.CreatedAt,
		&disabledAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get public link: %w", err)
	}

	if disabledAt.Valid {
		v := disabledAt.Time
		link.DisabledAt = &v
	}

	return &link, nil
}

// GetByID looks up a link by its primary key, returning nil when unknown
func (s *Store) GetByID(ctx context.Context, linkID int64) (*PublicLink, error) {
	query := `
		SELECT id, token, resource_type, resource_id, organization_id, created_by, created_at, disabled_at
		FROM public_links
		WHERE id = $1
	`

	var link PublicLink
	var disabledAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, linkID).Scan(
		&link.ID,
		&link.Token,
		&link.ResourceType,
		&link.ResourceID,
		&link.OrganizationID,
		&link.CreatedBy,
		&link.CreatedAt,
		&disabledAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get public link: %w", err)
	}

	if disabledAt.Valid {
		v := disabledAt.Time
		link.DisabledAt = &v
	}

	return &link, nil
}

// Disable turns a link off. Disabled links deny all access but stay
// around until the purge janitor removes them. The update is scoped to
// the caller's organization so a link ID from another tenant never
// matches.
func (s *Store) Disable(ctx context.Context, linkID, actorID, orgID int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE public_links SET disabled_at = $1 WHERE id = $2 AND organization_id = $3 AND disabled_at IS NULL",
		time.Now(), linkID, orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to disable public link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check disable result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("public link %d not found or already disabled", linkID)
	}

	event := audit.NewEvent(audit.EventTypeLinkDisable, audit.EventStatusSuccess).
		WithActor(actorID, orgID).
		WithMetadata(map[string]interface{}{"link_id": linkID})
	if err := s.audit.Log(ctx, event); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	return nil
}

// PurgeDisabled deletes links disabled before the cutoff, returning
// the number removed.
func (s *Store) PurgeDisabled(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM public_links WHERE disabled_at IS NOT NULL AND disabled_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge disabled links: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged links: %w", err)
	}
	return purged, nil
}
