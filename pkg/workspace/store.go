package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles workspace data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new workspace store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transactional callers
func (s *Store) DB() *sql.DB {
	return s.db
}

// TeamIDs returns the set of team IDs the user belongs to within an
// organization. Callers fetch this once per request and reuse it across
// all resolutions in that request.
func (s *Store) TeamIDs(ctx context.Context, userID, orgID int64) (map[int64]struct{}, error) {
	query := `
		SELECT tm.team_id
		FROM team_memberships tm
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.user_id = $1 AND t.organization_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team memberships: %w", err)
	}
	defer rows.Close()

	teamIDs := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		teamIDs[id] = struct{}{}
	}

	return teamIDs, rows.Err()
}

// CreateFolder creates a new folder. Inheritance defaults to enabled.
func (s *Store) CreateFolder(ctx context.Context, folder *Folder) error {
	query := `
		INSERT INTO folders (organization_id, name, owner_team_id, parent_folder_id, inherit_permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		folder.OrganizationID,
		folder.Name,
		folder.OwnerTeamID,
		folder.ParentFolderID,
		folder.InheritPermissions,
		now,
		now,
	).Scan(&folder.ID)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	folder.CreatedAt = now
	folder.UpdatedAt = now
	return nil
}

// CreateFile creates a new file. Inheritance defaults to enabled.
func (s *Store) CreateFile(ctx context.Context, file *File) error {
	query := `
		INSERT INTO files (organization_id, name, owner_team_id, folder_id, inherit_permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		file.OrganizationID,
		file.Name,
		file.OwnerTeamID,
		file.FolderID,
		file.InheritPermissions,
		now,
		now,
	).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

// GetResource fetches the resolver's uniform view of a folder or file.
// Returns nil when the resource does not exist.
func (s *Store) GetResource(ctx context.Context, resourceType ResourceType, resourceID int64) (*Resource, error) {
	switch resourceType {
	case ResourceTypeFolder:
		return s.getFolderResource(ctx, resourceID)
	case ResourceTypeFile:
		return s.getFileResource(ctx, resourceID)
	default:
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}
}

func (s *Store) getFolderResource(ctx context.Context, id int64) (*Resource, error) {
	query := `
		SELECT id, organization_id, owner_team_id, parent_folder_id, inherit_permissions, deleted_at
		FROM folders
		WHERE id = $1
	`

	res := &Resource{Type: ResourceTypeFolder}
	var ownerTeamID, parentFolderID sql.NullInt64
	var deletedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&res.OrganizationID,
		&ownerTeamID,
		&parentFolderID,
		&res.InheritPermissions,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %d: %w", id, err)
	}

	if ownerTeamID.Valid {
		v := ownerTeamID.Int64
		res.OwnerTeamID = &v
	}
	if parentFolderID.Valid {
		v := parentFolderID.Int64
		res.ParentFolderID = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Time
		res.DeletedAt = &v
	}

	return res, nil
}

func (s *Store) getFileResource(ctx context.Context, id int64) (*Resource, error) {
	query := `
		SELECT id, organization_id, owner_team_id, folder_id, inherit_permissions, deleted_at
		FROM files
		WHERE id = $1
	`

	res := &Resource{Type: ResourceTypeFile}
	var ownerTeamID, folderID sql.NullInt64
	var deletedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&res.OrganizationID,
		&ownerTeamID,
		&folderID,
		&res.InheritPermissions,
		&deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file %d: %w", id, err)
	}

	if ownerTeamID.Valid {
		v := ownerTeamID.Int64
		res.OwnerTeamID = &v
	}
	if folderID.Valid {
		v := folderID.Int64
		res.ParentFolderID = &v
	}
	if deletedAt.Valid {
		v := deletedAt.Time
		res.DeletedAt = &v
	}

	return res, nil
}

// Ancestors returns the ordered ancestor folder chain of a resource,
// nearest-first. The walk is iterative with a hard depth cap: a cycle
// in the parent chain or a chain longer than maxDepth is treated as
// "no further ancestors" rather than an error, so resolution fails
// closed instead of hanging.
func (s *Store) Ancestors(ctx context.Context, res *Resource, maxDepth int) ([]*Resource, error) {
	var ancestors []*Resource

	seen := map[int64]struct{}{}
	if res.Type == ResourceTypeFolder {
		seen[res.ID] = struct{}{}
	}

	next := res.ParentFolderID
	for depth := 0; next != nil && depth < maxDepth; depth++ {
		if _, dup := seen[*next]; dup {
			break
		}
		seen[*next] = struct{}{}

		ancestor, err := s.getFolderResource(ctx, *next)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			// Dangling parent reference; stop the walk.
			break
		}

		ancestors = append(ancestors, ancestor)
		next = ancestor.ParentFolderID
	}

	return ancestors, nil
}

// IsDescendantOf reports whether the resource sits at or below the
// given folder, using the same depth-capped walk as Ancestors.
func (s *Store) IsDescendantOf(ctx context.Context, res *Resource, folderID int64, maxDepth int) (bool, error) {
	if res.Type == ResourceTypeFolder && res.ID == folderID {
		return true, nil
	}

	ancestors, err := s.Ancestors(ctx, res, maxDepth)
	if err != nil {
		return false, err
	}

	for _, a := range ancestors {
		if a.ID == folderID {
			return true, nil
		}
	}
	return false, nil
}

// PermissionsVersion returns the organization's permissions version
// counter, incremented on any permission, ownership, or deletion
// mutation. Decision caches key on it so stale entries miss naturally.
func (s *Store) PermissionsVersion(ctx context.Context, orgID int64) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		"SELECT permissions_version FROM organizations WHERE id = $1", orgID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get permissions version: %w", err)
	}
	return version, nil
}

// BumpPermissionsVersion increments the organization's permissions
// version inside the caller's transaction.
func BumpPermissionsVersion(ctx context.Context, tx *sql.Tx, orgID int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE organizations SET permissions_version = permissions_version + 1 WHERE id = $1", orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to bump permissions version: %w", err)
	}
	return nil
}

// SoftDeleteResource marks a folder or file deleted and bumps the
// organization's permissions version. A soft-deleted resource resolves
// to deny for every caller, including its owner.
func (s *Store) SoftDeleteResource(ctx context.Context, resourceType ResourceType, resourceID, orgID int64) error {
	table, err := tableFor(resourceType)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE %s SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL", table)
	result, err := tx.ExecContext(ctx, query, time.Now(), resourceID)
	if err != nil {
		return fmt.Errorf("failed to soft delete %s %d: %w", resourceType, resourceID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d not found or already deleted", resourceType, resourceID)
	}

	if err := BumpPermissionsVersion(ctx, tx, orgID); err != nil {
		return err
	}

	return tx.Commit()
}

// ReassignOwner sets a new owning team on a resource. Used for orphan
// triage after team deletion. Bumps the organization's permissions
// version in the same transaction.
func (s *Store) ReassignOwner(ctx context.Context, resourceType ResourceType, resourceID, teamID, orgID int64) error {
	table, err := tableFor(resourceType)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE %s SET owner_team_id = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL", table)
	result, err := tx.ExecContext(ctx, query, teamID, time.Now(), resourceID)
	if err != nil {
		return fmt.Errorf("failed to reassign owner of %s %d: %w", resourceType, resourceID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check reassignment result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d not found", resourceType, resourceID)
	}

	if err := BumpPermissionsVersion(ctx, tx, orgID); err != nil {
		return err
	}

	return tx.Commit()
}

func tableFor(resourceType ResourceType) (string, error) {
	switch resourceType {
	case ResourceTypeFolder:
		return "folders", nil
	case ResourceTypeFile:
		return "files", nil
	default:
		return "", fmt.Errorf("unknown resource type: %s", resourceType)
	}
}
