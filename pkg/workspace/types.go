package workspace

import (
	"time"
)

// ResourceType identifies the kind of resource a permission applies to
type ResourceType string

const (
	ResourceTypeFolder ResourceType = "folder"
	ResourceTypeFile   ResourceType = "file"
)

// Valid reports whether the resource type is a known variant
func (rt ResourceType) Valid() bool {
	return rt == ResourceTypeFolder || rt == ResourceTypeFile
}

// Folder is a container in the workspace tree
type Folder struct {
	ID                 int64      `json:"id"`
	OrganizationID     int64      `json:"organization_id"`
	Name               string     `json:"name"`
	OwnerTeamID        *int64     `json:"owner_team_id,omitempty"`
	ParentFolderID     *int64     `json:"parent_folder_id,omitempty"`
	InheritPermissions bool       `json:"inherit_permissions"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// File is a document in the workspace tree
type File struct {
	ID                 int64      `json:"id"`
	OrganizationID     int64      `json:"organization_id"`
	Name               string     `json:"name"`
	OwnerTeamID        *int64     `json:"owner_team_id,omitempty"`
	FolderID           *int64     `json:"folder_id,omitempty"`
	InheritPermissions bool       `json:"inherit_permissions"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// Resource is the uniform view of a folder or file that permission
// resolution operates on.
type Resource struct {
	Type               ResourceType `json:"type"`
	ID                 int64        `json:"id"`
	OrganizationID     int64        `json:"organization_id"`
	OwnerTeamID        *int64       `json:"owner_team_id,omitempty"`
	ParentFolderID     *int64       `json:"parent_folder_id,omitempty"`
	InheritPermissions bool         `json:"inherit_permissions"`
	DeletedAt          *time.Time   `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the resource is soft-deleted
func (r *Resource) IsDeleted() bool {
	return r.DeletedAt != nil
}

// IsOrphaned reports whether the resource has no owning team
func (r *Resource) IsOrphaned() bool {
	return r.OwnerTeamID == nil
}

// OwnedBy reports whether the resource's owner team is among the
// caller's team memberships.
func (r *Resource) OwnedBy(teamIDs map[int64]struct{}) bool {
	if r.OwnerTeamID == nil {
		return false
	}
	_, ok := teamIDs[*r.OwnerTeamID]
	return ok
}

// AsResource converts a folder to the resolver's uniform view
func (f *Folder) AsResource() *Resource {
	return &Resource{
		Type:               ResourceTypeFolder,
		ID:                 f.ID,
		OrganizationID:     f.OrganizationID,
		OwnerTeamID:        f.OwnerTeamID,
		ParentFolderID:     f.ParentFolderID,
		InheritPermissions: f.InheritPermissions,
		DeletedAt:          f.DeletedAt,
	}
}

// AsResource converts a file to the resolver's uniform view
func (f *File) AsResource() *Resource {
	return &Resource{
		Type:               ResourceTypeFile,
		ID:                 f.ID,
		OrganizationID:     f.OrganizationID,
		OwnerTeamID:        f.OwnerTeamID,
		ParentFolderID:     f.FolderID,
		InheritPermissions: f.InheritPermissions,
		DeletedAt:          f.DeletedAt,
	}
}
