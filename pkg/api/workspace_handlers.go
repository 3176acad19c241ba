package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/httputil"
	"github.com/foliohq/folio/pkg/middleware"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// WorkspaceHandlers handles folder and file creation. Resources created
// without an owning team start orphaned until a super-admin reassigns
// them.
type WorkspaceHandlers struct {
	resolver *authz.Resolver
	store    *workspace.Store
	audit    audit.Logger
	logger   *observability.Logger
}

// NewWorkspaceHandlers creates a new WorkspaceHandlers
func NewWorkspaceHandlers(resolver *authz.Resolver, store *workspace.Store, auditLogger audit.Logger, logger *observability.Logger) *WorkspaceHandlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &WorkspaceHandlers{
		resolver: resolver,
		store:    store,
		audit:    auditLogger,
		logger:   logger,
	}
}

// RegisterRoutes registers workspace creation routes
func (h *WorkspaceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/folders", h.CreateFolder).Methods("POST")
	router.HandleFunc("/files", h.CreateFile).Methods("POST")
}

type createResourceRequest struct {
	Name               string `json:"name"`
	OwnerTeamID        *int64 `json:"ownerTeamId,omitempty"`
	ParentFolderID     *int64 `json:"parentFolderId,omitempty"`
	InheritPermissions bool   `json:"inheritPermissions"`
}

// checkCreate validates the shared creation rules: an owning team must
// be one of the caller's teams, and a parent folder must be a live
// same-organization folder the caller holds editor on. Parent folders
// in other organizations are reported as not found. Returns false after
// writing the response when a rule fails.
func (h *WorkspaceHandlers) checkCreate(w http.ResponseWriter, r *http.Request, identity authz.Identity, req *createResourceRequest) bool {
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return false
	}

	if req.OwnerTeamID != nil {
		teamIDs, err := h.store.TeamIDs(r.Context(), identity.UserID, identity.OrganizationID)
		if err != nil {
			h.logger.WithError(err).Error("Team membership lookup failed")
			httputil.WriteServiceUnavailable(w, "membership lookup unavailable")
			return false
		}
		if _, ok := teamIDs[*req.OwnerTeamID]; !ok {
			httputil.WriteForbidden(w, "owner team must be one of the caller's teams")
			return false
		}
	}

	if req.ParentFolderID != nil {
		parent, err := h.store.GetResource(r.Context(), workspace.ResourceTypeFolder, *req.ParentFolderID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return false
		}
		if parent == nil || parent.IsDeleted() || parent.OrganizationID != identity.OrganizationID {
			httputil.WriteNotFound(w, "parent folder not found")
			return false
		}

		decision, err := h.resolver.EffectiveRole(r.Context(), identity, workspace.ResourceTypeFolder, *req.ParentFolderID)
		if err != nil {
			h.logger.WithError(err).Error("Permission resolution unavailable")
			httputil.WriteServiceUnavailable(w, "resolution unavailable")
			return false
		}
		if !decision.Allowed || !decision.Role.AtLeast(authz.RoleEditor) {
			httputil.WriteForbidden(w, "creating inside a folder requires editor on it")
			return false
		}
	}

	return true
}

func (h *WorkspaceHandlers) auditCreate(r *http.Request, identity authz.Identity, resourceType workspace.ResourceType, resourceID int64) {
	event := audit.NewEvent(audit.EventTypeResourceCreate, audit.EventStatusSuccess).
		WithActor(identity.UserID, identity.OrganizationID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10))
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("Failed to audit resource creation")
	}
}

// CreateFolder creates a folder, optionally nested under a parent
func (h *WorkspaceHandlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req createResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !h.checkCreate(w, r, identity, &req) {
		return
	}

	folder := &workspace.Folder{
		OrganizationID:     identity.OrganizationID,
		Name:               req.Name,
		OwnerTeamID:        req.OwnerTeamID,
		ParentFolderID:     req.ParentFolderID,
		InheritPermissions: req.InheritPermissions,
	}
	if err := h.store.CreateFolder(r.Context(), folder); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditCreate(r, identity, workspace.ResourceTypeFolder, folder.ID)
	httputil.WriteCreated(w, folder)
}

// CreateFile creates a file, optionally inside a folder
func (h *WorkspaceHandlers) CreateFile(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req createResourceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !h.checkCreate(w, r, identity, &req) {
		return
	}

	file := &workspace.File{
		OrganizationID:     identity.OrganizationID,
		Name:               req.Name,
		OwnerTeamID:        req.OwnerTeamID,
		FolderID:           req.ParentFolderID,
		InheritPermissions: req.InheritPermissions,
	}
	if err := h.store.CreateFile(r.Context(), file); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	h.auditCreate(r, identity, workspace.ResourceTypeFile, file.ID)
	httputil.WriteCreated(w, file)
}
