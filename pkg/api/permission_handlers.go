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

// PermissionHandlers handles permission mutation HTTP requests.
// Granting and revoking require admin on the target resource; orphan
// owner reassignment and soft deletion have their own rules.
type PermissionHandlers struct {
	resolver   *authz.Resolver
	permission *authz.Store
	store      *workspace.Store
	audit      audit.Logger
	logger     *observability.Logger
}

// NewPermissionHandlers creates a new PermissionHandlers
func NewPermissionHandlers(resolver *authz.Resolver, permission *authz.Store, store *workspace.Store, auditLogger audit.Logger, logger *observability.Logger) *PermissionHandlers {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &PermissionHandlers{
		resolver:   resolver,
		permission: permission,
		store:      store,
		audit:      auditLogger,
		logger:     logger,
	}
}

// RegisterRoutes registers permission mutation routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.Grant).Methods("POST")
	router.HandleFunc("/permissions", h.Revoke).Methods("DELETE")
	router.HandleFunc("/resources/{resourceType}/{resourceId}/owner", h.ReassignOwner).Methods("PUT")
	router.HandleFunc("/resources/{resourceType}/{resourceId}", h.DeleteResource).Methods("DELETE")
}

func (h *PermissionHandlers) auditDenied(r *http.Request, identity authz.Identity, resourceType workspace.ResourceType, resourceID int64, message string) {
	event := audit.NewEvent(audit.EventTypeAccessDenied, audit.EventStatusDenied).
		WithActor(identity.UserID, identity.OrganizationID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10)).
		WithMessage(message)
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("Failed to audit denied access")
	}
}

// requireAdmin resolves the caller on the target and writes the
// response when they fall short. Returns true when admin is held.
func (h *PermissionHandlers) requireAdmin(w http.ResponseWriter, r *http.Request, identity authz.Identity, resourceType workspace.ResourceType, resourceID int64, action string) bool {
	decision, err := h.resolver.EffectiveRole(r.Context(), identity, resourceType, resourceID)
	if err != nil {
		h.logger.WithError(err).Error("Permission resolution unavailable")
		httputil.WriteServiceUnavailable(w, "resolution unavailable")
		return false
	}
	if !decision.Allowed || decision.Role != authz.RoleAdmin {
		h.auditDenied(r, identity, resourceType, resourceID, action+" requires admin")
		httputil.WriteForbidden(w, action+" requires admin on the resource")
		return false
	}
	return true
}

// Grant creates or replaces a permission rule on a resource
func (h *PermissionHandlers) Grant(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req authz.GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.requireAdmin(w, r, identity, req.ResourceType, req.ResourceID, ActionGrant) {
		return
	}

	rule, err := h.permission.Grant(r.Context(), identity, &req)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, rule)
}

type revokeRequest struct {
	ResourceType workspace.ResourceType `json:"resourceType"`
	ResourceID   int64                  `json:"resourceId"`
	GranteeType  authz.GranteeType      `json:"granteeType"`
	GranteeID    int64                  `json:"granteeId"`
}

// Revoke removes a permission rule from a resource
func (h *PermissionHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req revokeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.ResourceType.Valid() || !req.GranteeType.Valid() {
		httputil.WriteBadRequest(w, "invalid resource or grantee type")
		return
	}

	if !h.requireAdmin(w, r, identity, req.ResourceType, req.ResourceID, ActionRevoke) {
		return
	}

	if err := h.permission.Revoke(r.Context(), identity, req.ResourceType, req.ResourceID, req.GranteeType, req.GranteeID); err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}

	httputil.WriteNoContent(w)
}

type reassignOwnerRequest struct {
	TeamID int64 `json:"teamId"`
}

// ReassignOwner gives an orphaned resource a new owning team. Only an
// organization super-admin may do this, and only for orphans; owned
// resources never change hands through this endpoint.
func (h *PermissionHandlers) ReassignOwner(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	resourceType, resourceID, err := resourceRefFromPath(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !identity.SuperAdmin {
		h.auditDenied(r, identity, resourceType, resourceID, "owner reassignment requires super-admin")
		httputil.WriteForbidden(w, "owner reassignment requires super-admin")
		return
	}

	var req reassignOwnerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TeamID <= 0 {
		httputil.WriteBadRequest(w, "teamId is required")
		return
	}

	res, err := h.store.GetResource(r.Context(), resourceType, resourceID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if res == nil || res.IsDeleted() || res.OrganizationID != identity.OrganizationID {
		httputil.WriteNotFound(w, "resource not found")
		return
	}
	if !res.IsOrphaned() {
		httputil.WriteConflict(w, "resource already has an owning team")
		return
	}

	if err := h.store.ReassignOwner(r.Context(), resourceType, resourceID, req.TeamID, identity.OrganizationID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	event := audit.NewEvent(audit.EventTypeOwnerReassign, audit.EventStatusSuccess).
		WithActor(identity.UserID, identity.OrganizationID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10)).
		WithMetadata(map[string]interface{}{"team_id": req.TeamID})
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("Failed to audit owner reassignment")
	}

	httputil.WriteNoContent(w)
}

// DeleteResource soft-deletes a folder or file. Requires editor.
func (h *PermissionHandlers) DeleteResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	resourceType, resourceID, err := resourceRefFromPath(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.resolver.EffectiveRole(r.Context(), identity, resourceType, resourceID)
	if err != nil {
		h.logger.WithError(err).Error("Permission resolution unavailable")
		httputil.WriteServiceUnavailable(w, "resolution unavailable")
		return
	}
	if !decision.Allowed || !decision.Role.AtLeast(authz.RoleEditor) {
		h.auditDenied(r, identity, resourceType, resourceID, "delete requires editor")
		httputil.WriteForbidden(w, "delete requires editor on the resource")
		return
	}

	if err := h.store.SoftDeleteResource(r.Context(), resourceType, resourceID, identity.OrganizationID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	event := audit.NewEvent(audit.EventTypeResourceDelete, audit.EventStatusSuccess).
		WithActor(identity.UserID, identity.OrganizationID).
		WithResource(string(resourceType), strconv.FormatInt(resourceID, 10))
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).Warn("Failed to audit resource deletion")
	}

	httputil.WriteNoContent(w)
}
