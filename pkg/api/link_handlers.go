package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/httputil"
	"github.com/foliohq/folio/pkg/links"
	"github.com/foliohq/folio/pkg/middleware"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// LinkHandlers handles public link management and anonymous access
type LinkHandlers struct {
	resolver  *authz.Resolver
	store     *links.Store
	validator *links.Validator
	logger    *observability.Logger
}

// NewLinkHandlers creates a new LinkHandlers
func NewLinkHandlers(resolver *authz.Resolver, store *links.Store, validator *links.Validator, logger *observability.Logger) *LinkHandlers {
	return &LinkHandlers{
		resolver:  resolver,
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes registers authenticated link management routes
func (h *LinkHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/links", h.Create).Methods("POST")
	router.HandleFunc("/links/{id}/disable", h.Disable).Methods("POST")
}

// RegisterPublicRoutes registers the anonymous token access route
func (h *LinkHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/public/{token}/{resourceType}/{resourceId}", h.Access).Methods("GET")
}

type createLinkRequest struct {
	ResourceType workspace.ResourceType `json:"resourceType"`
	ResourceID   int64                  `json:"resourceId"`
}

// Create mints a public link. Sharing requires admin on the resource.
func (h *LinkHandlers) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req createLinkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.ResourceType.Valid() {
		httputil.WriteBadRequest(w, "resource type must be folder or file")
		return
	}

	decision, err := h.resolver.EffectiveRole(r.Context(), identity, req.ResourceType, req.ResourceID)
	if err != nil {
		h.logger.WithError(err).Error("Permission resolution unavailable")
		httputil.WriteServiceUnavailable(w, "resolution unavailable")
		return
	}
	if !decision.Allowed || decision.Role != authz.RoleAdmin {
		httputil.WriteForbidden(w, "sharing requires admin on the resource")
		return
	}

	link, err := h.store.Create(r.Context(), req.ResourceType, req.ResourceID, identity.OrganizationID, identity.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, link)
}

// Disable turns a link off. The caller must be the link creator or
// hold admin on the linked resource. Links in other organizations are
// reported as not found.
func (h *LinkHandlers) Disable(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	linkID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	link, err := h.store.GetByID(r.Context(), linkID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if link == nil || link.OrganizationID != identity.OrganizationID {
		httputil.WriteNotFound(w, "link not found")
		return
	}

	if link.CreatedBy != identity.UserID {
		decision, err := h.resolver.EffectiveRole(r.Context(), identity, link.ResourceType, link.ResourceID)
		if err != nil {
			h.logger.WithError(err).Error("Permission resolution unavailable")
			httputil.WriteServiceUnavailable(w, "resolution unavailable")
			return
		}
		if !decision.Allowed || decision.Role != authz.RoleAdmin {
			httputil.WriteForbidden(w, "disabling a link requires admin on the resource")
			return
		}
	}

	if err := h.store.Disable(r.Context(), linkID, identity.UserID, identity.OrganizationID); err != nil {
		httputil.WriteNotFound(w, err.Error())
		return
	}

	httputil.WriteNoContent(w)
}

// Access validates an anonymous token against a resource. The
// response carries viewer at most and never AI eligibility.
func (h *LinkHandlers) Access(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	token := vars["token"]

	resourceType, resourceID, err := resourceRefFromPath(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.validator.Validate(r.Context(), token, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, authz.ErrUnavailable) {
			h.logger.WithError(err).Error("Link validation unavailable")
			httputil.WriteServiceUnavailable(w, "validation unavailable")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if !result.HasAccess {
		httputil.WriteJSON(w, http.StatusForbidden, result)
		return
	}

	httputil.WriteSuccess(w, result)
}
