package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/httputil"
	"github.com/foliohq/folio/pkg/middleware"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// AuthzHandlers handles permission resolution HTTP requests
type AuthzHandlers struct {
	resolver    *authz.Resolver
	policy      *Policy
	logger      *observability.Logger
	concurrency int
}

// NewAuthzHandlers creates a new AuthzHandlers
func NewAuthzHandlers(resolver *authz.Resolver, policy *Policy, logger *observability.Logger, batchConcurrency int) *AuthzHandlers {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if batchConcurrency <= 0 {
		batchConcurrency = 8
	}
	return &AuthzHandlers{
		resolver:    resolver,
		policy:      policy,
		logger:      logger,
		concurrency: batchConcurrency,
	}
}

// RegisterRoutes registers resolution routes
func (h *AuthzHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/resolve/{resourceType}/{resourceId}", h.Resolve).Methods("GET")
	router.HandleFunc("/authz/resolve", h.ResolveBatch).Methods("POST")
	router.HandleFunc("/authz/filter", h.Filter).Methods("POST")
	router.HandleFunc("/authz/check/{action}/{resourceType}/{resourceId}", h.Check).Methods("GET")
}

func resourceRefFromPath(r *http.Request) (workspace.ResourceType, int64, error) {
	vars := mux.Vars(r)
	resourceType := workspace.ResourceType(vars["resourceType"])
	if !resourceType.Valid() {
		return "", 0, errors.New("resource type must be folder or file")
	}
	resourceID, err := strconv.ParseInt(vars["resourceId"], 10, 64)
	if err != nil {
		return "", 0, errors.New("resource id must be an integer")
	}
	return resourceType, resourceID, nil
}

// writeResolutionError maps resolver failures to responses. Store
// outages return 503 so operators can tell infrastructure failures
// apart from access denials; the caller still gets no access.
func (h *AuthzHandlers) writeResolutionError(w http.ResponseWriter, err error) {
	if errors.Is(err, authz.ErrUnavailable) {
		h.logger.WithError(err).Error("Permission resolution unavailable")
		httputil.WriteServiceUnavailable(w, "resolution unavailable")
		return
	}
	httputil.WriteInternalError(w, err)
}

// Resolve returns the caller's effective role on one resource
func (h *AuthzHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
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
		h.writeResolutionError(w, err)
		return
	}

	httputil.WriteSuccess(w, decision)
}

type batchResolveRequest struct {
	Resources []authz.ResourceRef `json:"resources"`
}

type batchResolveResponse struct {
	Results []authz.BatchResult `json:"results"`
}

// ResolveBatch resolves many resources in one call, sharing a single
// team-membership fetch. Used by list views.
func (h *AuthzHandlers) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req batchResolveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Resources) == 0 {
		httputil.WriteBadRequest(w, "resources must not be empty")
		return
	}
	for _, ref := range req.Resources {
		if !ref.Type.Valid() {
			httputil.WriteBadRequest(w, "resource type must be folder or file")
			return
		}
	}

	results, err := h.resolver.ResolveBatch(r.Context(), identity, req.Resources, h.concurrency)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}

	httputil.WriteSuccess(w, batchResolveResponse{Results: results})
}

type filterResponse struct {
	Resources []authz.ResourceRef `json:"resources"`
}

// Filter returns the subset of the given resources the caller can
// view. List views send their whole page here and render what comes
// back; items the caller cannot see are absent, not marked.
func (h *AuthzHandlers) Filter(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	var req batchResolveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Resources) == 0 {
		httputil.WriteBadRequest(w, "resources must not be empty")
		return
	}
	for _, ref := range req.Resources {
		if !ref.Type.Valid() {
			httputil.WriteBadRequest(w, "resource type must be folder or file")
			return
		}
	}

	viewable, err := h.resolver.FilterViewable(r.Context(), identity, req.Resources, h.concurrency)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}
	httputil.WriteSuccess(w, filterResponse{Resources: viewable})
}

type checkResponse struct {
	Allowed  bool           `json:"allowed"`
	Action   string         `json:"action"`
	Decision authz.Decision `json:"decision"`
}

// Check answers whether the caller may perform a named action,
// combining the resolved role with the policy table.
func (h *AuthzHandlers) Check(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r)
	if !ok {
		httputil.WriteUnauthorized(w, "missing identity")
		return
	}

	action := mux.Vars(r)["action"]
	if _, known := h.policy.MinRole(action); !known {
		httputil.WriteBadRequest(w, "unknown action")
		return
	}

	resourceType, resourceID, err := resourceRefFromPath(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.resolver.EffectiveRole(r.Context(), identity, resourceType, resourceID)
	if err != nil {
		h.writeResolutionError(w, err)
		return
	}

	httputil.WriteSuccess(w, checkResponse{
		Allowed:  h.policy.Allows(decision, action),
		Action:   action,
		Decision: decision,
	})
}
