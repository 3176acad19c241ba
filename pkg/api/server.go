package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/httputil"
	"github.com/foliohq/folio/pkg/links"
	"github.com/foliohq/folio/pkg/middleware"
	"github.com/foliohq/folio/pkg/observability"
	"github.com/foliohq/folio/pkg/workspace"
)

// ServerDeps carries the constructed components the server wires up.
// RateLimit and Metrics may be nil.
type ServerDeps struct {
	Logger           *observability.Logger
	Metrics          *observability.Metrics
	Resolver         *authz.Resolver
	PermissionStore  *authz.Store
	WorkspaceStore   *workspace.Store
	LinkStore        *links.Store
	LinkValidator    *links.Validator
	AuditLogger      audit.Logger
	Policy           *Policy
	RateLimit        *middleware.RateLimitMiddleware
	BatchConcurrency int
}

// Server assembles the HTTP API
type Server struct {
	deps   ServerDeps
	router *mux.Router
}

// NewServer creates the API server and builds its routes
func NewServer(deps ServerDeps) *Server {
	if deps.Policy == nil {
		deps.Policy = DefaultPolicy()
	}
	s := &Server{deps: deps}
	s.buildRouter()
	return s
}

// Router returns the assembled handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() {
	router := mux.NewRouter()

	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(s.deps.Logger))
	router.Use(httputil.RecoveryMiddleware(s.deps.Logger))
	router.Use(httputil.MaxBytesMiddleware(1 << 20))
	if s.deps.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	authzHandlers := NewAuthzHandlers(s.deps.Resolver, s.deps.Policy, s.deps.Logger, s.deps.BatchConcurrency)
	permissionHandlers := NewPermissionHandlers(s.deps.Resolver, s.deps.PermissionStore, s.deps.WorkspaceStore, s.deps.AuditLogger, s.deps.Logger)
	workspaceHandlers := NewWorkspaceHandlers(s.deps.Resolver, s.deps.WorkspaceStore, s.deps.AuditLogger, s.deps.Logger)
	linkHandlers := NewLinkHandlers(s.deps.Resolver, s.deps.LinkStore, s.deps.LinkValidator, s.deps.Logger)

	// Authenticated API.
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.NewIdentityMiddleware(false).Handler)
	if s.deps.RateLimit != nil {
		apiRouter.Use(s.deps.RateLimit.Handler)
	}
	authzHandlers.RegisterRoutes(apiRouter)
	permissionHandlers.RegisterRoutes(apiRouter)
	workspaceHandlers.RegisterRoutes(apiRouter)
	linkHandlers.RegisterRoutes(apiRouter)

	// Anonymous public link access. Rate limited by client IP.
	publicRouter := router.PathPrefix("/api/v1").Subrouter()
	if s.deps.RateLimit != nil {
		publicRouter.Use(s.deps.RateLimit.Handler)
	}
	linkHandlers.RegisterPublicRoutes(publicRouter)

	s.router = router
}
