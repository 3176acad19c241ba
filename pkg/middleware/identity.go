package middleware

import (
	"net/http"
	"strconv"

	"github.com/foliohq/folio/pkg/authz"
	"github.com/foliohq/folio/pkg/contextkeys"
	"github.com/foliohq/folio/pkg/httputil"
)

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID     = "X-Folio-User-Id"
	HeaderOrgID      = "X-Folio-Org-Id"
	HeaderSuperAdmin = "X-Folio-Super-Admin"
)

// IdentityMiddleware reads the gateway's identity headers and stores
// an authz.Identity in the request context. When optional is false,
// requests without a complete identity are rejected with 401.
type IdentityMiddleware struct {
	optional bool
}

// NewIdentityMiddleware creates identity middleware. Optional mode is
// for routes that also serve anonymous public-link traffic.
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userHeader := r.Header.Get(HeaderUserID)
		orgHeader := r.Header.Get(HeaderOrgID)

		if userHeader == "" || orgHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing identity")
			return
		}

		userID, err := strconv.ParseInt(userHeader, 10, 64)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid user id")
			return
		}
		orgID, err := strconv.ParseInt(orgHeader, 10, 64)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid organization id")
			return
		}

		identity := authz.Identity{
			UserID:         userID,
			OrganizationID: orgID,
			SuperAdmin:     r.Header.Get(HeaderSuperAdmin) == "true",
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity retrieves the caller identity from the request context
func GetIdentity(r *http.Request) (authz.Identity, bool) {
	identity, ok := r.Context().Value(contextkeys.IdentityKey).(authz.Identity)
	return identity, ok
}
