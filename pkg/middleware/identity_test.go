package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliohq/folio/pkg/authz"
)

func TestIdentityMiddleware(t *testing.T) {
	var captured authz.Identity
	var present bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, present = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid headers", func(t *testing.T) {
		handler := NewIdentityMiddleware(false).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "42")
		req.Header.Set(HeaderOrgID, "7")
		req.Header.Set(HeaderSuperAdmin, "true")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, present)
		assert.Equal(t, int64(42), captured.UserID)
		assert.Equal(t, int64(7), captured.OrganizationID)
		assert.True(t, captured.SuperAdmin)
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		handler := NewIdentityMiddleware(false).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing headers allowed when optional", func(t *testing.T) {
		handler := NewIdentityMiddleware(true).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, present)
	})

	t.Run("malformed user id rejected", func(t *testing.T) {
		handler := NewIdentityMiddleware(false).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "robot")
		req.Header.Set(HeaderOrgID, "7")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("super admin defaults false", func(t *testing.T) {
		handler := NewIdentityMiddleware(false).Handler(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "42")
		req.Header.Set(HeaderOrgID, "7")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, captured.SuperAdmin)
	})
}
