package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/tenant"
	"atlas-auth/internal/testkit"
)

func TestTenant(t *testing.T) {
	t.Parallel()

	scoper := &testkit.Scoper{}
	store := testkit.NewStore()
	require.NoError(t, store.Schemas().Create(context.Background(), tenant.MustParse("acme")))
	var seen string
	h := Tenant(scoper, store.Schemas(), tenant.MustParse("public"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tenant.NameFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("default", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "public", seen)
	})

	t.Run("header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tenant.Header, "acme")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", seen)
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tenant.Header, "acme; DROP SCHEMA public")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TENANT")
	})

	t.Run("unknown", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tenant.Header, "acme_typo")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNKNOWN_TENANT")
	})

	t.Run("system schema", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(tenant.Header, "pg_catalog")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	assert.Equal(t, []string{"public", "acme"}, scoper.Calls)
}

func TestTenant_ScopeFailure(t *testing.T) {
	t.Parallel()

	scoper := &testkit.Scoper{Err: errors.New("pool exhausted")}
	h := Tenant(scoper, testkit.NewStore().Schemas(), tenant.MustParse("public"))(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTenant_ExistenceCheckFailure(t *testing.T) {
	t.Parallel()

	store := testkit.NewStore()
	store.FailOn("schemas.Exists", errors.New("connection refused"))
	scoper := &testkit.Scoper{}
	h := Tenant(scoper, store.Schemas(), tenant.MustParse("public"))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(tenant.Header, "acme")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, scoper.Calls)
}
