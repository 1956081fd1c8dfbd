package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type stubVerifier struct {
	tokens map[string]*model.AuthClaims
	bound  []bool
}

func (s *stubVerifier) VerifyAccessToken(token string, _ *model.ClientContext, bind bool) (*model.AuthClaims, error) {
	s.bound = append(s.bound, bind)
	claims, ok := s.tokens[token]
	if !ok {
		return nil, model.ErrTokenInvalid
	}
	return claims, nil
}

type stubGrants struct {
	roles map[string][]model.UserRoleDetail
	err   error
	calls int
}

func (s *stubGrants) Load(_ context.Context, userID string) (*service.Grants, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return service.NewGrants(userID, "ATLAS", s.roles[userID]), nil
}

func (s *stubGrants) ServiceApp() string { return "ATLAS" }

func newTestAuth() (*AuthMiddleware, *stubVerifier, *stubGrants) {
	verifier := &stubVerifier{tokens: map[string]*model.AuthClaims{
		"admin-token":  {UserID: "admin"},
		"editor-token": {UserID: "editor"},
		"member-token": {UserID: "member"},
	}}
	grants := &stubGrants{roles: map[string][]model.UserRoleDetail{
		"admin": {{AppCode: "ATLAS", RoleCode: "ADMIN", RoleLevel: 80,
			Permissions: model.GranularPermissions(map[string][]string{"users": {"read"}})}},
		"editor": {{AppCode: "ATLAS", RoleCode: "EDITOR", RoleLevel: 50,
			Permissions: model.GranularPermissions(map[string][]string{"users": {"read"}})}},
		"member": {{AppCode: "CRM", RoleCode: "ADMIN", RoleLevel: 80, Permissions: model.WildcardPermissions()}},
	}}
	return NewAuthMiddleware(verifier, grants, true, []int{100, 80}), verifier, grants
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestAuthenticate_AnonymousAndClaims(t *testing.T) {
	t.Parallel()
	auth, verifier, _ := newTestAuth()

	var seen *model.AuthClaims
	h := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen)

	rec = serve(h, "garbage")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen)

	rec = serve(h, "admin-token")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.UserID)
	assert.Equal(t, []bool{true, true}, verifier.bound)
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()
	auth, _, _ := newTestAuth()
	h := chain(okHandler(), auth.Authenticate, auth.RequireAuth)

	rec := serve(h, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "Not authenticated")

	rec = serve(h, "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired token")

	assert.Equal(t, http.StatusOK, serve(h, "member-token").Code)
}

func TestAdminGuards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		permission string
		wantStatus int
		wantBody   string
	}{
		{"admin with permission", "admin-token", "users:read", http.StatusOK, ""},
		{"admin without permission", "admin-token", "users:delete", http.StatusForbidden, "Requires: users:delete"},
		{"level too low", "editor-token", "users:read", http.StatusForbidden, "Insufficient role level"},
		{"no service app role", "member-token", "users:read", http.StatusForbidden, "Access to application ATLAS"},
		{"anonymous", "", "users:read", http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth, _, _ := newTestAuth()
			h := chain(okHandler(), append([]func(http.Handler) http.Handler{auth.Authenticate}, auth.Admin(tt.permission)...)...)

			rec := serve(h, tt.token)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestGuards_LoadGrantsOncePerRequest(t *testing.T) {
	t.Parallel()
	auth, _, grants := newTestAuth()
	h := chain(okHandler(), append([]func(http.Handler) http.Handler{auth.Authenticate}, auth.Admin("users:read")...)...)

	assert.Equal(t, http.StatusOK, serve(h, "admin-token").Code)
	assert.Equal(t, 1, grants.calls)

	assert.Equal(t, http.StatusOK, serve(h, "admin-token").Code)
	assert.Equal(t, 2, grants.calls)
}

func TestGuards_GrantsFailure(t *testing.T) {
	t.Parallel()
	auth, _, grants := newTestAuth()
	grants.err = errors.New("db down")

	h := chain(okHandler(), auth.Authenticate, auth.RequirePermission("users:read"))
	rec := serve(h, "admin-token")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	grants.err = model.ErrNoTenantScope
	rec = serve(h, "admin-token")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"standard":   {"Bearer abc", "abc", true},
		"lower case": {"bearer abc", "abc", true},
		"basic":      {"Basic abc", "", false},
		"empty":      {"Bearer   ", "", false},
		"missing":    {"", "", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			got, ok := bearerToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
