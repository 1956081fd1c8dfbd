package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
	"atlas-auth/pkg/apierror"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) model.APIResponse {
	t.Helper()
	var body model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"api error", apierror.BadRequest("bad skip", "skip"), http.StatusBadRequest, "BAD_REQUEST"},
		{"credentials", model.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"token invalid", fmt.Errorf("refresh: %w", model.ErrTokenInvalid), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token not found", model.ErrTokenNotFound, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"unauthorized", model.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", fmt.Errorf("delete self: %w", model.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{"not found", fmt.Errorf("user u1: %w", model.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", fmt.Errorf("username taken: %w", model.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"invalid tenant", model.ErrInvalidTenant, http.StatusBadRequest, "INVALID_TENANT"},
		{"invalid input", fmt.Errorf("level: %w", model.ErrInvalidInput), http.StatusBadRequest, "BAD_REQUEST"},
		{"no scope", model.ErrNoTenantScope, http.StatusServiceUnavailable, "TENANT_UNAVAILABLE"},
		{"unknown", fmt.Errorf("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			body := decodeResponse(t, rec)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("dial tcp 10.0.0.5:5432: refused"))

	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice"}`))
		var dst model.LoginRequest
		require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
		assert.Equal(t, "alice", dst.Username)
	})

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var dst model.LoginRequest
		err := decodeJSON(httptest.NewRecorder(), req, &dst)
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "request body is required", apiErr.Message)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":`))
		var dst model.LoginRequest
		err := decodeJSON(httptest.NewRecorder(), req, &dst)
		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	})
}

func TestPageParams(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?skip=20&limit=10", nil)
	skip, limit, err := pageParams(req)
	require.NoError(t, err)
	assert.Equal(t, 20, skip)
	assert.Equal(t, 10, limit)

	req = httptest.NewRequest(http.MethodGet, "/?limit=-1", nil)
	_, _, err = pageParams(req)
	assert.Error(t, err)

	req = httptest.NewRequest(http.MethodGet, "/?skip=abc", nil)
	_, _, err = pageParams(req)
	assert.Error(t, err)
}

func TestPageMeta(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	meta := pageMeta(r, 20, 10, 45)
	assert.Equal(t, &model.Meta{Skip: 20, Page: 3, Limit: 10, Total: 45, TotalPages: 5}, meta)

	meta = pageMeta(r, 0, 0, 7)
	assert.Equal(t, &model.Meta{Page: 1, Limit: 100, Total: 7, TotalPages: 1}, meta)

	meta = pageMeta(r, 0, 1000, 0)
	assert.Equal(t, &model.Meta{Page: 1, Limit: 500, Total: 0, TotalPages: 0}, meta)

	scoped := r.WithContext(tenant.WithNamespace(r.Context(), tenant.MustParse("acme")))
	meta = pageMeta(scoped, 5, 10, 12)
	assert.Equal(t, &model.Meta{Tenant: "acme", Skip: 5, Page: 1, Limit: 10, Total: 12, TotalPages: 2}, meta)
}

func TestWriteMessage(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	writeMessage(rec, http.StatusOK, "Role deleted successfully")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeResponse(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Role deleted successfully", body.Message)
	assert.Nil(t, body.Data)
	assert.Nil(t, body.Error)
}
