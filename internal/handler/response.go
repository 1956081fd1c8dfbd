package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"atlas-auth/internal/middleware"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
	"atlas-auth/internal/tenant"
	"atlas-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Message: message,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Incorrect username or password"
	} else if errors.Is(err, model.ErrTokenInvalid) || errors.Is(err, model.ErrTokenNotFound) {
		status = http.StatusUnauthorized
		body.Code = "INVALID_TOKEN"
		body.Message = "Invalid or expired token"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Resource not found"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrConflict) {
		status = http.StatusConflict
		body.Code = "CONFLICT"
		body.Message = "Resource already exists"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrInvalidTenant) {
		status = http.StatusBadRequest
		body.Code = "INVALID_TENANT"
		body.Message = "Invalid tenant namespace"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrNoTenantScope) {
		status = http.StatusServiceUnavailable
		body.Code = "TENANT_UNAVAILABLE"
		body.Message = "Tenant database is unavailable"
		slog.Error("request ran without tenant scope", "error", err.Error())
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a bounded JSON body into dst. An empty body is rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is required", "")
		}
		return apierror.BadRequest("invalid JSON body", err.Error())
	}
	return nil
}

// pageParams reads skip and limit from the query string.
func pageParams(r *http.Request) (int, int, error) {
	skip, err := intParam(r, "skip")
	if err != nil {
		return 0, 0, err
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	return skip, limit, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apierror.BadRequest(name+" must be a non-negative integer", name)
	}
	return v, nil
}

func pageMeta(r *http.Request, skip, limit, total int) *model.Meta {
	skip, limit = service.NormalizePage(skip, limit)
	return &model.Meta{
		Tenant:     tenant.NameFromContext(r.Context()),
		Skip:       skip,
		Page:       skip/limit + 1,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}
}

func actorID(r *http.Request) string {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}
