package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"atlas-auth/internal/tenant"
)

type scoper interface {
	Scope(ctx context.Context, ns tenant.Namespace, fn func(ctx context.Context) error) error
}

type schemaChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Tenant selects the namespace from the X-Tenant-Schema header, falling back
// to the default, and runs the rest of the chain on a connection scoped to it.
// A namespace other than the default must already be provisioned.
func Tenant(s scoper, schemas schemaChecker, fallback tenant.Namespace) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ns, err := tenant.Parse(r.Header.Get(tenant.Header), fallback.String())
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_TENANT", err.Error())
				return
			}

			if ns != fallback {
				exists, err := schemas.Exists(r.Context(), ns.String())
				if err != nil {
					slog.ErrorContext(r.Context(), "check tenant exists failed", "tenant", ns.String(), "error", err)
					writeError(w, http.StatusServiceUnavailable, "TENANT_UNAVAILABLE", "Tenant database is unavailable")
					return
				}
				if !exists || tenant.IsSystem(ns.String()) {
					writeError(w, http.StatusNotFound, "UNKNOWN_TENANT", "Tenant "+ns.String()+" does not exist")
					return
				}
			}

			entered := false
			err = s.Scope(r.Context(), ns, func(ctx context.Context) error {
				entered = true
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil && !entered {
				slog.ErrorContext(r.Context(), "open tenant scope failed", "tenant", ns.String(), "error", err)
				writeError(w, http.StatusServiceUnavailable, "TENANT_UNAVAILABLE", "Tenant database is unavailable")
			}
		})
	}
}
