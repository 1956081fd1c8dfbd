package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlas-auth/internal/config"
	"atlas-auth/internal/handler"
	"atlas-auth/internal/metrics"
	"atlas-auth/internal/middleware"
	"atlas-auth/internal/tenant"
)

type Scoper interface {
	Scope(ctx context.Context, ns tenant.Namespace, fn func(ctx context.Context) error) error
}

type SchemaChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

type Handlers struct {
	Health      *handler.HealthHandler
	Auth        *handler.AuthHandler
	User        *handler.UserHandler
	Application *handler.ApplicationHandler
	Role        *handler.RoleHandler
	Tenant      *handler.TenantHandler
}

func New(
	cfg *config.Config,
	scoper Scoper,
	schemas SchemaChecker,
	authMiddleware *middleware.AuthMiddleware,
	m *metrics.Metrics,
	h Handlers,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(m.Instrument)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(middleware.Tenant(scoper, schemas, cfg.DefaultNamespace()))
		api.Use(authMiddleware.Authenticate)

		api.Get("/health", h.Health.Health)

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/logout", h.Auth.Logout)
			auth.Post("/request-verification", h.Auth.RequestVerification)
			auth.Post("/verify-email", h.Auth.VerifyEmail)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
		})

		admin := func(permission string) chi.Router {
			return api.With(authMiddleware.Admin(permission)...)
		}

		admin("tenants:read").Get("/tenants", h.Tenant.List)
		admin("tenants:create").Post("/tenants", h.Tenant.Create)
		admin("tenants:read").Get("/tenants/{name}", h.Tenant.Get)
		admin("tenants:delete").Delete("/tenants/{name}", h.Tenant.Delete)

		admin("users:read").Get("/users", h.User.List)
		admin("users:create").Post("/users", h.User.Create)
		admin("users:read").Get("/users/{id}", h.User.Get)
		admin("users:update").Put("/users/{id}", h.User.Update)
		admin("users:update").Patch("/users/{id}", h.User.Update)
		admin("users:delete").Delete("/users/{id}", h.User.Delete)
		admin("users:read").Get("/users/{id}/roles", h.User.ListRoles)
		admin("user_roles:assign").Post("/users/{id}/roles", h.User.AssignRoles)
		admin("user_roles:revoke").Delete("/users/{id}/roles/{roleID}", h.User.RevokeRole)

		admin("applications:read").Get("/applications", h.Application.List)
		admin("applications:create").Post("/applications", h.Application.Create)
		admin("applications:read").Get("/applications/{id}", h.Application.Get)
		admin("applications:read").Get("/applications/{id}/details", h.Application.Details)
		admin("applications:update").Put("/applications/{id}", h.Application.Update)
		admin("applications:delete").Delete("/applications/{id}", h.Application.Delete)

		admin("roles:read").Get("/roles", h.Role.List)
		admin("roles:create").Post("/roles", h.Role.Create)
		admin("roles:read").Get("/roles/{id}", h.Role.Get)
		admin("roles:update").Put("/roles/{id}", h.Role.Update)
		admin("roles:update_permissions").Put("/roles/{id}/permissions", h.Role.UpdatePermissions)
		admin("roles:delete").Delete("/roles/{id}", h.Role.Delete)
	})

	return r
}
