package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type accessVerifier interface {
	VerifyAccessToken(token string, client *model.ClientContext, bindClient bool) (*model.AuthClaims, error)
}

type grantsLoader interface {
	Load(ctx context.Context, userID string) (*service.Grants, error)
	ServiceApp() string
}

type contextKey string

const authStateContextKey contextKey = "auth_state"

// authState is created once per request. Grants are loaded on first use and
// reused by every later guard in the chain.
type authState struct {
	claims   *model.AuthClaims
	rejected bool
	grants   *service.Grants
	err      error
	loaded   bool
}

type AuthMiddleware struct {
	verifier        accessVerifier
	rbac            grantsLoader
	bindFingerprint bool
	adminLevels     []int
}

func NewAuthMiddleware(verifier accessVerifier, rbac grantsLoader, bindFingerprint bool, adminLevels []int) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:        verifier,
		rbac:            rbac,
		bindFingerprint: bindFingerprint,
		adminLevels:     adminLevels,
	}
}

// Authenticate resolves the bearer token, if any. A missing or invalid token
// leaves the request anonymous; guards decide whether that is acceptable.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := &authState{}

		if token, ok := bearerToken(r); ok {
			claims, err := m.verifier.VerifyAccessToken(token, ClientFromRequest(r), m.bindFingerprint)
			if err != nil {
				state.rejected = true
			} else {
				state.claims = claims
			}
		}

		ctx := context.WithValue(r.Context(), authStateContextKey, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := stateFromContext(r.Context())
		if state == nil || state.claims == nil {
			message := "Not authenticated"
			if state != nil && state.rejected {
				message = "Invalid or expired token"
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAppAccess allows holders of any role in appCode, and service super
// admins. An empty appCode means the service's own application.
func (m *AuthMiddleware) RequireAppAccess(appCode string) func(http.Handler) http.Handler {
	if appCode == "" {
		appCode = m.rbac.ServiceApp()
	}
	return m.guard(func(g *service.Grants) (bool, string) {
		return g.HasAppAccess(appCode), fmt.Sprintf("Access to application %s is required", appCode)
	})
}

// RequireRoleLevel allows users holding a service-application role at one of
// levels. With no levels the configured admin levels apply.
func (m *AuthMiddleware) RequireRoleLevel(levels ...int) func(http.Handler) http.Handler {
	if len(levels) == 0 {
		levels = m.adminLevels
	}
	return m.guard(func(g *service.Grants) (bool, string) {
		return g.HasRoleLevel(levels), "Insufficient role level"
	})
}

func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return m.guard(func(g *service.Grants) (bool, string) {
		return g.HasPermission(permission), "Not enough permissions. Requires: " + permission
	})
}

// Admin chains authentication, service application access, an admin role
// level and the given permission.
func (m *AuthMiddleware) Admin(permission string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		m.RequireAuth,
		m.RequireAppAccess(""),
		m.RequireRoleLevel(),
		m.RequirePermission(permission),
	}
}

func (m *AuthMiddleware) guard(check func(*service.Grants) (bool, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := stateFromContext(r.Context())
			if state == nil || state.claims == nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
				return
			}

			grants, err := m.grants(r.Context(), state)
			if err != nil {
				slog.ErrorContext(r.Context(), "load grants failed", "user_id", state.claims.UserID, "error", err)
				status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
				if errors.Is(err, model.ErrNoTenantScope) {
					status, code = http.StatusServiceUnavailable, "TENANT_UNAVAILABLE"
				}
				writeError(w, status, code, "Could not resolve permissions")
				return
			}

			if ok, message := check(grants); !ok {
				writeError(w, http.StatusForbidden, "FORBIDDEN", message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) grants(ctx context.Context, state *authState) (*service.Grants, error) {
	if !state.loaded {
		state.grants, state.err = m.rbac.Load(ctx, state.claims.UserID)
		state.loaded = true
	}
	return state.grants, state.err
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	state := stateFromContext(ctx)
	if state == nil || state.claims == nil {
		return nil, false
	}
	return state.claims, true
}

func stateFromContext(ctx context.Context) *authState {
	state, _ := ctx.Value(authStateContextKey).(*authState)
	return state
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// ClientFromRequest derives the client context used for token fingerprints.
func ClientFromRequest(r *http.Request) *model.ClientContext {
	return &model.ClientContext{
		UserAgent: r.UserAgent(),
		IPAddress: extractClientIP(r),
	}
}
