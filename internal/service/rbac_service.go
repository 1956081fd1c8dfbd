package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"atlas-auth/internal/model"
)

// Grants is the loaded set of role assignments of one user. All checks on it
// are pure and safe to repeat within a request.
type Grants struct {
	UserID     string
	Roles      []model.UserRoleDetail
	serviceApp string
}

func NewGrants(userID, serviceApp string, roles []model.UserRoleDetail) *Grants {
	return &Grants{UserID: userID, Roles: roles, serviceApp: serviceApp}
}

// Permissions unions the expanded documents of every role. Any wildcard role
// makes the whole set a wildcard.
func (g *Grants) Permissions() model.PermissionSet {
	set := model.NewPermissionSet()
	for _, role := range g.Roles {
		if role.Permissions.IsWildcard() {
			return model.WildcardPermissionSet()
		}
		set.Merge(role.Permissions)
	}
	return set
}

func (g *Grants) HasPermission(permission string) bool {
	return g.Permissions().Has(permission)
}

// IsSuperAdmin reports whether the user holds SUPER_ADMIN in the service's
// own application.
func (g *Grants) IsSuperAdmin() bool {
	for _, role := range g.Roles {
		if role.AppCode == g.serviceApp && role.RoleCode == model.RoleCodeSuperAdmin {
			return true
		}
	}
	return false
}

// HasAppAccess is true for service super admins and for anyone holding at
// least one role in appCode.
func (g *Grants) HasAppAccess(appCode string) bool {
	if g.IsSuperAdmin() {
		return true
	}
	for _, role := range g.Roles {
		if role.AppCode == appCode {
			return true
		}
	}
	return false
}

// HasRoleLevel is true for service super admins and for anyone holding a role
// in the service application whose level is one of allowed.
func (g *Grants) HasRoleLevel(allowed []int) bool {
	if g.IsSuperAdmin() {
		return true
	}
	for _, role := range g.Roles {
		if role.AppCode == g.serviceApp && slices.Contains(allowed, role.RoleLevel) {
			return true
		}
	}
	return false
}

// RBACService resolves role grants from the user-role store.
type RBACService struct {
	userRoles  UserRoleStore
	serviceApp string
}

func NewRBACService(userRoles UserRoleStore, serviceApp string) *RBACService {
	return &RBACService{userRoles: userRoles, serviceApp: serviceApp}
}

func (s *RBACService) ServiceApp() string {
	return s.serviceApp
}

// Load reads all of a user's grants in a single query.
func (s *RBACService) Load(ctx context.Context, userID string) (*Grants, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrInvalidInput)
	}

	roles, err := s.userRoles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	return NewGrants(userID, s.serviceApp, roles), nil
}

func (s *RBACService) GetRoles(ctx context.Context, userID string) ([]model.UserRoleDetail, error) {
	g, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.Roles, nil
}

func (s *RBACService) GetPermissions(ctx context.Context, userID string) (model.PermissionSet, error) {
	g, err := s.Load(ctx, userID)
	if err != nil {
		return model.PermissionSet{}, err
	}
	return g.Permissions(), nil
}

func (s *RBACService) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	g, err := s.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return g.HasPermission(permission), nil
}

func (s *RBACService) HasAppAccess(ctx context.Context, userID, appCode string) (bool, error) {
	g, err := s.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return g.HasAppAccess(appCode), nil
}

func (s *RBACService) HasRoleLevel(ctx context.Context, userID string, allowed []int) (bool, error) {
	g, err := s.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return g.HasRoleLevel(allowed), nil
}
