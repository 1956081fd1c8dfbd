package service

import (
	"context"
	"fmt"

	"atlas-auth/internal/event"
	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

type UserRoleService struct {
	userRoles UserRoleStore
	users     UserStore
	roles     RoleStore
	bus       event.Bus
}

func NewUserRoleService(userRoles UserRoleStore, users UserStore, roles RoleStore, bus event.Bus) *UserRoleService {
	if bus == nil {
		bus = event.Nop{}
	}
	return &UserRoleService{userRoles: userRoles, users: users, roles: roles, bus: bus}
}

// Assign gives the user each role. Roles already held are returned unchanged.
func (s *UserRoleService) Assign(ctx context.Context, actorID, userID string, roleIDs ...string) ([]model.UserRole, error) {
	if len(roleIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one role_id is required", model.ErrInvalidInput)
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	assigned := make([]model.UserRole, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if _, err := s.roles.FindByID(ctx, roleID); err != nil {
			return nil, err
		}

		ur, created, err := s.userRoles.Assign(ctx, userID, roleID)
		if err != nil {
			return nil, err
		}
		if created {
			s.bus.Publish(event.New(event.TypeRoleAssigned, tenant.NameFromContext(ctx), actorID,
				map[string]string{"user_id": userID, "role_id": roleID}))
		}
		assigned = append(assigned, ur)
	}
	return assigned, nil
}

func (s *UserRoleService) Revoke(ctx context.Context, actorID, userID, roleID string) error {
	if err := s.userRoles.Revoke(ctx, userID, roleID); err != nil {
		return err
	}
	s.bus.Publish(event.New(event.TypeRoleRevoked, tenant.NameFromContext(ctx), actorID,
		map[string]string{"user_id": userID, "role_id": roleID}))
	return nil
}

func (s *UserRoleService) List(ctx context.Context, userID string) ([]model.UserRoleDetail, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.userRoles.ListByUser(ctx, userID)
}
