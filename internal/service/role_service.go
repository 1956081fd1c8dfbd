package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"atlas-auth/internal/model"
)

type RoleService struct {
	roles RoleStore
	apps  ApplicationStore
}

func NewRoleService(roles RoleStore, apps ApplicationStore) *RoleService {
	return &RoleService{roles: roles, apps: apps}
}

func (s *RoleService) Get(ctx context.Context, id string) (model.Role, error) {
	return s.roles.FindByID(ctx, id)
}

func (s *RoleService) List(ctx context.Context, filter model.RoleFilter) ([]model.Role, int, error) {
	filter.Skip, filter.Limit = NormalizePage(filter.Skip, filter.Limit)
	return s.roles.List(ctx, filter)
}

func (s *RoleService) Create(ctx context.Context, req model.CreateRoleRequest) (model.Role, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return model.Role{}, fmt.Errorf("%w: code and name are required", model.ErrInvalidInput)
	}

	if _, err := s.apps.FindByID(ctx, req.ApplicationID); err != nil {
		return model.Role{}, err
	}

	doc, err := ParsePermissions(req.Permissions)
	if err != nil {
		return model.Role{}, err
	}

	taken, err := s.roles.ExistsByCode(ctx, req.ApplicationID, code, "")
	if err != nil {
		return model.Role{}, err
	}
	if taken {
		return model.Role{}, fmt.Errorf("%w: role code %s already exists in this application", model.ErrConflict, code)
	}

	return s.roles.Create(ctx, model.Role{
		ApplicationID: req.ApplicationID,
		Code:          code,
		Name:          name,
		Level:         req.Level,
		Permissions:   doc,
	})
}

func (s *RoleService) Update(ctx context.Context, id string, req model.UpdateRoleRequest) (model.Role, error) {
	current, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return model.Role{}, err
	}

	var upd model.RoleUpdate
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code == "" {
			return model.Role{}, fmt.Errorf("%w: code must not be empty", model.ErrInvalidInput)
		}
		taken, err := s.roles.ExistsByCode(ctx, current.ApplicationID, code, id)
		if err != nil {
			return model.Role{}, err
		}
		if taken {
			return model.Role{}, fmt.Errorf("%w: role code %s already exists in this application", model.ErrConflict, code)
		}
		upd.Code = &code
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return model.Role{}, fmt.Errorf("%w: name must not be empty", model.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if req.Level != nil {
		upd.Level = req.Level
	}
	if len(req.Permissions) > 0 {
		doc, err := ParsePermissions(req.Permissions)
		if err != nil {
			return model.Role{}, err
		}
		upd.Permissions = &doc
	}

	return s.roles.Update(ctx, id, upd)
}

// UpdatePermissions replaces the role's permission document.
func (s *RoleService) UpdatePermissions(ctx context.Context, id string, raw json.RawMessage) (model.Role, error) {
	if len(raw) == 0 {
		return model.Role{}, fmt.Errorf("%w: permissions are required", model.ErrInvalidInput)
	}

	doc, err := ParsePermissions(raw)
	if err != nil {
		return model.Role{}, err
	}

	if _, err := s.roles.FindByID(ctx, id); err != nil {
		return model.Role{}, err
	}
	return s.roles.Update(ctx, id, model.RoleUpdate{Permissions: &doc})
}

func (s *RoleService) Delete(ctx context.Context, id string) error {
	return s.roles.Delete(ctx, id)
}

// ParsePermissions strictly decodes administrative permission input. An empty
// input is an empty grant.
func ParsePermissions(raw json.RawMessage) (model.PermissionDocument, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return model.GranularPermissions(nil), nil
	}

	var doc model.PermissionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.PermissionDocument{}, err
	}
	return doc, nil
}
