package service

import (
	"context"
	"fmt"
	"strings"

	"atlas-auth/internal/model"
)

type ApplicationService struct {
	apps ApplicationStore
}

func NewApplicationService(apps ApplicationStore) *ApplicationService {
	return &ApplicationService{apps: apps}
}

func (s *ApplicationService) Get(ctx context.Context, id string) (model.Application, error) {
	return s.apps.FindByID(ctx, id)
}

func (s *ApplicationService) List(ctx context.Context, skip, limit int) ([]model.Application, int, error) {
	skip, limit = NormalizePage(skip, limit)
	return s.apps.List(ctx, skip, limit)
}

func (s *ApplicationService) Create(ctx context.Context, req model.CreateApplicationRequest) (model.Application, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return model.Application{}, fmt.Errorf("%w: app_code and app_name are required", model.ErrInvalidInput)
	}

	taken, err := s.apps.ExistsByCode(ctx, code, "")
	if err != nil {
		return model.Application{}, err
	}
	if taken {
		return model.Application{}, fmt.Errorf("%w: application code %s already exists", model.ErrConflict, code)
	}

	return s.apps.Create(ctx, model.Application{
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	})
}

func (s *ApplicationService) Update(ctx context.Context, id string, req model.UpdateApplicationRequest) (model.Application, error) {
	if _, err := s.apps.FindByID(ctx, id); err != nil {
		return model.Application{}, err
	}

	var upd model.ApplicationUpdate
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)
		if code == "" {
			return model.Application{}, fmt.Errorf("%w: app_code must not be empty", model.ErrInvalidInput)
		}
		taken, err := s.apps.ExistsByCode(ctx, code, id)
		if err != nil {
			return model.Application{}, err
		}
		if taken {
			return model.Application{}, fmt.Errorf("%w: application code %s already exists", model.ErrConflict, code)
		}
		upd.Code = &code
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return model.Application{}, fmt.Errorf("%w: app_name must not be empty", model.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		upd.Description = &desc
	}

	return s.apps.Update(ctx, id, upd)
}

func (s *ApplicationService) Delete(ctx context.Context, id string) error {
	return s.apps.Delete(ctx, id)
}

// Details returns the application with its roles and each role's users.
func (s *ApplicationService) Details(ctx context.Context, id string) (model.ApplicationDetails, error) {
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		return model.ApplicationDetails{}, err
	}

	rows, err := s.apps.ListMembers(ctx, id)
	if err != nil {
		return model.ApplicationDetails{}, err
	}

	return model.AssembleApplicationDetails(app, rows), nil
}
