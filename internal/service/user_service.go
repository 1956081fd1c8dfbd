package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"atlas-auth/internal/model"
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Get(ctx context.Context, id string) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, skip, limit int) ([]model.User, int, error) {
	skip, limit = NormalizePage(skip, limit)
	return s.users.List(ctx, skip, limit)
}

func (s *UserService) Create(ctx context.Context, req model.CreateUserRequest) (model.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" {
		return model.User{}, fmt.Errorf("%w: username is required", model.ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}

	status := req.Status
	if status == "" {
		status = model.UserStatusActive
	}
	if !status.Valid() {
		return model.User{}, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, status)
	}

	if err := s.ensureUnique(ctx, username, email, ""); err != nil {
		return model.User{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return model.User{}, err
	}

	return s.users.Create(ctx, model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Status:       status,
	})
}

func (s *UserService) Update(ctx context.Context, id string, req model.UpdateUserRequest) (model.User, error) {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return model.User{}, err
	}

	var upd model.UserUpdate
	var username, email string

	if req.Username != nil {
		username = strings.TrimSpace(*req.Username)
		if username == "" {
			return model.User{}, fmt.Errorf("%w: username must not be empty", model.ErrInvalidInput)
		}
		upd.Username = &username
	}
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
		if err := validateEmail(email); err != nil {
			return model.User{}, err
		}
		upd.Email = &email
	}
	if req.FullName != nil {
		fullName := strings.TrimSpace(*req.FullName)
		upd.FullName = &fullName
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return model.User{}, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, *req.Status)
		}
		upd.Status = req.Status
	}
	if req.EmailVerified != nil {
		upd.EmailVerified = req.EmailVerified
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return model.User{}, err
		}
		upd.PasswordHash = &hash
	}

	if err := s.ensureUnique(ctx, username, email, id); err != nil {
		return model.User{}, err
	}

	return s.users.Update(ctx, id, upd)
}

// Delete removes a user; role assignments and refresh tokens go with it. A
// user cannot delete their own account.
func (s *UserService) Delete(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return fmt.Errorf("%w: you cannot delete your own account", model.ErrForbidden)
	}
	return s.users.Delete(ctx, id)
}

func (s *UserService) ensureUnique(ctx context.Context, username, email, excludeID string) error {
	if username != "" {
		taken, err := s.users.ExistsByUsername(ctx, username, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: username already registered", model.ErrConflict)
		}
	}
	if email != "" {
		taken, err := s.users.ExistsByEmail(ctx, email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email already registered", model.ErrConflict)
		}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", model.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email address", model.ErrInvalidInput)
	}
	return nil
}
