package testkit

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"atlas-auth/internal/mailer"
	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

// Scoper binds the namespace to ctx and records every scope it opened.
type Scoper struct {
	mu    sync.Mutex
	Calls []string
	Err   error
}

func (s *Scoper) Scope(ctx context.Context, ns tenant.Namespace, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, ns.String())
	err := s.Err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return fn(tenant.WithNamespace(ctx, ns))
}

// Migrator records the namespaces it migrated.
type Migrator struct {
	mu       sync.Mutex
	Migrated []string
	Err      error
}

func (m *Migrator) Up(ns tenant.Namespace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Migrated = append(m.Migrated, ns.String())
	return nil
}

// Mailer records sent messages.
type Mailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.Err
}

func (m *Mailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

// MustHash hashes a password at minimum cost.
func MustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// AddUser inserts an active, verified user with the given password.
func (s *Store) AddUser(username, email, password string) model.User {
	user, err := s.Users().Create(context.Background(), model.User{
		Username:      username,
		Email:         email,
		PasswordHash:  MustHash(password),
		Status:        model.UserStatusActive,
		EmailVerified: true,
	})
	if err != nil {
		panic(err)
	}
	return user
}

func (s *Store) AddApplication(code, name string) model.Application {
	app, err := s.Applications().Create(context.Background(), model.Application{Code: code, Name: name})
	if err != nil {
		panic(err)
	}
	return app
}

func (s *Store) AddRole(appID, code string, level int, perms model.PermissionDocument) model.Role {
	role, err := s.Roles().Create(context.Background(), model.Role{
		ApplicationID: appID,
		Code:          code,
		Name:          code,
		Level:         level,
		Permissions:   perms,
	})
	if err != nil {
		panic(err)
	}
	return role
}

func (s *Store) Assign(userID, roleID string) {
	if _, _, err := s.UserRoles().Assign(context.Background(), userID, roleID); err != nil {
		panic(err)
	}
}
