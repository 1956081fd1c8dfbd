package service

import (
	"context"
	"time"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

// UserStore is the credential store. Lookups that find nothing return an
// error wrapping model.ErrNotFound.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error)
	ExistsByUsername(ctx context.Context, username string, excludeID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	Update(ctx context.Context, id string, upd model.UserUpdate) (model.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, skip, limit int) ([]model.User, int, error)
}

// RefreshTokenStore persists refresh token hashes. FindByHash only returns
// unexpired records and reports absence as model.ErrTokenNotFound.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error)
	FindByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type ApplicationStore interface {
	FindByID(ctx context.Context, id string) (model.Application, error)
	FindByCode(ctx context.Context, code string) (model.Application, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, app model.Application) (model.Application, error)
	Update(ctx context.Context, id string, upd model.ApplicationUpdate) (model.Application, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, skip, limit int) ([]model.Application, int, error)
	ListMembers(ctx context.Context, appID string) ([]model.ApplicationMember, error)
}

type RoleStore interface {
	FindByID(ctx context.Context, id string) (model.Role, error)
	ExistsByCode(ctx context.Context, appID, code string, excludeID string) (bool, error)
	Create(ctx context.Context, role model.Role) (model.Role, error)
	Update(ctx context.Context, id string, upd model.RoleUpdate) (model.Role, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter model.RoleFilter) ([]model.Role, int, error)
}

// UserRoleStore manages role assignments. ListByUser joins each assignment
// with its role and application, ordered by application name, role level
// descending, then role name.
type UserRoleStore interface {
	Assign(ctx context.Context, userID, roleID string) (model.UserRole, bool, error)
	Revoke(ctx context.Context, userID, roleID string) error
	ListByUser(ctx context.Context, userID string) ([]model.UserRoleDetail, error)
}

// SchemaStore manages tenant namespaces. It works on the shared pool, not a
// tenant-scoped connection.
type SchemaStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Create(ctx context.Context, ns tenant.Namespace) error
	Drop(ctx context.Context, ns tenant.Namespace) error
}

// SchemaMigrator brings a namespace to the latest schema version.
type SchemaMigrator interface {
	Up(ns tenant.Namespace) error
}

// Transactor runs fn atomically: every store write made through the ctx it
// receives is committed together or not at all.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Scoper runs fn with a connection bound to ns.
type Scoper interface {
	Scope(ctx context.Context, ns tenant.Namespace, fn func(ctx context.Context) error) error
}

// SeedData is the default content installed into every new namespace.
type SeedData struct {
	Application model.Application
	Roles       []model.Role
	Admin       model.User
	AdminRole   string
}

// Seeder installs SeedData without overwriting existing rows.
type Seeder interface {
	Seed(ctx context.Context, data SeedData) error
}
