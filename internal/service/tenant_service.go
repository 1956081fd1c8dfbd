package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"atlas-auth/internal/event"
	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

const (
	SeedAdminUsername = "admin"
	SeedAdminEmail    = "admin@atlas.local"
)

type TenantServiceConfig struct {
	Schemas       SchemaStore
	Migrator      SchemaMigrator
	Scoper        Scoper
	Seeder        Seeder
	DefaultSchema tenant.Namespace
	ServiceApp    string
	AdminPassword string
	Bus           event.Bus
	Logger        *slog.Logger
}

// TenantService provisions and removes tenant namespaces.
type TenantService struct {
	schemas       SchemaStore
	migrator      SchemaMigrator
	scoper        Scoper
	seeder        Seeder
	defaultSchema tenant.Namespace
	serviceApp    string
	adminPassword string
	bus           event.Bus
	logger        *slog.Logger
}

func NewTenantService(cfg TenantServiceConfig) *TenantService {
	if cfg.Bus == nil {
		cfg.Bus = event.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &TenantService{
		schemas:       cfg.Schemas,
		migrator:      cfg.Migrator,
		scoper:        cfg.Scoper,
		seeder:        cfg.Seeder,
		defaultSchema: cfg.DefaultSchema,
		serviceApp:    cfg.ServiceApp,
		adminPassword: cfg.AdminPassword,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
	}
}

// Create provisions a new namespace: schema, migrations and default data. A
// namespace that fails to provision is dropped again.
func (s *TenantService) Create(ctx context.Context, actorID, name string) (model.Tenant, error) {
	ns, err := tenant.Parse(name, "")
	if err != nil {
		return model.Tenant{}, err
	}
	if tenant.IsSystem(ns.String()) || ns == s.defaultSchema {
		return model.Tenant{}, fmt.Errorf("%w: %s is reserved", model.ErrInvalidTenant, ns)
	}

	exists, err := s.schemas.Exists(ctx, ns.String())
	if err != nil {
		return model.Tenant{}, err
	}
	if exists {
		return model.Tenant{}, fmt.Errorf("%w: tenant %s already exists", model.ErrConflict, ns)
	}

	if err := s.schemas.Create(ctx, ns); err != nil {
		return model.Tenant{}, err
	}

	if err := s.provision(ctx, ns); err != nil {
		if dropErr := s.schemas.Drop(context.WithoutCancel(ctx), ns); dropErr != nil {
			s.logger.Error("rollback of failed tenant provisioning failed", "tenant", ns.String(), "error", dropErr)
		}
		return model.Tenant{}, err
	}

	s.logger.Info("tenant created", "tenant", ns.String())
	s.bus.Publish(event.New(event.TypeTenantCreated, ns.String(), actorID, nil))
	return model.Tenant{Name: ns.String()}, nil
}

// EnsureDefault migrates and seeds the default namespace at startup.
func (s *TenantService) EnsureDefault(ctx context.Context) error {
	if err := s.schemas.Create(ctx, s.defaultSchema); err != nil {
		return err
	}
	return s.provision(ctx, s.defaultSchema)
}

// MigrateAll brings every existing tenant namespace to the latest schema.
func (s *TenantService) MigrateAll(ctx context.Context) error {
	names, err := s.schemas.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		ns, err := tenant.Parse(name, "")
		if err != nil {
			s.logger.Warn("skipping schema with invalid name", "schema", name)
			continue
		}
		if err := s.migrator.Up(ns); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TenantService) provision(ctx context.Context, ns tenant.Namespace) error {
	if err := s.migrator.Up(ns); err != nil {
		return err
	}

	data, generated, err := BuildSeedData(s.serviceApp, s.adminPassword)
	if err != nil {
		return err
	}

	err = s.scoper.Scope(ctx, ns, func(ctx context.Context) error {
		return s.seeder.Seed(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("seed tenant %s: %w", ns, err)
	}

	if generated != "" {
		s.logger.Warn("seeded admin account with generated password; change it after first login",
			"tenant", ns.String(), "username", SeedAdminUsername, "initial_secret", generated)
	}
	return nil
}

func (s *TenantService) List(ctx context.Context) ([]model.Tenant, error) {
	names, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}

	tenants := make([]model.Tenant, 0, len(names))
	for _, name := range names {
		tenants = append(tenants, model.Tenant{Name: name})
	}
	return tenants, nil
}

func (s *TenantService) Get(ctx context.Context, name string) (model.Tenant, error) {
	ns, err := tenant.Parse(name, "")
	if err != nil {
		return model.Tenant{}, err
	}

	exists, err := s.schemas.Exists(ctx, ns.String())
	if err != nil {
		return model.Tenant{}, err
	}
	if !exists || tenant.IsSystem(ns.String()) {
		return model.Tenant{}, fmt.Errorf("%w: tenant %s", model.ErrNotFound, ns)
	}
	return model.Tenant{Name: ns.String()}, nil
}

// Delete drops a tenant namespace and everything in it. System schemas and
// the default namespace cannot be deleted.
func (s *TenantService) Delete(ctx context.Context, actorID, name string) error {
	ns, err := tenant.Parse(name, "")
	if err != nil {
		return err
	}
	if tenant.IsSystem(ns.String()) || ns == s.defaultSchema {
		return fmt.Errorf("%w: tenant %s cannot be deleted", model.ErrForbidden, ns)
	}

	if _, err := s.Get(ctx, ns.String()); err != nil {
		return err
	}

	if err := s.schemas.Drop(ctx, ns); err != nil {
		return err
	}

	s.logger.Info("tenant deleted", "tenant", ns.String())
	s.bus.Publish(event.New(event.TypeTenantDeleted, ns.String(), actorID, nil))
	return nil
}

// BuildSeedData returns the default application, roles and admin account. If
// adminPassword is empty a random one is generated and returned.
func BuildSeedData(serviceApp, adminPassword string) (SeedData, string, error) {
	generated := ""
	if adminPassword == "" {
		buf := make([]byte, 18)
		if _, err := rand.Read(buf); err != nil {
			return SeedData{}, "", fmt.Errorf("generate admin password: %w", err)
		}
		adminPassword = base64.RawURLEncoding.EncodeToString(buf)
		generated = adminPassword
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return SeedData{}, "", fmt.Errorf("seed admin password: %w", err)
	}

	data := SeedData{
		Application: model.Application{
			ID:          uuid.NewString(),
			Code:        serviceApp,
			Name:        "Atlas Identity",
			Description: "Authentication and authorization service",
		},
		Roles: []model.Role{
			{
				ID:          uuid.NewString(),
				Code:        model.RoleCodeSuperAdmin,
				Name:        "Super Administrator",
				Level:       100,
				Permissions: model.WildcardPermissions(),
			},
			{
				ID:    uuid.NewString(),
				Code:  "ADMIN",
				Name:  "Administrator",
				Level: 80,
				Permissions: model.GranularPermissions(map[string][]string{
					"users": {"read", "create", "update"},
					"roles": {"read", "create"},
				}),
			},
			{
				ID:    uuid.NewString(),
				Code:  "USER",
				Name:  "User",
				Level: 10,
				Permissions: model.GranularPermissions(map[string][]string{
					"profile": {"read", "update"},
				}),
			},
		},
		Admin: model.User{
			ID:            uuid.NewString(),
			Username:      SeedAdminUsername,
			Email:         SeedAdminEmail,
			PasswordHash:  hash,
			FullName:      "Administrator",
			Status:        model.UserStatusActive,
			EmailVerified: true,
		},
		AdminRole: model.RoleCodeSuperAdmin,
	}
	return data, generated, nil
}
