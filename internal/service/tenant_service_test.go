package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
	"atlas-auth/internal/testkit"
)

type mockSeeder struct {
	mock.Mock
}

func (m *mockSeeder) Seed(ctx context.Context, data SeedData) error {
	args := m.Called(tenant.NameFromContext(ctx), data.AdminRole)
	return args.Error(0)
}

type tenantFixture struct {
	store    *testkit.Store
	migrator *testkit.Migrator
	scoper   *testkit.Scoper
	seeder   *mockSeeder
	svc      *TenantService
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()
	f := &tenantFixture{
		store:    testkit.NewStore(),
		migrator: &testkit.Migrator{},
		scoper:   &testkit.Scoper{},
		seeder:   &mockSeeder{},
	}
	f.svc = NewTenantService(TenantServiceConfig{
		Schemas:       f.store.Schemas(),
		Migrator:      f.migrator,
		Scoper:        f.scoper,
		Seeder:        f.seeder,
		DefaultSchema: tenant.MustParse("public"),
		ServiceApp:    "ATLAS",
		AdminPassword: "admin-password",
		Logger:        slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	return f
}

func TestTenantService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTenantFixture(t)
	f.seeder.On("Seed", "acme", model.RoleCodeSuperAdmin).Return(nil).Once()

	created, err := f.svc.Create(ctx, "actor", "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", created.Name)
	assert.Equal(t, []string{"acme"}, f.migrator.Migrated)
	assert.Equal(t, []string{"acme"}, f.scoper.Calls)
	f.seeder.AssertExpectations(t)

	_, err = f.svc.Create(ctx, "actor", "acme")
	assert.ErrorIs(t, err, model.ErrConflict)

	tenants, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Tenant{{Name: "acme"}}, tenants)
}

func TestTenantService_CreateRejectsInvalidNames(t *testing.T) {
	t.Parallel()
	f := newTenantFixture(t)

	for _, name := range []string{"", "1acme", "acme;drop", "public", "pg_catalog", "information_schema"} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), "actor", name)
			assert.ErrorIs(t, err, model.ErrInvalidTenant)
		})
	}
	assert.Empty(t, f.migrator.Migrated)
}

func TestTenantService_CreateRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("migration failure", func(t *testing.T) {
		f := newTenantFixture(t)
		f.migrator.Err = errors.New("dirty database")

		_, err := f.svc.Create(ctx, "actor", "acme")
		require.Error(t, err)
		exists, _ := f.store.Schemas().Exists(ctx, "acme")
		assert.False(t, exists)
	})

	t.Run("seed failure", func(t *testing.T) {
		f := newTenantFixture(t)
		f.seeder.On("Seed", "acme", model.RoleCodeSuperAdmin).Return(errors.New("boom"))

		_, err := f.svc.Create(ctx, "actor", "acme")
		require.Error(t, err)
		exists, _ := f.store.Schemas().Exists(ctx, "acme")
		assert.False(t, exists)
	})
}

func TestTenantService_GetAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTenantFixture(t)
	f.seeder.On("Seed", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Create(ctx, "actor", "acme")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)

	_, err = f.svc.Get(ctx, "globex")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "actor", "public"), model.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, "actor", "pg_toast"), model.ErrForbidden)
	assert.ErrorIs(t, f.svc.Delete(ctx, "actor", "globex"), model.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "actor", "bad name"), model.ErrInvalidTenant)

	require.NoError(t, f.svc.Delete(ctx, "actor", "acme"))
	_, err = f.svc.Get(ctx, "acme")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTenantService_EnsureDefaultAndMigrateAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTenantFixture(t)
	f.seeder.On("Seed", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.svc.EnsureDefault(ctx))
	assert.Equal(t, []string{"public"}, f.migrator.Migrated)

	_, err := f.svc.Create(ctx, "actor", "acme")
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "actor", "globex")
	require.NoError(t, err)

	f.migrator.Migrated = nil
	require.NoError(t, f.svc.MigrateAll(ctx))
	assert.ElementsMatch(t, []string{"acme", "globex"}, f.migrator.Migrated)
}

func TestBuildSeedData(t *testing.T) {
	t.Parallel()

	data, generated, err := BuildSeedData("ATLAS", "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated)
	assert.True(t, CheckPassword(data.Admin.PasswordHash, generated))
	assert.Equal(t, "ATLAS", data.Application.Code)
	assert.Equal(t, model.RoleCodeSuperAdmin, data.AdminRole)
	assert.Equal(t, model.UserStatusActive, data.Admin.Status)
	assert.True(t, data.Admin.EmailVerified)

	levels := map[string]int{}
	for _, role := range data.Roles {
		levels[role.Code] = role.Level
	}
	assert.Equal(t, map[string]int{"SUPER_ADMIN": 100, "ADMIN": 80, "USER": 10}, levels)
	assert.True(t, data.Roles[0].Permissions.IsWildcard())

	data, generated, err = BuildSeedData("ATLAS", "fixed-password")
	require.NoError(t, err)
	assert.Empty(t, generated)
	assert.True(t, CheckPassword(data.Admin.PasswordHash, "fixed-password"))
}
