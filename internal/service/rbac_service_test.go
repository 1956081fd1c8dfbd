package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
	"atlas-auth/internal/testkit"
)

func TestRBACService_GetPermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("union of granular roles", func(t *testing.T) {
		store := testkit.NewStore()
		app := store.AddApplication("CRM", "CRM")
		user := store.AddUser("alice", "alice@example.com", "password123")
		r1 := store.AddRole(app.ID, "READER", 10, model.GranularPermissions(map[string][]string{"users": {"read"}}))
		r2 := store.AddRole(app.ID, "EDITOR", 20, model.GranularPermissions(map[string][]string{"roles": {"read", "create"}}))
		store.Assign(user.ID, r1.ID)
		store.Assign(user.ID, r2.ID)

		svc := NewRBACService(store.UserRoles(), "ATLAS")
		perms, err := svc.GetPermissions(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, perms.IsWildcard())
		assert.ElementsMatch(t, []string{"users:read", "roles:read", "roles:create"}, perms.List())

		ok, err := svc.HasPermission(ctx, user.ID, "roles:create")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.HasPermission(ctx, user.ID, "users:delete")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wildcard dominates", func(t *testing.T) {
		store := testkit.NewStore()
		app := store.AddApplication("CRM", "CRM")
		user := store.AddUser("bob", "bob@example.com", "password123")
		narrow := store.AddRole(app.ID, "READER", 10, model.GranularPermissions(map[string][]string{"users": {"read"}}))
		all := store.AddRole(app.ID, "OWNER", 90, model.WildcardPermissions())
		store.Assign(user.ID, narrow.ID)
		store.Assign(user.ID, all.ID)

		svc := NewRBACService(store.UserRoles(), "ATLAS")
		perms, err := svc.GetPermissions(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, perms.IsWildcard())
		assert.Equal(t, []string{model.WildcardPermission}, perms.List())

		ok, err := svc.HasPermission(ctx, user.ID, "anything:goes")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no roles", func(t *testing.T) {
		store := testkit.NewStore()
		user := store.AddUser("carol", "carol@example.com", "password123")

		perms, err := NewRBACService(store.UserRoles(), "ATLAS").GetPermissions(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, perms.List())
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := testkit.NewStore()
		boom := errors.New("db down")
		store.FailOn("userRoles.ListByUser", boom)

		_, err := NewRBACService(store.UserRoles(), "ATLAS").GetPermissions(ctx, "u")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty user id", func(t *testing.T) {
		_, err := NewRBACService(testkit.NewStore().UserRoles(), "ATLAS").GetPermissions(ctx, " ")
		assert.ErrorIs(t, err, model.ErrInvalidInput)
	})
}

func TestGrants_OrderIndependent(t *testing.T) {
	t.Parallel()

	users := model.UserRoleDetail{RoleCode: "A", Permissions: model.GranularPermissions(map[string][]string{"users": {"read"}})}
	wild := model.UserRoleDetail{RoleCode: "B", Permissions: model.WildcardPermissions()}

	first := NewGrants("u", "ATLAS", []model.UserRoleDetail{users, wild}).Permissions()
	second := NewGrants("u", "ATLAS", []model.UserRoleDetail{wild, users}).Permissions()
	assert.Equal(t, first.List(), second.List())
	assert.True(t, first.IsWildcard())
}

func TestRBACService_AppAccessAndRoleLevel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testkit.NewStore()
	atlas := store.AddApplication("ATLAS", "Atlas")
	crm := store.AddApplication("CRM", "CRM")
	hr := store.AddApplication("HR", "HR")

	superAdmin := store.AddRole(atlas.ID, model.RoleCodeSuperAdmin, 100, model.WildcardPermissions())
	atlasAdmin := store.AddRole(atlas.ID, "ADMIN", 80, model.GranularPermissions(map[string][]string{"users": {"read"}}))
	crmUser := store.AddRole(crm.ID, "USER", 10, model.GranularPermissions(nil))
	// A SUPER_ADMIN code in a foreign application grants nothing extra.
	crmSuper := store.AddRole(crm.ID, model.RoleCodeSuperAdmin, 100, model.GranularPermissions(nil))

	root := store.AddUser("root", "root@example.com", "password123")
	store.Assign(root.ID, superAdmin.ID)

	admin := store.AddUser("admin", "admin@example.com", "password123")
	store.Assign(admin.ID, atlasAdmin.ID)

	member := store.AddUser("member", "member@example.com", "password123")
	store.Assign(member.ID, crmUser.ID)

	impostor := store.AddUser("impostor", "impostor@example.com", "password123")
	store.Assign(impostor.ID, crmSuper.ID)

	svc := NewRBACService(store.UserRoles(), "ATLAS")

	tests := []struct {
		name      string
		userID    string
		app       string
		levels    []int
		wantApp   bool
		wantLevel bool
	}{
		{name: "super admin reaches any app", userID: root.ID, app: hr.Code, levels: []int{80}, wantApp: true, wantLevel: true},
		{name: "atlas admin level matches", userID: admin.ID, app: atlas.Code, levels: []int{100, 80}, wantApp: true, wantLevel: true},
		{name: "atlas admin level not allowed", userID: admin.ID, app: crm.Code, levels: []int{100}, wantApp: false, wantLevel: false},
		{name: "member of crm", userID: member.ID, app: crm.Code, levels: []int{10}, wantApp: true, wantLevel: false},
		{name: "member outside crm", userID: member.ID, app: hr.Code, levels: []int{10}, wantApp: false, wantLevel: false},
		{name: "foreign super admin code", userID: impostor.ID, app: hr.Code, levels: []int{100}, wantApp: false, wantLevel: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.HasAppAccess(ctx, tt.userID, tt.app)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApp, ok)

			ok, err = svc.HasRoleLevel(ctx, tt.userID, tt.levels)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, ok)
		})
	}

	roles, err := svc.GetRoles(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "ATLAS", roles[0].AppCode)
}
