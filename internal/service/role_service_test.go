package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/event"
	"atlas-auth/internal/model"
	"atlas-auth/internal/testkit"
)

func TestRoleService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore()
	svc := NewRoleService(store.Roles(), store.Applications())
	app := store.AddApplication("CRM", "Customer Relations")
	other := store.AddApplication("ERP", "Planning")

	role, err := svc.Create(ctx, model.CreateRoleRequest{
		ApplicationID: app.ID,
		Code:          "EDITOR",
		Name:          "Editor",
		Level:         50,
		Permissions:   json.RawMessage(`{"documents":["read","write"]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"documents:read", "documents:write"}, role.Permissions.Expand())

	// Same code in another application is fine.
	_, err = svc.Create(ctx, model.CreateRoleRequest{ApplicationID: other.ID, Code: "EDITOR", Name: "Editor"})
	assert.NoError(t, err)

	tests := []struct {
		name string
		req  model.CreateRoleRequest
		want error
	}{
		{"duplicate code", model.CreateRoleRequest{ApplicationID: app.ID, Code: "EDITOR", Name: "Again"}, model.ErrConflict},
		{"unknown application", model.CreateRoleRequest{ApplicationID: "missing", Code: "X", Name: "X"}, model.ErrNotFound},
		{"missing name", model.CreateRoleRequest{ApplicationID: app.ID, Code: "X"}, model.ErrInvalidInput},
		{"malformed permissions", model.CreateRoleRequest{ApplicationID: app.ID, Code: "X", Name: "X", Permissions: json.RawMessage(`{"documents":"read"}`)}, model.ErrInvalidInput},
		{"non boolean all", model.CreateRoleRequest{ApplicationID: app.ID, Code: "X", Name: "X", Permissions: json.RawMessage(`{"all":"yes"}`)}, model.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRoleService_UpdatePermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore()
	svc := NewRoleService(store.Roles(), store.Applications())
	app := store.AddApplication("CRM", "Customer Relations")
	role := store.AddRole(app.ID, "EDITOR", 50, model.GranularPermissions(nil))

	updated, err := svc.UpdatePermissions(ctx, role.ID, json.RawMessage(`{"all":true}`))
	require.NoError(t, err)
	assert.True(t, updated.Permissions.IsWildcard())

	_, err = svc.UpdatePermissions(ctx, role.ID, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.UpdatePermissions(ctx, "missing", json.RawMessage(`{"all":true}`))
	assert.ErrorIs(t, err, model.ErrNotFound)

	renamed, err := svc.Update(ctx, role.ID, model.UpdateRoleRequest{Name: ptr("Writer"), Level: ptr(60)})
	require.NoError(t, err)
	assert.Equal(t, "Writer", renamed.Name)
	assert.Equal(t, 60, renamed.Level)
	assert.True(t, renamed.Permissions.IsWildcard())
}

func TestRoleService_ListAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore()
	svc := NewRoleService(store.Roles(), store.Applications())
	crm := store.AddApplication("CRM", "Customer Relations")
	erp := store.AddApplication("ERP", "Planning")
	low := store.AddRole(crm.ID, "VIEWER", 10, model.GranularPermissions(nil))
	store.AddRole(crm.ID, "ADMIN", 80, model.WildcardPermissions())
	store.AddRole(erp.ID, "ADMIN", 80, model.WildcardPermissions())

	roles, total, err := svc.List(ctx, model.RoleFilter{ApplicationID: crm.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, roles, 2)
	assert.Equal(t, "ADMIN", roles[0].Code)

	_, total, err = svc.List(ctx, model.RoleFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	alice := store.AddUser("alice", "alice@example.com", "password123")
	store.Assign(alice.ID, low.ID)
	require.NoError(t, svc.Delete(ctx, low.ID))

	details, err := store.UserRoles().ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestUserRoleService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testkit.NewStore()
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	svc := NewUserRoleService(store.UserRoles(), store.Users(), store.Roles(), bus)
	app := store.AddApplication("CRM", "Customer Relations")
	editor := store.AddRole(app.ID, "EDITOR", 50, model.GranularPermissions(nil))
	viewer := store.AddRole(app.ID, "VIEWER", 10, model.GranularPermissions(nil))
	alice := store.AddUser("alice", "alice@example.com", "password123")

	assigned, err := svc.Assign(ctx, "actor", alice.ID, editor.ID, viewer.ID)
	require.NoError(t, err)
	assert.Len(t, assigned, 2)

	// Reassigning is a no-op that returns the existing row.
	again, err := svc.Assign(ctx, "actor", alice.ID, editor.ID)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, assigned[0].ID, again[0].ID)
	assert.Len(t, events, 2)

	_, err = svc.Assign(ctx, "actor", alice.ID)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = svc.Assign(ctx, "actor", "missing", editor.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = svc.Assign(ctx, "actor", alice.ID, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	details, err := svc.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "EDITOR", details[0].RoleCode)

	require.NoError(t, svc.Revoke(ctx, "actor", alice.ID, editor.ID))
	assert.ErrorIs(t, svc.Revoke(ctx, "actor", alice.ID, editor.ID), model.ErrNotFound)

	details, err = svc.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "VIEWER", details[0].RoleCode)
}
