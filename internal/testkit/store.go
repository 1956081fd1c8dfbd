// Package testkit provides in-memory stand-ins for the persistence and
// delivery collaborators, for use in tests.
package testkit

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

// Store is one in-memory namespace. Its typed views implement the service
// store interfaces and share the same data, so cascades behave like the
// database.
type Store struct {
	mu        sync.Mutex
	users     map[string]model.User
	apps      map[string]model.Application
	roles     map[string]model.Role
	userRoles map[string]model.UserRole
	tokens    map[string]model.RefreshToken
	schemas   map[string]bool
	failures  map[string]error
	txCalls   int

	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:     map[string]model.User{},
		apps:      map[string]model.Application{},
		roles:     map[string]model.Role{},
		userRoles: map[string]model.UserRole{},
		tokens:    map[string]model.RefreshToken{},
		schemas:   map[string]bool{},
		failures:  map[string]error{},
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every call of op (e.g. "tokens.Create") return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

// InTx runs fn and restores the data to its prior state if fn fails.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txCalls++
	users, apps, roles := maps.Clone(s.users), maps.Clone(s.apps), maps.Clone(s.roles)
	userRoles, tokens := maps.Clone(s.userRoles), maps.Clone(s.tokens)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.users, s.apps, s.roles = users, apps, roles
		s.userRoles, s.tokens = userRoles, tokens
		s.mu.Unlock()
		return err
	}
	return nil
}

// TxCalls returns the number of InTx calls.
func (s *Store) TxCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCalls
}

func (s *Store) Users() *Users               { return &Users{s} }
func (s *Store) Tokens() *Tokens             { return &Tokens{s} }
func (s *Store) Applications() *Applications { return &Applications{s} }
func (s *Store) Roles() *Roles               { return &Roles{s} }
func (s *Store) UserRoles() *UserRoles       { return &UserRoles{s} }
func (s *Store) Schemas() *Schemas           { return &Schemas{s} }

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}

// Users implements the credential store.
type Users struct{ s *Store }

func (u *Users) FindByID(_ context.Context, id string) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.fail("users.FindByID"); err != nil {
		return model.User{}, err
	}
	user, ok := u.s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("find user by id: %w", model.ErrNotFound)
	}
	return user, nil
}

func (u *Users) find(match func(model.User) bool) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.fail("users.Find"); err != nil {
		return model.User{}, err
	}
	for _, user := range u.s.users {
		if match(user) {
			return user, nil
		}
	}
	return model.User{}, fmt.Errorf("find user: %w", model.ErrNotFound)
}

func (u *Users) FindByUsername(_ context.Context, username string) (model.User, error) {
	return u.find(func(m model.User) bool { return m.Username == username })
}

func (u *Users) FindByEmail(_ context.Context, email string) (model.User, error) {
	return u.find(func(m model.User) bool { return strings.EqualFold(m.Email, email) })
}

func (u *Users) FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error) {
	if user, err := u.FindByUsername(ctx, identifier); err == nil {
		return user, nil
	}
	return u.FindByEmail(ctx, identifier)
}

func (u *Users) ExistsByUsername(_ context.Context, username string, excludeID string) (bool, error) {
	_, err := u.find(func(m model.User) bool { return strings.EqualFold(m.Username, username) && m.ID != excludeID })
	return err == nil, nil
}

func (u *Users) ExistsByEmail(_ context.Context, email string, excludeID string) (bool, error) {
	_, err := u.find(func(m model.User) bool { return strings.EqualFold(m.Email, email) && m.ID != excludeID })
	return err == nil, nil
}

func (u *Users) Create(_ context.Context, user model.User) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.fail("users.Create"); err != nil {
		return model.User{}, err
	}
	for _, existing := range u.s.users {
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return model.User{}, fmt.Errorf("create user: %w", model.ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = u.s.Now()
	}
	u.s.users[user.ID] = user
	return user, nil
}

func (u *Users) Update(_ context.Context, id string, upd model.UserUpdate) (model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.fail("users.Update"); err != nil {
		return model.User{}, err
	}
	user, ok := u.s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("update user: %w", model.ErrNotFound)
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.FullName != nil {
		user.FullName = *upd.FullName
	}
	if upd.Status != nil {
		user.Status = *upd.Status
	}
	if upd.EmailVerified != nil {
		user.EmailVerified = *upd.EmailVerified
	}
	if upd.PasswordHash != nil {
		user.PasswordHash = *upd.PasswordHash
	}
	now := u.s.Now()
	user.UpdatedAt = &now
	u.s.users[id] = user
	return user, nil
}

func (u *Users) Delete(_ context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return fmt.Errorf("delete user: %w", model.ErrNotFound)
	}
	delete(u.s.users, id)
	for key, ur := range u.s.userRoles {
		if ur.UserID == id {
			delete(u.s.userRoles, key)
		}
	}
	for key, rt := range u.s.tokens {
		if rt.UserID == id {
			delete(u.s.tokens, key)
		}
	}
	return nil
}

func (u *Users) List(_ context.Context, skip, limit int) ([]model.User, int, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	all := make([]model.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		all = append(all, user)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return page(all, skip, limit), len(all), nil
}

// Tokens implements the refresh token store.
type Tokens struct{ s *Store }

func (t *Tokens) Create(_ context.Context, userID, tokenHash string, expiresAt time.Time) (model.RefreshToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail("tokens.Create"); err != nil {
		return model.RefreshToken{}, err
	}
	rt := model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: t.s.Now(),
	}
	t.s.tokens[tokenHash] = rt
	return rt, nil
}

func (t *Tokens) FindByHash(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail("tokens.FindByHash"); err != nil {
		return model.RefreshToken{}, err
	}
	rt, ok := t.s.tokens[tokenHash]
	if !ok || !rt.ExpiresAt.After(t.s.Now()) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return rt, nil
}

func (t *Tokens) DeleteByHash(_ context.Context, tokenHash string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail("tokens.DeleteByHash"); err != nil {
		return false, err
	}
	_, ok := t.s.tokens[tokenHash]
	delete(t.s.tokens, tokenHash)
	return ok, nil
}

func (t *Tokens) DeleteByUser(_ context.Context, userID string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail("tokens.DeleteByUser"); err != nil {
		return 0, err
	}
	var n int64
	for key, rt := range t.s.tokens {
		if rt.UserID == userID {
			delete(t.s.tokens, key)
			n++
		}
	}
	return n, nil
}

func (t *Tokens) DeleteExpired(_ context.Context) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if err := t.s.fail("tokens.DeleteExpired"); err != nil {
		return 0, err
	}
	var n int64
	now := t.s.Now()
	for key, rt := range t.s.tokens {
		if !rt.ExpiresAt.After(now) {
			delete(t.s.tokens, key)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored refresh tokens, expired or not.
func (t *Tokens) Count() int {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return len(t.s.tokens)
}

// Applications implements the application store.
type Applications struct{ s *Store }

func (a *Applications) FindByID(_ context.Context, id string) (model.Application, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	app, ok := a.s.apps[id]
	if !ok {
		return model.Application{}, fmt.Errorf("find application: %w", model.ErrNotFound)
	}
	return app, nil
}

func (a *Applications) FindByCode(_ context.Context, code string) (model.Application, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, app := range a.s.apps {
		if app.Code == code {
			return app, nil
		}
	}
	return model.Application{}, fmt.Errorf("find application: %w", model.ErrNotFound)
}

func (a *Applications) ExistsByCode(_ context.Context, code string, excludeID string) (bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, app := range a.s.apps {
		if app.Code == code && app.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (a *Applications) Create(_ context.Context, app model.Application) (model.Application, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	for _, existing := range a.s.apps {
		if existing.Code == app.Code {
			return model.Application{}, fmt.Errorf("create application: %w", model.ErrConflict)
		}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.CreatedAt = a.s.Now()
	a.s.apps[app.ID] = app
	return app, nil
}

func (a *Applications) Update(_ context.Context, id string, upd model.ApplicationUpdate) (model.Application, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	app, ok := a.s.apps[id]
	if !ok {
		return model.Application{}, fmt.Errorf("update application: %w", model.ErrNotFound)
	}
	if upd.Code != nil {
		app.Code = *upd.Code
	}
	if upd.Name != nil {
		app.Name = *upd.Name
	}
	if upd.Description != nil {
		app.Description = *upd.Description
	}
	now := a.s.Now()
	app.UpdatedAt = &now
	a.s.apps[id] = app
	return app, nil
}

func (a *Applications) Delete(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.apps[id]; !ok {
		return fmt.Errorf("delete application: %w", model.ErrNotFound)
	}
	delete(a.s.apps, id)
	for roleID, role := range a.s.roles {
		if role.ApplicationID == id {
			a.s.deleteRoleLocked(roleID)
		}
	}
	return nil
}

func (a *Applications) List(_ context.Context, skip, limit int) ([]model.Application, int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	all := make([]model.Application, 0, len(a.s.apps))
	for _, app := range a.s.apps {
		all = append(all, app)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return page(all, skip, limit), len(all), nil
}

func (a *Applications) ListMembers(_ context.Context, appID string) ([]model.ApplicationMember, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	roles := make([]model.Role, 0)
	for _, role := range a.s.roles {
		if role.ApplicationID == appID {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level > roles[j].Level
		}
		return roles[i].Name < roles[j].Name
	})

	rows := make([]model.ApplicationMember, 0)
	for _, role := range roles {
		members := 0
		for _, ur := range a.s.userRoles {
			if ur.RoleID != role.ID {
				continue
			}
			user, ok := a.s.users[ur.UserID]
			if !ok {
				continue
			}
			rows = append(rows, model.ApplicationMember{RoleID: role.ID, RoleCode: role.Code, RoleName: role.Name, User: &user})
			members++
		}
		if members == 0 {
			rows = append(rows, model.ApplicationMember{RoleID: role.ID, RoleCode: role.Code, RoleName: role.Name})
		}
	}
	return rows, nil
}

// Roles implements the role store.
type Roles struct{ s *Store }

func (r *Roles) FindByID(_ context.Context, id string) (model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return model.Role{}, fmt.Errorf("find role: %w", model.ErrNotFound)
	}
	return role, nil
}

func (r *Roles) ExistsByCode(_ context.Context, appID, code string, excludeID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.ApplicationID == appID && role.Code == code && role.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Roles) Create(_ context.Context, role model.Role) (model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.apps[role.ApplicationID]; !ok {
		return model.Role{}, fmt.Errorf("create role: %w", model.ErrNotFound)
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.CreatedAt = r.s.Now()
	r.s.roles[role.ID] = role
	return role, nil
}

func (r *Roles) Update(_ context.Context, id string, upd model.RoleUpdate) (model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return model.Role{}, fmt.Errorf("update role: %w", model.ErrNotFound)
	}
	if upd.Code != nil {
		role.Code = *upd.Code
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Level != nil {
		role.Level = *upd.Level
	}
	if upd.Permissions != nil {
		role.Permissions = *upd.Permissions
	}
	now := r.s.Now()
	role.UpdatedAt = &now
	r.s.roles[id] = role
	return role, nil
}

func (r *Roles) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return fmt.Errorf("delete role: %w", model.ErrNotFound)
	}
	r.s.deleteRoleLocked(id)
	return nil
}

func (s *Store) deleteRoleLocked(id string) {
	delete(s.roles, id)
	for key, ur := range s.userRoles {
		if ur.RoleID == id {
			delete(s.userRoles, key)
		}
	}
}

func (r *Roles) List(_ context.Context, filter model.RoleFilter) ([]model.Role, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := make([]model.Role, 0)
	for _, role := range r.s.roles {
		if filter.ApplicationID == "" || role.ApplicationID == filter.ApplicationID {
			all = append(all, role)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Level != all[j].Level {
			return all[i].Level > all[j].Level
		}
		return all[i].Name < all[j].Name
	})
	return page(all, filter.Skip, filter.Limit), len(all), nil
}

// UserRoles implements the assignment store.
type UserRoles struct{ s *Store }

func assignmentKey(userID, roleID string) string {
	return userID + "/" + roleID
}

func (u *UserRoles) Assign(_ context.Context, userID, roleID string) (model.UserRole, bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	key := assignmentKey(userID, roleID)
	if existing, ok := u.s.userRoles[key]; ok {
		return existing, false, nil
	}
	if _, ok := u.s.users[userID]; !ok {
		return model.UserRole{}, false, fmt.Errorf("assign role: %w", model.ErrNotFound)
	}
	if _, ok := u.s.roles[roleID]; !ok {
		return model.UserRole{}, false, fmt.Errorf("assign role: %w", model.ErrNotFound)
	}
	ur := model.UserRole{ID: uuid.NewString(), UserID: userID, RoleID: roleID, CreatedAt: u.s.Now()}
	u.s.userRoles[key] = ur
	return ur, true, nil
}

func (u *UserRoles) Revoke(_ context.Context, userID, roleID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	key := assignmentKey(userID, roleID)
	if _, ok := u.s.userRoles[key]; !ok {
		return fmt.Errorf("revoke role: %w", model.ErrNotFound)
	}
	delete(u.s.userRoles, key)
	return nil
}

func (u *UserRoles) ListByUser(_ context.Context, userID string) ([]model.UserRoleDetail, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.fail("userRoles.ListByUser"); err != nil {
		return nil, err
	}

	details := make([]model.UserRoleDetail, 0)
	for _, ur := range u.s.userRoles {
		if ur.UserID != userID {
			continue
		}
		role, ok := u.s.roles[ur.RoleID]
		if !ok {
			continue
		}
		app := u.s.apps[role.ApplicationID]
		details = append(details, model.UserRoleDetail{
			AssignmentID: ur.ID,
			RoleID:       role.ID,
			RoleCode:     role.Code,
			RoleName:     role.Name,
			RoleLevel:    role.Level,
			Permissions:  role.Permissions,
			AppID:        app.ID,
			AppCode:      app.Code,
			AppName:      app.Name,
			CreatedAt:    ur.CreatedAt,
		})
	}
	sort.Slice(details, func(i, j int) bool {
		a, b := details[i], details[j]
		if a.AppName != b.AppName {
			return a.AppName < b.AppName
		}
		if a.RoleLevel != b.RoleLevel {
			return a.RoleLevel > b.RoleLevel
		}
		return a.RoleName < b.RoleName
	})
	return details, nil
}

// Schemas implements the tenant schema store.
type Schemas struct{ s *Store }

func (sc *Schemas) Exists(_ context.Context, name string) (bool, error) {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	if err := sc.s.fail("schemas.Exists"); err != nil {
		return false, err
	}
	return sc.s.schemas[name], nil
}

func (sc *Schemas) List(_ context.Context) ([]string, error) {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	if err := sc.s.fail("schemas.List"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(sc.s.schemas))
	for name := range sc.s.schemas {
		if !tenant.IsSystem(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (sc *Schemas) Create(_ context.Context, ns tenant.Namespace) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	if err := sc.s.fail("schemas.Create"); err != nil {
		return err
	}
	sc.s.schemas[ns.String()] = true
	return nil
}

func (sc *Schemas) Drop(_ context.Context, ns tenant.Namespace) error {
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	delete(sc.s.schemas, ns.String())
	return nil
}
