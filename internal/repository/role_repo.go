package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"atlas-auth/internal/database"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

var _ service.RoleStore = (*RoleRepository)(nil)

const roleColumns = `id, app_id, code, name, level, permissions, created_at, updated_at`

type RoleRepository struct{}

func NewRoleRepository() *RoleRepository {
	return &RoleRepository{}
}

func scanRole(row pgx.Row) (model.Role, error) {
	var (
		role  model.Role
		perms []byte
	)
	if err := row.Scan(&role.ID, &role.ApplicationID, &role.Code, &role.Name, &role.Level,
		&perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return model.Role{}, err
	}

	doc, err := model.LoadPermissionDocument(perms)
	if err != nil {
		return model.Role{}, fmt.Errorf("role %s: %w", role.ID, err)
	}
	role.Permissions = doc
	return role, nil
}

func (r *RoleRepository) FindByID(ctx context.Context, id string) (model.Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Role{}, fmt.Errorf("find role by id: %w", model.ErrNotFound)
	}

	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Role{}, err
	}

	role, err := scanRole(q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return model.Role{}, translate("find role by id", err)
	}
	return role, nil
}

func (r *RoleRepository) ExistsByCode(ctx context.Context, appID, code string, excludeID string) (bool, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return false, err
	}

	var exclude *string
	if excludeID != "" {
		exclude = &excludeID
	}

	var exists bool
	err = q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE app_id = $1 AND code = $2 AND ($3::uuid IS NULL OR id <> $3::uuid))`,
		appID, code, exclude).Scan(&exists)
	if err != nil {
		return false, translate("check role code exists", err)
	}
	return exists, nil
}

func (r *RoleRepository) Create(ctx context.Context, role model.Role) (model.Role, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Role{}, err
	}

	if role.ID == "" {
		role.ID = uuid.NewString()
	}

	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return model.Role{}, fmt.Errorf("encode permissions: %w", err)
	}

	created, err := scanRole(q.QueryRow(ctx,
		`INSERT INTO roles (id, app_id, code, name, level, permissions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+roleColumns,
		role.ID, role.ApplicationID, role.Code, role.Name, role.Level, perms, time.Now().UTC()))
	if err != nil {
		return model.Role{}, translate("create role", err)
	}
	return created, nil
}

func (r *RoleRepository) Update(ctx context.Context, id string, upd model.RoleUpdate) (model.Role, error) {
	var set setClause
	if upd.Code != nil {
		set.add("code", *upd.Code)
	}
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Level != nil {
		set.add("level", *upd.Level)
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(*upd.Permissions)
		if err != nil {
			return model.Role{}, fmt.Errorf("encode permissions: %w", err)
		}
		set.add("permissions", perms)
	}

	if set.empty() {
		return r.FindByID(ctx, id)
	}

	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Role{}, err
	}

	set.add("updated_at", time.Now().UTC())
	set.args = append(set.args, id)

	updated, err := scanRole(q.QueryRow(ctx,
		fmt.Sprintf(`UPDATE roles SET %s WHERE id = $%d RETURNING %s`,
			strings.Join(set.columns, ", "), len(set.args), roleColumns),
		set.args...))
	if err != nil {
		return model.Role{}, translate("update role", err)
	}
	return updated, nil
}

func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return translate("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete role: %w", model.ErrNotFound)
	}
	return nil
}

func (r *RoleRepository) List(ctx context.Context, filter model.RoleFilter) ([]model.Role, int, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var appID *string
	if filter.ApplicationID != "" {
		appID = &filter.ApplicationID
	}

	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM roles WHERE ($1::uuid IS NULL OR app_id = $1::uuid)`, appID).Scan(&total); err != nil {
		return nil, 0, translate("count roles", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+roleColumns+` FROM roles
		 WHERE ($1::uuid IS NULL OR app_id = $1::uuid)
		 ORDER BY level DESC, name
		 OFFSET $2 LIMIT $3`, appID, filter.Skip, filter.Limit)
	if err != nil {
		return nil, 0, translate("list roles", err)
	}
	defer rows.Close()

	roles := make([]model.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, total, rows.Err()
}
