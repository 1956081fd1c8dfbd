package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"atlas-auth/internal/database"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

var _ service.UserRoleStore = (*UserRoleRepository)(nil)

type UserRoleRepository struct{}

func NewUserRoleRepository() *UserRoleRepository {
	return &UserRoleRepository{}
}

// Assign creates the (user, role) pair. When it already exists the existing
// row is returned with created=false.
func (r *UserRoleRepository) Assign(ctx context.Context, userID, roleID string) (model.UserRole, bool, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.UserRole{}, false, err
	}

	var ur model.UserRole
	err = q.QueryRow(ctx,
		`INSERT INTO user_roles (id, user_id, role_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, role_id) DO NOTHING
		 RETURNING id, user_id, role_id, created_at`,
		uuid.NewString(), userID, roleID, time.Now().UTC()).
		Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if err == nil {
		return ur, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.UserRole{}, false, translate("assign role", err)
	}

	err = q.QueryRow(ctx,
		`SELECT id, user_id, role_id, created_at FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID).Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if err != nil {
		return model.UserRole{}, false, translate("find role assignment", err)
	}
	return ur, false, nil
}

func (r *UserRoleRepository) Revoke(ctx context.Context, userID, roleID string) error {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return translate("revoke role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke role: %w", model.ErrNotFound)
	}
	return nil
}

func (r *UserRoleRepository) ListByUser(ctx context.Context, userID string) ([]model.UserRoleDetail, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT ur.id, r.id, r.code, r.name, r.level, r.permissions,
		        a.id, a.app_code, a.app_name, ur.created_at
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 JOIN applications a ON a.id = r.app_id
		 WHERE ur.user_id = $1
		 ORDER BY a.app_name, r.level DESC, r.name`, userID)
	if err != nil {
		return nil, translate("list user roles", err)
	}
	defer rows.Close()

	details := make([]model.UserRoleDetail, 0)
	for rows.Next() {
		var (
			d     model.UserRoleDetail
			perms []byte
		)
		if err := rows.Scan(&d.AssignmentID, &d.RoleID, &d.RoleCode, &d.RoleName, &d.RoleLevel, &perms,
			&d.AppID, &d.AppCode, &d.AppName, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}

		doc, err := model.LoadPermissionDocument(perms)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", d.RoleCode, err)
		}
		d.Permissions = doc
		details = append(details, d)
	}
	return details, rows.Err()
}
