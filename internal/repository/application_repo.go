package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"atlas-auth/internal/database"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

var _ service.ApplicationStore = (*ApplicationRepository)(nil)

const applicationColumns = `id, app_code, app_name, app_description, created_at, updated_at`

type ApplicationRepository struct{}

func NewApplicationRepository() *ApplicationRepository {
	return &ApplicationRepository{}
}

func scanApplication(row pgx.Row) (model.Application, error) {
	var a model.Application
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (model.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Application{}, fmt.Errorf("find application by id: %w", model.ErrNotFound)
	}

	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Application{}, err
	}

	a, err := scanApplication(q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		return model.Application{}, translate("find application by id", err)
	}
	return a, nil
}

func (r *ApplicationRepository) FindByCode(ctx context.Context, code string) (model.Application, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Application{}, err
	}

	a, err := scanApplication(q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE app_code = $1`, code))
	if err != nil {
		return model.Application{}, translate("find application by code", err)
	}
	return a, nil
}

func (r *ApplicationRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
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
		`SELECT EXISTS(SELECT 1 FROM applications WHERE app_code = $1 AND ($2::uuid IS NULL OR id <> $2::uuid))`,
		code, exclude).Scan(&exists)
	if err != nil {
		return false, translate("check application code exists", err)
	}
	return exists, nil
}

func (r *ApplicationRepository) Create(ctx context.Context, app model.Application) (model.Application, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Application{}, err
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}

	created, err := scanApplication(q.QueryRow(ctx,
		`INSERT INTO applications (id, app_code, app_name, app_description, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+applicationColumns,
		app.ID, app.Code, app.Name, app.Description, time.Now().UTC()))
	if err != nil {
		return model.Application{}, translate("create application", err)
	}
	return created, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, id string, upd model.ApplicationUpdate) (model.Application, error) {
	var set setClause
	if upd.Code != nil {
		set.add("app_code", *upd.Code)
	}
	if upd.Name != nil {
		set.add("app_name", *upd.Name)
	}
	if upd.Description != nil {
		set.add("app_description", *upd.Description)
	}

	if set.empty() {
		return r.FindByID(ctx, id)
	}

	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.Application{}, err
	}

	set.add("updated_at", time.Now().UTC())
	set.args = append(set.args, id)

	updated, err := scanApplication(q.QueryRow(ctx,
		fmt.Sprintf(`UPDATE applications SET %s WHERE id = $%d RETURNING %s`,
			strings.Join(set.columns, ", "), len(set.args), applicationColumns),
		set.args...))
	if err != nil {
		return model.Application{}, translate("update application", err)
	}
	return updated, nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return translate("delete application", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete application: %w", model.ErrNotFound)
	}
	return nil
}

func (r *ApplicationRepository) List(ctx context.Context, skip, limit int) ([]model.Application, int, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM applications`).Scan(&total); err != nil {
		return nil, 0, translate("count applications", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications ORDER BY app_name OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, translate("list applications", err)
	}
	defer rows.Close()

	apps := make([]model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, total, rows.Err()
}

// ListMembers returns the flattened roles x assigned users projection for one
// application. Roles without members yield a row with a nil User.
func (r *ApplicationRepository) ListMembers(ctx context.Context, appID string) ([]model.ApplicationMember, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT r.id::text, r.code, r.name,
		        u.id::text, u.username, u.email, u.full_name, u.status, u.email_verified, u.created_at, u.updated_at
		 FROM roles r
		 LEFT JOIN user_roles ur ON ur.role_id = r.id
		 LEFT JOIN users u ON u.id = ur.user_id
		 WHERE r.app_id = $1
		 ORDER BY r.level DESC, r.name, u.username`, appID)
	if err != nil {
		return nil, translate("list application members", err)
	}
	defer rows.Close()

	members := make([]model.ApplicationMember, 0)
	for rows.Next() {
		var (
			m             model.ApplicationMember
			userID        *string
			username      *string
			email         *string
			fullName      *string
			status        *string
			emailVerified *bool
			createdAt     *time.Time
			updatedAt     *time.Time
		)
		if err := rows.Scan(&m.RoleID, &m.RoleCode, &m.RoleName,
			&userID, &username, &email, &fullName, &status, &emailVerified, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan application member: %w", err)
		}

		if userID != nil {
			m.User = &model.User{
				ID:            *userID,
				Username:      deref(username),
				Email:         deref(email),
				FullName:      deref(fullName),
				Status:        model.UserStatus(deref(status)),
				EmailVerified: emailVerified != nil && *emailVerified,
				UpdatedAt:     updatedAt,
			}
			if createdAt != nil {
				m.User.CreatedAt = *createdAt
			}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
