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

var _ service.UserStore = (*UserRepository)(nil)

const userColumns = `id, username, email, password_hash, full_name, status, email_verified, created_at, updated_at`

type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Status, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) findOne(ctx context.Context, op string, where string, arg any) (model.User, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.User{}, err
	}

	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		return model.User{}, translate(op, err)
	}
	return u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", model.ErrNotFound)
	}
	return r.findOne(ctx, "find user by id", `id = $1`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, "find user by username", `username = $1`, strings.TrimSpace(username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "find user by email", `lower(email) = lower($1)`, strings.TrimSpace(email))
}

// FindByUsernameOrEmail prefers an exact username match over an email match.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error) {
	return r.findOne(ctx, "find user by username or email",
		`username = $1 OR lower(email) = lower($1)
		 ORDER BY (username = $1) DESC
		 LIMIT 1`, strings.TrimSpace(identifier))
}

func (r *UserRepository) exists(ctx context.Context, op, column string, value, excludeID string) (bool, error) {
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
		`SELECT EXISTS(SELECT 1 FROM users WHERE `+column+` = lower($1) AND ($2::uuid IS NULL OR id <> $2::uuid))`,
		strings.ToLower(strings.TrimSpace(value)), exclude).Scan(&exists)
	if err != nil {
		return false, translate(op, err)
	}
	return exists, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string, excludeID string) (bool, error) {
	return r.exists(ctx, "check username exists", "lower(username)", username, excludeID)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return r.exists(ctx, "check email exists", "lower(email)", email, excludeID)
}

func (r *UserRepository) Create(ctx context.Context, u model.User) (model.User, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.User{}, err
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	created, err := scanUser(q.QueryRow(ctx,
		`INSERT INTO users (id, username, email, password_hash, full_name, status, email_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+userColumns,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Status, u.EmailVerified, u.CreatedAt))
	if err != nil {
		return model.User{}, translate("create user", err)
	}
	return created, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, upd model.UserUpdate) (model.User, error) {
	var set setClause
	if upd.Username != nil {
		set.add("username", *upd.Username)
	}
	if upd.Email != nil {
		set.add("email", *upd.Email)
	}
	if upd.FullName != nil {
		set.add("full_name", *upd.FullName)
	}
	if upd.Status != nil {
		set.add("status", *upd.Status)
	}
	if upd.EmailVerified != nil {
		set.add("email_verified", *upd.EmailVerified)
	}
	if upd.PasswordHash != nil {
		set.add("password_hash", *upd.PasswordHash)
	}

	if set.empty() {
		return r.FindByID(ctx, id)
	}

	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return model.User{}, err
	}

	set.add("updated_at", time.Now().UTC())
	set.args = append(set.args, id)

	updated, err := scanUser(q.QueryRow(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
			strings.Join(set.columns, ", "), len(set.args), userColumns),
		set.args...))
	if err != nil {
		return model.User{}, translate("update user", err)
	}
	return updated, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translate("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user: %w", model.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, skip, limit int) ([]model.User, int, error) {
	q, err := database.ConnFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, translate("count users", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, username OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, translate("list users", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
