package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"atlas-auth/internal/database"
	"atlas-auth/internal/service"
)

var _ service.Seeder = (*SeedRepository)(nil)

// SeedRepository installs default rows inside the scoped namespace. Existing
// rows are left untouched, so seeding can be repeated.
type SeedRepository struct{}

func NewSeedRepository() *SeedRepository {
	return &SeedRepository{}
}

func (r *SeedRepository) Seed(ctx context.Context, data service.SeedData) error {
	return database.InTx(ctx, func(ctx context.Context) error {
		q, err := database.ConnFromContext(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		app := data.Application

		if _, err := q.Exec(ctx,
			`INSERT INTO applications (id, app_code, app_name, app_description, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (app_code) DO NOTHING`,
			app.ID, app.Code, app.Name, app.Description, now); err != nil {
			return translate("seed application", err)
		}

		for _, role := range data.Roles {
			perms, err := json.Marshal(role.Permissions)
			if err != nil {
				return fmt.Errorf("encode seed permissions: %w", err)
			}

			if _, err := q.Exec(ctx,
				`INSERT INTO roles (id, app_id, code, name, level, permissions, created_at)
				 SELECT $1, a.id, $3, $4, $5, $6, $7 FROM applications a WHERE a.app_code = $2
				 ON CONFLICT (app_id, code) DO NOTHING`,
				role.ID, app.Code, role.Code, role.Name, role.Level, perms, now); err != nil {
				return translate("seed role "+role.Code, err)
			}
		}

		admin := data.Admin
		if _, err := q.Exec(ctx,
			`INSERT INTO users (id, username, email, password_hash, full_name, status, email_verified, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT DO NOTHING`,
			admin.ID, admin.Username, admin.Email, admin.PasswordHash, admin.FullName,
			admin.Status, admin.EmailVerified, now); err != nil {
			return translate("seed admin user", err)
		}

		if _, err := q.Exec(ctx,
			`INSERT INTO user_roles (id, user_id, role_id, created_at)
			 SELECT gen_random_uuid(), u.id, r.id, $4
			 FROM users u, roles r JOIN applications a ON a.id = r.app_id
			 WHERE u.username = $1 AND a.app_code = $2 AND r.code = $3
			 ON CONFLICT (user_id, role_id) DO NOTHING`,
			admin.Username, app.Code, data.AdminRole, now); err != nil {
			return translate("seed admin role", err)
		}

		return nil
	})
}
