package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"atlas-auth/internal/service"
	"atlas-auth/internal/tenant"
)

var _ service.SchemaStore = (*SchemaRepository)(nil)

// SchemaRepository manages tenant schemas on the shared pool.
type SchemaRepository struct {
	pool *pgxpool.Pool
}

func NewSchemaRepository(pool *pgxpool.Pool) *SchemaRepository {
	return &SchemaRepository{pool: pool}
}

func (r *SchemaRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema exists: %w", err)
	}
	return exists, nil
}

// List returns every schema that is not reserved by PostgreSQL or shared.
func (r *SchemaRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema: %w", err)
		}
		if tenant.IsSystem(name) {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SchemaRepository) Create(ctx context.Context, ns tenant.Namespace) error {
	if _, err := r.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+ns.Quoted()); err != nil {
		return fmt.Errorf("create schema %s: %w", ns, err)
	}
	return nil
}

func (r *SchemaRepository) Drop(ctx context.Context, ns tenant.Namespace) error {
	if _, err := r.pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+ns.Quoted()+` CASCADE`); err != nil {
		return fmt.Errorf("drop schema %s: %w", ns, err)
	}
	return nil
}
