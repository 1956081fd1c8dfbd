package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

func TestConnFromContext_RequiresScope(t *testing.T) {
	t.Parallel()

	q, err := ConnFromContext(context.Background())
	assert.Nil(t, q)
	assert.ErrorIs(t, err, model.ErrNoTenantScope)
}

func TestInTx_RequiresScope(t *testing.T) {
	t.Parallel()

	called := false
	err := InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrNoTenantScope)
	assert.False(t, called)
}

func TestSearchPathSQL(t *testing.T) {
	t.Parallel()

	stmt := searchPathSQL(tenant.MustParse("acme"))
	assert.Equal(t, `SET search_path TO "acme"`, stmt)
	assert.NotContains(t, stmt, "public")
}

func TestScope_RejectsZeroNamespace(t *testing.T) {
	t.Parallel()

	db := &DB{}
	err := db.Scope(context.Background(), tenant.Namespace{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, model.ErrInvalidTenant)
}

func TestSchemaDSN(t *testing.T) {
	t.Parallel()

	ns := tenant.MustParse("acme")

	t.Run("postgres scheme", func(t *testing.T) {
		dsn, err := schemaDSN("postgres://u:p@localhost:5432/atlas?sslmode=disable", ns)
		require.NoError(t, err)
		assert.Equal(t, "pgx5://u:p@localhost:5432/atlas?search_path=acme&sslmode=disable", dsn)
	})

	t.Run("existing search_path replaced", func(t *testing.T) {
		dsn, err := schemaDSN("postgresql://localhost/atlas?search_path=public", ns)
		require.NoError(t, err)
		assert.Equal(t, "pgx5://localhost/atlas?search_path=acme", dsn)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := schemaDSN("mysql://localhost/atlas", ns)
		assert.Error(t, err)
	})
}

func TestMigrationFilesEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_init.up.sql")
	assert.Contains(t, names, "000001_init.down.sql")
}
