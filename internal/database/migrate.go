package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers the "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"atlas-auth/internal/tenant"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations to one namespace at a time.
// Each namespace keeps its own schema_migrations table.
type Migrator struct {
	databaseURL string
	logger      *slog.Logger
}

func NewMigrator(databaseURL string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{databaseURL: databaseURL, logger: logger}
}

// Up brings ns to the latest schema version. The schema must already exist.
func (m *Migrator) Up(ns tenant.Namespace) error {
	dsn, err := schemaDSN(m.databaseURL, ns)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("initialize migrations for %s: %w", ns, err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil {
			m.logger.Error("migration source close failed", "error", srcErr)
		}
		if dbErr != nil {
			m.logger.Error("migration db close failed", "error", dbErr)
		}
	}()

	migrator.Log = &migrateLogger{logger: m.logger.With("tenant", ns.String())}

	current, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version for %s: %w", ns, err)
	}
	if dirty {
		return fmt.Errorf("schema %s is dirty at version %d", ns, current)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Debug("schema up to date", "tenant", ns.String(), "version", current)
			return nil
		}
		return fmt.Errorf("apply migrations for %s: %w", ns, err)
	}

	version, _, _ := migrator.Version()
	m.logger.Info("schema migrated", "tenant", ns.String(), "from_version", current, "to_version", version)
	return nil
}

// schemaDSN rewrites the connection URL to the pgx5 scheme and pins the
// session search_path to ns only, so unqualified DDL lands in that schema.
func schemaDSN(databaseURL string, ns tenant.Namespace) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("search_path", ns.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
