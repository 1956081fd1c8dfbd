package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atlas-auth/internal/model"
	"atlas-auth/internal/tenant"
)

// Querier is the subset of pgx shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string, maxConns int32, minConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "max_conns", maxConns, "min_conns", minConns)
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

type querierKey struct{}

// WithQuerier binds q to ctx so repositories called with the returned context
// run against it.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey{}, q)
}

// ConnFromContext returns the tenant-scoped querier bound by Scope. There is
// no fallback to the pool: an unscoped call fails with ErrNoTenantScope.
func ConnFromContext(ctx context.Context) (Querier, error) {
	q, ok := ctx.Value(querierKey{}).(Querier)
	if !ok || q == nil {
		return nil, model.ErrNoTenantScope
	}
	return q, nil
}

// Scope acquires one connection, points its search_path at ns and runs fn with
// the connection bound to ctx. The connection is always released; one whose
// search_path cannot be reset is closed instead of being returned to the pool.
func (db *DB) Scope(ctx context.Context, ns tenant.Namespace, fn func(ctx context.Context) error) error {
	if ns.IsZero() {
		return model.ErrInvalidTenant
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, searchPathSQL(ns)); err != nil {
		conn.Release()
		return fmt.Errorf("set search_path: %w", err)
	}

	defer func() {
		// The request context may already be cancelled here.
		resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if _, err := conn.Exec(resetCtx, "RESET search_path"); err != nil {
			slog.Warn("reset search_path failed; discarding connection", "tenant", ns.String(), "error", err)
			_ = conn.Conn().Close(resetCtx)
		}
		conn.Release()
	}()

	return fn(WithQuerier(tenant.WithNamespace(ctx, ns), conn))
}

// searchPathSQL pins the search path to ns alone, so an unprovisioned
// namespace cannot fall through to another schema's tables. The namespace is
// interpolated, not bound: SET does not accept parameters, and
// tenant.Namespace values are validated identifiers.
func searchPathSQL(ns tenant.Namespace) string {
	return "SET search_path TO " + ns.Quoted()
}

// InTx lets DB serve as the services' transaction runner.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, fn)
}

// InTx runs fn inside a transaction on the scoped querier in ctx.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	q, err := ConnFromContext(ctx)
	if err != nil {
		return err
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(WithQuerier(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
