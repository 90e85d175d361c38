// Package store is the persistence layer: a pgxpool-backed Store
// carrying the listings, dedup, scan-history, query-URL,
// preferences/matching, queue, and user method sets over one shared
// schema.
package store

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// dbtx is the slice of pgxpool.Pool's interface every method in this
// package needs, narrow enough that pgxmock.PgxPoolIface satisfies it too,
// so unit tests exercise real SQL strings without a live Postgres.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store wraps the shared connection pool every persistence method in this
// package operates against. realPool is non-nil outside tests and is what
// Close shuts down; pool is the narrow interface every query method uses,
// letting tests substitute pgxmock.
type Store struct {
	pool     dbtx
	realPool *pgxpool.Pool
	log      *zap.Logger
}

// New parses dsn, forces sslmode=require unless ALLOW_DB_INSECURE=1 is
// set, and verifies connectivity before returning.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if os.Getenv("ALLOW_DB_INSECURE") != "1" && !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=require"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = 55 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool, realPool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.realPool != nil {
		s.realPool.Close()
	}
}

// Migrate runs the embedded schema migrations to the latest version.
func (s *Store) Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	migrateDSN := dsn
	if strings.HasPrefix(migrateDSN, "postgres://") {
		migrateDSN = "pgx5://" + strings.TrimPrefix(migrateDSN, "postgres://")
	} else if strings.HasPrefix(migrateDSN, "postgresql://") {
		migrateDSN = "pgx5://" + strings.TrimPrefix(migrateDSN, "postgresql://")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateDSN)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	s.log.Info("schema migrations applied")
	return nil
}
