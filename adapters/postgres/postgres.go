// Package postgres provides the Postgres implementations of the storage,
// catalog, trigger, listener and authorization ports. Everything the system
// persists lives here: the schema registry, the physical user tables, the
// change triggers and the row-level-security policies that gate realtime
// delivery.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowbase/rowbase/domain/sqlgen"
)

// RealtimeRole is the restricted role visibility checks run under. It has no
// login and only per-table SELECT grants, so row-level security applies to
// every query the authorization evaluator issues.
const RealtimeRole = "rowbase_realtime"

// registryTable holds the TableDefinition rows. The rowbase_ prefix is
// reserved by the identifier validator, so user tables can never collide.
const registryTable = "rowbase_tables"

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects a pool to the given URL and verifies it with a ping.
func Open(ctx context.Context, url string, maxConns int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// migrateStatements is the fixed, idempotent statement list Migrate runs.
func migrateStatements() []string {
	return []string{
		// gen_random_uuid is built in from Postgres 13; the extension keeps
		// older servers working.
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS ` + registryTable + ` (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL DEFAULT '',
			public BOOLEAN NOT NULL DEFAULT false,
			realtime_enabled BOOLEAN NOT NULL DEFAULT false,
			table_schema JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`DO $$ BEGIN
			CREATE ROLE ` + RealtimeRole + ` NOLOGIN;
		EXCEPTION WHEN duplicate_object THEN
			NULL;
		END $$`,
		// The connecting user needs membership in the restricted role to
		// SET LOCAL ROLE during visibility checks. Superusers can switch
		// without it, but real deployments run as a plain role.
		`GRANT ` + RealtimeRole + ` TO CURRENT_USER`,
		sqlgen.CompileNotifyFunction(),
	}
}

// Migrate installs the fixed pieces the system needs: the registry table,
// the restricted realtime role, its grant to the connecting user and the
// shared notify trigger function. All statements are idempotent, so running
// Migrate on every start is safe.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrateStatements() {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the pool.
func (db *DB) Close() {
	db.Pool.Close()
}
