package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// TriggerManager installs and removes the per-table change triggers. Both
// directions are idempotent: enabling consults pg_trigger before creating,
// and dropping uses IF EXISTS.
type TriggerManager struct {
	db      *DB
	catalog *Catalog
	logger  zerolog.Logger
}

// NewTriggerManager creates a trigger manager on the given database.
func NewTriggerManager(db *DB, catalog *Catalog, logger zerolog.Logger) *TriggerManager {
	return &TriggerManager{
		db:      db,
		catalog: catalog,
		logger:  logger.With().Str("component", "trigger").Logger(),
	}
}

// Enable installs the change trigger on a table. A second Enable is a no-op;
// the catalog, not a cached flag, decides whether the trigger is present.
func (m *TriggerManager) Enable(ctx context.Context, table string) error {
	exists, err := m.catalog.TriggerExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		m.logger.Debug().Str("table", table).Msg("change trigger already installed")
		return nil
	}

	stmt := sqlgen.CompileCreateTrigger(table)
	if _, err := m.db.Pool.Exec(ctx, stmt); err != nil {
		return &schema.DDLError{Statement: stmt, Err: err}
	}
	m.logger.Info().Str("table", table).Msg("change trigger installed")
	return nil
}

// Disable removes the change trigger. Disabling a table without a trigger
// is a no-op.
func (m *TriggerManager) Disable(ctx context.Context, table string) error {
	stmt := sqlgen.CompileDropTrigger(table)
	if _, err := m.db.Pool.Exec(ctx, stmt); err != nil {
		return &schema.DDLError{Statement: stmt, Err: err}
	}
	m.logger.Info().Str("table", table).Msg("change trigger removed")
	return nil
}

// Ensure interface compliance.
var _ ports.TriggerManager = (*TriggerManager)(nil)
