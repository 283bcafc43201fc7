package postgres

import (
	"context"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// Catalog reads the live database catalog. Read operations on table
// structure go through here rather than the registry, so a drifted registry
// can never lie to a caller.
type Catalog struct {
	db *DB
}

// NewCatalog creates a catalog reader on the given database.
func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

// Columns returns the table's columns as the catalog reports them, in
// ordinal order.
func (c *Catalog) Columns(ctx context.Context, table string) ([]schema.CatalogColumn, error) {
	rows, err := c.db.Pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', COALESCE(column_default, ''), ordinal_position
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.CatalogColumn
	for rows.Next() {
		var col schema.CatalogColumn
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &col.Default, &col.Position); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &schema.NotFoundError{Table: table}
	}
	return cols, nil
}

// TableExists reports whether the physical table is present.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := c.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, table).Scan(&exists)
	return exists, err
}

// TriggerExists reports whether the table's change trigger is installed.
// The trigger's existence, not any cached flag, is what "realtime enabled"
// means.
func (c *Catalog) TriggerExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := c.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM pg_trigger t
			JOIN pg_class r ON r.oid = t.tgrelid
			JOIN pg_namespace n ON n.oid = r.relnamespace
			WHERE t.tgname = $1 AND r.relname = $2 AND n.nspname = 'public' AND NOT t.tgisinternal
		)
	`, sqlgen.TriggerName(table), table).Scan(&exists)
	return exists, err
}

// Ensure interface compliance.
var _ ports.Catalog = (*Catalog)(nil)
