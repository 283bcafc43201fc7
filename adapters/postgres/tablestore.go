package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/ports"
)

// TableStore implements ports.TableStore against the registry table. Every
// write runs the registry mutation and the accompanying DDL in one
// transaction; Postgres DDL is transactional, so a failure on either side
// rolls back both and the registry can never drift from the catalog.
type TableStore struct {
	db *DB
}

// NewTableStore creates a registry store on the given database.
func NewTableStore(db *DB) *TableStore {
	return &TableStore{db: db}
}

// columnRecord is the JSONB shape of one declared column. An array keeps
// declaration order, which a JSON object would not.
type columnRecord struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	References string `json:"references,omitempty"`
}

func marshalColumns(cols []schema.ColumnSpec) ([]byte, error) {
	records := make([]columnRecord, len(cols))
	for i, c := range cols {
		records[i] = columnRecord{
			Name:       c.Name,
			Type:       string(c.Type),
			Nullable:   c.Nullable,
			Default:    c.Default,
			Constraint: string(c.Constraint),
			References: c.References,
		}
	}
	return json.Marshal(records)
}

func unmarshalColumns(data []byte) ([]schema.ColumnSpec, error) {
	var records []columnRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	cols := make([]schema.ColumnSpec, len(records))
	for i, r := range records {
		cols[i] = schema.ColumnSpec{
			Name:       r.Name,
			Type:       schema.ColumnType(r.Type),
			Nullable:   r.Nullable,
			Default:    r.Default,
			Constraint: schema.Constraint(r.Constraint),
			References: r.References,
		}
	}
	return cols, nil
}

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

func (s *TableStore) Create(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	cols, err := marshalColumns(def.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Registry row first: a name collision fails fast before any DDL runs.
	_, err = tx.Exec(ctx, `
		INSERT INTO `+registryTable+` (id, name, owner_id, public, realtime_enabled, table_schema, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, def.ID, def.Name, def.OwnerID, def.Public, def.RealtimeEnabled, cols, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &schema.ConflictError{Table: def.Name}
		}
		return err
	}

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &schema.DDLError{Statement: stmt, Err: err}
		}
	}

	return tx.Commit(ctx)
}

func (s *TableStore) Get(ctx context.Context, id string) (schema.TableDefinition, error) {
	return s.scanOne(s.db.Pool.QueryRow(ctx, `
		SELECT id, name, owner_id, public, realtime_enabled, table_schema, created_at, updated_at
		FROM `+registryTable+`
		WHERE id = $1
	`, id), id)
}

func (s *TableStore) GetByName(ctx context.Context, name string) (schema.TableDefinition, error) {
	return s.scanOne(s.db.Pool.QueryRow(ctx, `
		SELECT id, name, owner_id, public, realtime_enabled, table_schema, created_at, updated_at
		FROM `+registryTable+`
		WHERE name = $1
	`, name), name)
}

func (s *TableStore) scanOne(row pgx.Row, key string) (schema.TableDefinition, error) {
	var (
		def     schema.TableDefinition
		rawCols []byte
	)
	err := row.Scan(&def.ID, &def.Name, &def.OwnerID, &def.Public, &def.RealtimeEnabled, &rawCols, &def.CreatedAt, &def.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.TableDefinition{}, &schema.NotFoundError{Table: key}
	}
	if err != nil {
		return schema.TableDefinition{}, err
	}
	def.Columns, err = unmarshalColumns(rawCols)
	if err != nil {
		return schema.TableDefinition{}, fmt.Errorf("unmarshal columns for %q: %w", def.Name, err)
	}
	return def, nil
}

func (s *TableStore) List(ctx context.Context) ([]schema.TableDefinition, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, name, owner_id, public, realtime_enabled, table_schema, created_at, updated_at
		FROM `+registryTable+`
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []schema.TableDefinition
	for rows.Next() {
		var (
			def     schema.TableDefinition
			rawCols []byte
		)
		if err := rows.Scan(&def.ID, &def.Name, &def.OwnerID, &def.Public, &def.RealtimeEnabled, &rawCols, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		if def.Columns, err = unmarshalColumns(rawCols); err != nil {
			return nil, fmt.Errorf("unmarshal columns for %q: %w", def.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *TableStore) UpdateMetadata(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE `+registryTable+`
		SET public = $2, realtime_enabled = $3, updated_at = $4
		WHERE id = $1
	`, def.ID, def.Public, def.RealtimeEnabled, def.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &schema.NotFoundError{Table: def.Name}
	}

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &schema.DDLError{Statement: stmt, Err: err}
		}
	}
	return tx.Commit(ctx)
}

func (s *TableStore) UpdateSchema(ctx context.Context, def schema.TableDefinition, ddl string) error {
	cols, err := marshalColumns(def.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE `+registryTable+`
		SET table_schema = $2, updated_at = $3
		WHERE id = $1
	`, def.ID, cols, def.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &schema.NotFoundError{Table: def.Name}
	}

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return &schema.DDLError{Statement: ddl, Err: err}
	}
	return tx.Commit(ctx)
}

func (s *TableStore) Delete(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM `+registryTable+` WHERE id = $1`, def.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &schema.NotFoundError{Table: def.Name}
	}

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &schema.DDLError{Statement: stmt, Err: err}
		}
	}
	return tx.Commit(ctx)
}

// Ensure interface compliance.
var _ ports.TableStore = (*TableStore)(nil)
