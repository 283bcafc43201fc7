package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// RowStore reads and writes rows of user tables. Identifiers are validated
// by the row service before they get here; values always travel as bind
// parameters, never inside SQL text.
type RowStore struct {
	db *DB
}

// NewRowStore creates a row store on the given database.
func NewRowStore(db *DB) *RowStore {
	return &RowStore{db: db}
}

func (s *RowStore) Insert(ctx context.Context, table string, columns []string, values []any) (map[string]any, error) {
	var sql string
	if len(columns) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", sqlgen.QuoteIdent(table))
	} else {
		quoted := make([]string, len(columns))
		params := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = sqlgen.QuoteIdent(col)
			params[i] = fmt.Sprintf("$%d", i+1)
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			sqlgen.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
	}

	rows, err := s.db.Pool.Query(ctx, sql, values...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToMap)
}

func (s *RowStore) Get(ctx context.Context, table, rowID string) (map[string]any, error) {
	rows, err := s.db.Pool.Query(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE id = $1", sqlgen.QuoteIdent(table)), rowID)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schema.NotFoundError{Table: table, Column: rowID}
	}
	return row, err
}

func (s *RowStore) List(ctx context.Context, table string, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Pool.Query(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY created_at, id LIMIT $1 OFFSET $2", sqlgen.QuoteIdent(table)),
		limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (s *RowStore) Update(ctx context.Context, table, rowID string, columns []string, values []any) (map[string]any, error) {
	sets := make([]string, len(columns))
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", sqlgen.QuoteIdent(col), i+1)
	}
	sets = append(sets, "updated_at = now()")
	args := append(append([]any{}, values...), rowID)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		sqlgen.QuoteIdent(table), strings.Join(sets, ", "), len(columns)+1)

	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &schema.NotFoundError{Table: table, Column: rowID}
	}
	return row, err
}

func (s *RowStore) Delete(ctx context.Context, table, rowID string) error {
	tag, err := s.db.Pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1", sqlgen.QuoteIdent(table)), rowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &schema.NotFoundError{Table: table, Column: rowID}
	}
	return nil
}

// Ensure interface compliance.
var _ ports.RowStore = (*RowStore)(nil)
