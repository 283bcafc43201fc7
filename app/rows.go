package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/ports"
)

// RowService reads and writes rows of registered tables. Every column name
// in a request is checked against the table's declared columns before it is
// ever interpolated as an identifier; values are always bound as parameters.
type RowService struct {
	tables ports.TableStore
	rows   ports.RowStore
	logger zerolog.Logger
}

// NewRowService creates the row service.
func NewRowService(tables ports.TableStore, rows ports.RowStore, logger zerolog.Logger) *RowService {
	return &RowService{
		tables: tables,
		rows:   rows,
		logger: logger.With().Str("component", "rows").Logger(),
	}
}

// splitValues validates the value map against the definition and returns
// parallel column/value slices in sorted column order. Standard columns are
// managed by the database and may not be written.
func splitValues(def schema.TableDefinition, values map[string]any) ([]string, []any, error) {
	columns := make([]string, 0, len(values))
	for name := range values {
		if schema.IsStandardColumn(name) {
			return nil, nil, &schema.InvalidNameError{Name: name, Reason: "standard columns are managed automatically"}
		}
		if _, ok := def.Column(name); !ok {
			return nil, nil, &schema.NotFoundError{Table: def.Name, Column: name}
		}
		columns = append(columns, name)
	}
	sort.Strings(columns)

	out := make([]any, len(columns))
	for i, name := range columns {
		out[i] = values[name]
	}
	return columns, out, nil
}

// Insert creates a row and returns it as stored, standard columns included.
func (s *RowService) Insert(ctx context.Context, tableID string, values map[string]any) (map[string]any, error) {
	def, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	columns, vals, err := splitValues(def, values)
	if err != nil {
		return nil, err
	}
	row, err := s.rows.Insert(ctx, def.Name, columns, vals)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("table", def.Name).Msg("row inserted")
	return row, nil
}

// Get returns one row by id.
func (s *RowService) Get(ctx context.Context, tableID, rowID string) (map[string]any, error) {
	def, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.rows.Get(ctx, def.Name, rowID)
}

// List returns rows in stable creation order.
func (s *RowService) List(ctx context.Context, tableID string, limit, offset int) ([]map[string]any, error) {
	def, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return s.rows.List(ctx, def.Name, limit, offset)
}

// Update patches the given columns of one row and returns the row as stored.
func (s *RowService) Update(ctx context.Context, tableID, rowID string, values map[string]any) (map[string]any, error) {
	def, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	columns, vals, err := splitValues(def, values)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return s.rows.Get(ctx, def.Name, rowID)
	}
	row, err := s.rows.Update(ctx, def.Name, rowID, columns, vals)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("table", def.Name).Msg("row updated")
	return row, nil
}

// Delete removes one row by id.
func (s *RowService) Delete(ctx context.Context, tableID, rowID string) error {
	def, err := s.tables.Get(ctx, tableID)
	if err != nil {
		return err
	}
	if err := s.rows.Delete(ctx, def.Name, rowID); err != nil {
		return err
	}
	s.logger.Debug().Str("table", def.Name).Msg("row deleted")
	return nil
}
