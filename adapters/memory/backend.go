// Package memory provides in-memory implementations of the storage ports for
// tests. The backend keeps a registry, a simulated catalog and row data in
// lockstep the way the postgres adapter's transactions do, and can inject
// DDL failures and catalog drift to exercise the error paths.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/ports"
)

// Backend implements ports.TableStore, ports.Catalog, ports.TriggerManager
// and ports.RowStore against process memory.
type Backend struct {
	mu       sync.RWMutex
	tables   map[string]schema.TableDefinition // by id
	byName   map[string]string                 // name -> id
	triggers map[string]bool                   // table name -> trigger installed
	rows     map[string]map[string]map[string]any

	// driftColumns, when set for a table, overrides the derived catalog
	// columns to simulate registry/catalog disagreement.
	driftColumns map[string][]schema.CatalogColumn

	// ddlErr fails the next write that carries DDL, leaving state untouched.
	ddlErr error
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		tables:       make(map[string]schema.TableDefinition),
		byName:       make(map[string]string),
		triggers:     make(map[string]bool),
		rows:         make(map[string]map[string]map[string]any),
		driftColumns: make(map[string][]schema.CatalogColumn),
	}
}

// FailNextDDL makes the next DDL-carrying write return err without applying.
func (b *Backend) FailNextDDL(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ddlErr = err
}

// SetCatalogColumns overrides the catalog view of a table (drift injection).
func (b *Backend) SetCatalogColumns(table string, cols []schema.CatalogColumn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driftColumns[table] = cols
}

func (b *Backend) takeDDLErr() error {
	err := b.ddlErr
	b.ddlErr = nil
	return err
}

// -----------------------------------------------------------------------------
// ports.TableStore
// -----------------------------------------------------------------------------

func (b *Backend) Create(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeDDLErr(); err != nil {
		return &schema.DDLError{Statement: first(ddl), Err: err}
	}
	if _, ok := b.byName[def.Name]; ok {
		return &schema.ConflictError{Table: def.Name}
	}
	b.tables[def.ID] = def
	b.byName[def.Name] = def.ID
	b.rows[def.Name] = make(map[string]map[string]any)
	return nil
}

func (b *Backend) Get(ctx context.Context, id string) (schema.TableDefinition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.tables[id]
	if !ok {
		return schema.TableDefinition{}, &schema.NotFoundError{Table: id}
	}
	return def, nil
}

func (b *Backend) GetByName(ctx context.Context, name string) (schema.TableDefinition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byName[name]
	if !ok {
		return schema.TableDefinition{}, &schema.NotFoundError{Table: name}
	}
	return b.tables[id], nil
}

func (b *Backend) List(ctx context.Context) ([]schema.TableDefinition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	defs := make([]schema.TableDefinition, 0, len(b.tables))
	for _, def := range b.tables {
		defs = append(defs, def)
	}
	return defs, nil
}

func (b *Backend) UpdateMetadata(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(ddl) > 0 {
		if err := b.takeDDLErr(); err != nil {
			return &schema.DDLError{Statement: first(ddl), Err: err}
		}
	}
	if _, ok := b.tables[def.ID]; !ok {
		return &schema.NotFoundError{Table: def.Name}
	}
	b.tables[def.ID] = def
	return nil
}

func (b *Backend) UpdateSchema(ctx context.Context, def schema.TableDefinition, ddl string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeDDLErr(); err != nil {
		return &schema.DDLError{Statement: ddl, Err: err}
	}
	if _, ok := b.tables[def.ID]; !ok {
		return &schema.NotFoundError{Table: def.Name}
	}
	b.tables[def.ID] = def
	return nil
}

func (b *Backend) Delete(ctx context.Context, def schema.TableDefinition, ddl []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeDDLErr(); err != nil {
		return &schema.DDLError{Statement: first(ddl), Err: err}
	}
	if _, ok := b.tables[def.ID]; !ok {
		return &schema.NotFoundError{Table: def.Name}
	}
	delete(b.tables, def.ID)
	delete(b.byName, def.Name)
	delete(b.triggers, def.Name)
	delete(b.rows, def.Name)
	delete(b.driftColumns, def.Name)
	return nil
}

// -----------------------------------------------------------------------------
// ports.Catalog
// -----------------------------------------------------------------------------

func (b *Backend) Columns(ctx context.Context, table string) ([]schema.CatalogColumn, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if drift, ok := b.driftColumns[table]; ok {
		return drift, nil
	}
	id, ok := b.byName[table]
	if !ok {
		return nil, &schema.NotFoundError{Table: table}
	}
	def := b.tables[id]
	cols := []schema.CatalogColumn{
		{Name: "id", DataType: "uuid", Nullable: false, Position: 1},
		{Name: "created_at", DataType: "timestamp with time zone", Nullable: false, Position: 2},
		{Name: "updated_at", DataType: "timestamp with time zone", Nullable: false, Position: 3},
	}
	for i, c := range def.Columns {
		cols = append(cols, schema.CatalogColumn{
			Name:     c.Name,
			DataType: c.Type.SQL(),
			Nullable: c.Nullable,
			Default:  c.Default,
			Position: 4 + i,
		})
	}
	return cols, nil
}

func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byName[table]
	return ok, nil
}

func (b *Backend) TriggerExists(ctx context.Context, table string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.triggers[table], nil
}

// -----------------------------------------------------------------------------
// ports.TriggerManager
// -----------------------------------------------------------------------------

func (b *Backend) Enable(ctx context.Context, table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeDDLErr(); err != nil {
		return &schema.DDLError{Statement: "CREATE TRIGGER", Err: err}
	}
	b.triggers[table] = true
	return nil
}

func (b *Backend) Disable(ctx context.Context, table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.triggers, table)
	return nil
}

// -----------------------------------------------------------------------------
// ports.RowStore
// -----------------------------------------------------------------------------

// Rows returns the ports.RowStore view of the backend. A separate view is
// needed because TableStore and RowStore both declare Delete.
func (b *Backend) Rows() *RowView {
	return &RowView{b: b}
}

// RowView adapts the backend's row data to ports.RowStore.
type RowView struct {
	b *Backend
}

func (v *RowView) Insert(ctx context.Context, table string, columns []string, values []any) (map[string]any, error) {
	b := v.b
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.rows[table]
	if !ok {
		return nil, &schema.NotFoundError{Table: table}
	}
	now := time.Now().UTC()
	row := map[string]any{
		"id":         uuid.New().String(),
		"created_at": now,
		"updated_at": now,
	}
	for i, col := range columns {
		row[col] = values[i]
	}
	rows[row["id"].(string)] = row
	return copyRow(row), nil
}

func (v *RowView) Get(ctx context.Context, table, rowID string) (map[string]any, error) {
	b := v.b
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows, ok := b.rows[table]
	if !ok {
		return nil, &schema.NotFoundError{Table: table}
	}
	row, ok := rows[rowID]
	if !ok {
		return nil, &schema.NotFoundError{Table: table, Column: rowID}
	}
	return copyRow(row), nil
}

func (v *RowView) List(ctx context.Context, table string, limit, offset int) ([]map[string]any, error) {
	b := v.b
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows, ok := b.rows[table]
	if !ok {
		return nil, &schema.NotFoundError{Table: table}
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyRow(row))
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (v *RowView) Update(ctx context.Context, table, rowID string, columns []string, values []any) (map[string]any, error) {
	b := v.b
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.rows[table]
	if !ok {
		return nil, &schema.NotFoundError{Table: table}
	}
	row, ok := rows[rowID]
	if !ok {
		return nil, &schema.NotFoundError{Table: table, Column: rowID}
	}
	for i, col := range columns {
		row[col] = values[i]
	}
	row["updated_at"] = time.Now().UTC()
	return copyRow(row), nil
}

func (v *RowView) Delete(ctx context.Context, table, rowID string) error {
	b := v.b
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, ok := b.rows[table]
	if !ok {
		return &schema.NotFoundError{Table: table}
	}
	if _, ok := rows[rowID]; !ok {
		return &schema.NotFoundError{Table: table, Column: rowID}
	}
	delete(rows, rowID)
	return nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func first(ddl []string) string {
	if len(ddl) == 0 {
		return ""
	}
	return ddl[0]
}

// Ensure interface compliance.
var (
	_ ports.TableStore     = (*Backend)(nil)
	_ ports.Catalog        = (*Backend)(nil)
	_ ports.TriggerManager = (*Backend)(nil)
	_ ports.RowStore       = (*RowView)(nil)
)
