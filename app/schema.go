// Package app provides the application services that tie the domain to the
// storage, trigger and realtime adapters.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// SchemaService implements the schema registry operations: each write
// validates, compiles and executes DDL together with the registry mutation
// as one unit, and serializes DDL per table so two mutations can never
// interleave on the same table.
type SchemaService struct {
	store        ports.TableStore
	catalog      ports.Catalog
	triggers     ports.TriggerManager
	clock        ports.Clock
	ids          ports.IDGenerator
	realtimeRole string
	logger       zerolog.Logger
	metrics      *metrics.Collector

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// SchemaServiceDeps contains dependencies for the schema service.
type SchemaServiceDeps struct {
	Store        ports.TableStore
	Catalog      ports.Catalog
	Triggers     ports.TriggerManager
	Clock        ports.Clock
	IDs          ports.IDGenerator
	RealtimeRole string
	Logger       zerolog.Logger
	Metrics      *metrics.Collector
}

// NewSchemaService creates the schema service.
func NewSchemaService(deps SchemaServiceDeps) *SchemaService {
	return &SchemaService{
		store:        deps.Store,
		catalog:      deps.Catalog,
		triggers:     deps.Triggers,
		clock:        deps.Clock,
		ids:          deps.IDs,
		realtimeRole: deps.RealtimeRole,
		logger:       deps.Logger.With().Str("component", "schema").Logger(),
		metrics:      deps.Metrics,
		locks:        make(map[string]*sync.Mutex),
	}
}

// tableLock returns the mutex serializing DDL for one table name.
func (s *SchemaService) tableLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *SchemaService) countDDL(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.DDLTotal.WithLabelValues(op, status).Inc()
}

// CreateParams describes a table-create request.
type CreateParams struct {
	Name            string
	OwnerID         string
	Public          bool
	RealtimeEnabled bool
	Columns         []schema.ColumnSpec
}

// CreateTable validates the definition, creates the physical table with its
// standard columns and row security, registers it, and optionally enables
// realtime. A failure anywhere leaves neither a table nor a registry row.
func (s *SchemaService) CreateTable(ctx context.Context, p CreateParams) (schema.TableDefinition, error) {
	now := s.clock.Now().UTC()
	def := schema.TableDefinition{
		ID:        s.ids.New(),
		Name:      p.Name,
		OwnerID:   p.OwnerID,
		Public:    p.Public,
		Columns:   p.Columns,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := schema.ValidateDefinition(def); err != nil {
		return schema.TableDefinition{}, err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	create, err := sqlgen.CompileCreate(def)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	ddl := append([]string{create}, sqlgen.CompileRowSecurity(def, s.realtimeRole)...)

	err = s.store.Create(ctx, def, ddl)
	s.countDDL("create_table", err)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	s.logger.Info().Str("table", def.Name).Int("columns", len(def.Columns)).Msg("table created")

	// Realtime is enabled as a separate step so the registry flag is only
	// set once the trigger verifiably exists. The create is still one
	// logical unit: a failure here drops the table again, so the caller
	// never sees a half-created table and a retry never conflicts.
	if p.RealtimeEnabled {
		enabled, err := s.setRealtime(ctx, def, true)
		if err != nil {
			if derr := s.store.Delete(ctx, def, []string{sqlgen.CompileDrop(def.Name)}); derr != nil {
				s.logger.Error().Err(derr).Str("table", def.Name).Msg("could not drop table after failed realtime enable")
			}
			return schema.TableDefinition{}, err
		}
		def = enabled
	}
	return def, nil
}

// GetTable returns the registry definition by id.
func (s *SchemaService) GetTable(ctx context.Context, id string) (schema.TableDefinition, error) {
	return s.store.Get(ctx, id)
}

// ListTables returns all registered definitions.
func (s *SchemaService) ListTables(ctx context.Context) ([]schema.TableDefinition, error) {
	return s.store.List(ctx)
}

// TableStructure pairs a registry definition with the catalog's view of its
// columns. The catalog side is authoritative.
type TableStructure struct {
	Definition schema.TableDefinition
	Columns    []schema.CatalogColumn
}

// GetTableStructure re-derives the column list from the live catalog rather
// than the registry, so registry drift can never be served to a caller.
// Detected drift is logged; the catalog wins.
func (s *SchemaService) GetTableStructure(ctx context.Context, id string) (TableStructure, error) {
	def, err := s.store.Get(ctx, id)
	if err != nil {
		return TableStructure{}, err
	}
	cols, err := s.catalog.Columns(ctx, def.Name)
	if err != nil {
		return TableStructure{}, err
	}

	if err := checkDrift(def, cols); err != nil {
		s.logger.Warn().Err(err).Str("table", def.Name).Msg("registry drift detected, serving catalog state")
	}
	return TableStructure{Definition: def, Columns: cols}, nil
}

// checkDrift compares the declared column set with the catalog's.
func checkDrift(def schema.TableDefinition, cols []schema.CatalogColumn) error {
	catalogSet := make(map[string]bool, len(cols))
	for _, c := range cols {
		catalogSet[c.Name] = true
	}
	for _, c := range def.Columns {
		if !catalogSet[c.Name] {
			return &schema.SyncError{Table: def.Name, Detail: "registry column " + c.Name + " missing from catalog"}
		}
	}
	declared := make(map[string]bool, len(def.Columns))
	for _, c := range def.Columns {
		declared[c.Name] = true
	}
	for _, c := range cols {
		if !declared[c.Name] && !schema.IsStandardColumn(c.Name) {
			return &schema.SyncError{Table: def.Name, Detail: "catalog column " + c.Name + " missing from registry"}
		}
	}
	return nil
}

// MetadataPatch carries the updatable metadata fields. Nil means unchanged.
type MetadataPatch struct {
	Public          *bool
	RealtimeEnabled *bool
}

// UpdateTableMetadata applies a metadata patch. Toggling public swaps the
// table's visibility policy; toggling realtime installs or removes the
// change trigger before the flag is persisted, so the flag always matches
// trigger existence.
func (s *SchemaService) UpdateTableMetadata(ctx context.Context, id string, patch MetadataPatch) (schema.TableDefinition, error) {
	def, err := s.store.Get(ctx, id)
	if err != nil {
		return schema.TableDefinition{}, err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent mutation may have landed.
	if def, err = s.store.Get(ctx, id); err != nil {
		return schema.TableDefinition{}, err
	}

	if patch.Public != nil && *patch.Public != def.Public {
		def.Public = *patch.Public
		def.UpdatedAt = s.clock.Now().UTC()
		ddl := sqlgen.CompileReplacePolicy(def)
		err = s.store.UpdateMetadata(ctx, def, ddl)
		s.countDDL("replace_policy", err)
		if err != nil {
			return schema.TableDefinition{}, err
		}
		s.logger.Info().Str("table", def.Name).Bool("public", def.Public).Msg("visibility policy replaced")
	}

	if patch.RealtimeEnabled != nil && *patch.RealtimeEnabled != def.RealtimeEnabled {
		if def, err = s.setRealtime(ctx, def, *patch.RealtimeEnabled); err != nil {
			return schema.TableDefinition{}, err
		}
	}
	return def, nil
}

// setRealtime flips the change trigger and then the registry flag. The
// trigger's presence in the catalog is the real state; the flag follows it,
// and is only persisted after the catalog confirms the toggle took.
func (s *SchemaService) setRealtime(ctx context.Context, def schema.TableDefinition, on bool) (schema.TableDefinition, error) {
	var err error
	if on {
		err = s.triggers.Enable(ctx, def.Name)
	} else {
		err = s.triggers.Disable(ctx, def.Name)
	}
	s.countDDL("toggle_realtime", err)
	if err != nil {
		return schema.TableDefinition{}, err
	}

	exists, err := s.catalog.TriggerExists(ctx, def.Name)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	if exists != on {
		return schema.TableDefinition{}, &schema.SyncError{Table: def.Name, Detail: "trigger state did not match requested realtime state"}
	}

	def.RealtimeEnabled = on
	def.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateMetadata(ctx, def, nil); err != nil {
		return schema.TableDefinition{}, err
	}
	s.logger.Info().Str("table", def.Name).Bool("realtime", on).Msg("realtime toggled")
	return def, nil
}

// DeleteTable drops the physical table (its trigger and policies go with
// it) and removes the registry row atomically. Irreversible.
func (s *SchemaService) DeleteTable(ctx context.Context, id string) error {
	def, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	err = s.store.Delete(ctx, def, []string{sqlgen.CompileDrop(def.Name)})
	s.countDDL("drop_table", err)
	if err != nil {
		return err
	}
	s.logger.Info().Str("table", def.Name).Msg("table dropped")
	return nil
}

// AddColumn appends a column to the table. The new column may not collide
// with a declared, standard or physical column.
func (s *SchemaService) AddColumn(ctx context.Context, tableID string, col schema.ColumnSpec) (schema.TableDefinition, error) {
	def, err := s.store.Get(ctx, tableID)
	if err != nil {
		return schema.TableDefinition{}, err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	if def, err = s.store.Get(ctx, tableID); err != nil {
		return schema.TableDefinition{}, err
	}
	if err := schema.ValidateColumn(col); err != nil {
		return schema.TableDefinition{}, err
	}
	if _, exists := def.Column(col.Name); exists {
		return schema.TableDefinition{}, &schema.ConflictError{Table: def.Name, Column: col.Name}
	}
	// The catalog has the final word on what exists.
	cols, err := s.catalog.Columns(ctx, def.Name)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	for _, c := range cols {
		if c.Name == col.Name {
			return schema.TableDefinition{}, &schema.ConflictError{Table: def.Name, Column: col.Name}
		}
	}

	ddl, err := sqlgen.CompileAddColumn(def.Name, col)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	next := def.WithColumn(col)
	next.UpdatedAt = s.clock.Now().UTC()

	err = s.store.UpdateSchema(ctx, next, ddl)
	s.countDDL("add_column", err)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	s.logger.Info().Str("table", def.Name).Str("column", col.Name).Msg("column added")
	return next, nil
}

// DropColumn removes a column from the table. Destructive and irreversible;
// the caller is expected to have confirmed out-of-band. Standard columns
// cannot be dropped.
func (s *SchemaService) DropColumn(ctx context.Context, tableID, column string) (schema.TableDefinition, error) {
	def, err := s.store.Get(ctx, tableID)
	if err != nil {
		return schema.TableDefinition{}, err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	if def, err = s.store.Get(ctx, tableID); err != nil {
		return schema.TableDefinition{}, err
	}
	if schema.IsStandardColumn(column) {
		return schema.TableDefinition{}, &schema.InvalidNameError{Name: column, Reason: "standard columns cannot be dropped"}
	}
	if _, exists := def.Column(column); !exists {
		return schema.TableDefinition{}, &schema.NotFoundError{Table: def.Name, Column: column}
	}

	next := def.WithoutColumn(column)
	next.UpdatedAt = s.clock.Now().UTC()

	err = s.store.UpdateSchema(ctx, next, sqlgen.CompileDropColumn(def.Name, column))
	s.countDDL("drop_column", err)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	s.logger.Info().Str("table", def.Name).Str("column", column).Msg("column dropped")
	return next, nil
}

// AlterColumnType changes a declared column's type with an explicit cast.
// The database rejects casts incompatible with existing data, rolling the
// registry back with the statement.
func (s *SchemaService) AlterColumnType(ctx context.Context, tableID, column string, newType schema.ColumnType) (schema.TableDefinition, error) {
	def, err := s.store.Get(ctx, tableID)
	if err != nil {
		return schema.TableDefinition{}, err
	}

	lock := s.tableLock(def.Name)
	lock.Lock()
	defer lock.Unlock()

	if def, err = s.store.Get(ctx, tableID); err != nil {
		return schema.TableDefinition{}, err
	}
	if _, err := schema.ValidateColumnType(string(newType)); err != nil {
		return schema.TableDefinition{}, err
	}
	cur, exists := def.Column(column)
	if !exists {
		return schema.TableDefinition{}, &schema.NotFoundError{Table: def.Name, Column: column}
	}

	cur.Type = newType
	cur.Default = "" // a cast invalidates the old default literal
	next := def
	next.Columns = make([]schema.ColumnSpec, len(def.Columns))
	copy(next.Columns, def.Columns)
	for i, c := range next.Columns {
		if c.Name == column {
			next.Columns[i] = cur
		}
	}
	next.UpdatedAt = s.clock.Now().UTC()

	err = s.store.UpdateSchema(ctx, next, sqlgen.CompileAlterColumnType(def.Name, column, newType))
	s.countDDL("alter_column", err)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	s.logger.Info().Str("table", def.Name).Str("column", column).Str("type", string(newType)).Msg("column type changed")
	return next, nil
}
