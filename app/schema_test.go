package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/clock"
	"github.com/rowbase/rowbase/adapters/idgen"
	"github.com/rowbase/rowbase/adapters/memory"
	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/domain/schema"
)

func newSchemaService(t *testing.T) (*app.SchemaService, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend()
	collector, _ := metrics.New()
	svc := app.NewSchemaService(app.SchemaServiceDeps{
		Store:        backend,
		Catalog:      backend,
		Triggers:     backend,
		Clock:        clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		IDs:          idgen.NewSequential("tbl_"),
		RealtimeRole: "rowbase_realtime",
		Logger:       zerolog.Nop(),
		Metrics:      collector,
	})
	return svc, backend
}

func TestSchemaService_CreateTable(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "articles",
		OwnerID: "u1",
		Columns: []schema.ColumnSpec{
			{Name: "title", Type: schema.TypeText},
			{Name: "views", Type: schema.TypeInteger, Default: "0"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if def.ID == "" || def.Name != "articles" {
		t.Errorf("unexpected definition: %+v", def)
	}
	if def.RealtimeEnabled {
		t.Error("realtime should be off by default")
	}

	stored, err := backend.GetByName(ctx, "articles")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if len(stored.Columns) != 2 {
		t.Errorf("stored columns = %d, want 2", len(stored.Columns))
	}
	if installed, _ := backend.TriggerExists(ctx, "articles"); installed {
		t.Error("trigger should not be installed without realtime")
	}
}

func TestSchemaService_CreateTable_WithRealtime(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:            "chats",
		OwnerID:         "u1",
		RealtimeEnabled: true,
		Columns:         []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if !def.RealtimeEnabled {
		t.Error("realtime flag not set")
	}
	if installed, _ := backend.TriggerExists(ctx, "chats"); !installed {
		t.Error("trigger should be installed")
	}
}

func TestSchemaService_CreateTable_InvalidName(t *testing.T) {
	svc, _ := newSchemaService(t)

	_, err := svc.CreateTable(context.Background(), app.CreateParams{
		Name:    "1bad",
		Columns: []schema.ColumnSpec{{Name: "a", Type: schema.TypeText}},
	})
	var invalid *schema.InvalidNameError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidNameError, got %v", err)
	}
}

func TestSchemaService_CreateTable_Conflict(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	params := app.CreateParams{
		Name:    "posts",
		Columns: []schema.ColumnSpec{{Name: "title", Type: schema.TypeText}},
	}
	if _, err := svc.CreateTable(ctx, params); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateTable(ctx, params)
	var conflict *schema.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSchemaService_CreateTable_DDLFailure(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	backend.FailNextDDL(errors.New("permission denied"))
	_, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "broken",
		Columns: []schema.ColumnSpec{{Name: "a", Type: schema.TypeText}},
	})
	var ddlErr *schema.DDLError
	if !errors.As(err, &ddlErr) {
		t.Fatalf("expected DDLError, got %v", err)
	}

	// The registry must not contain the table after the rollback.
	if _, err := backend.GetByName(ctx, "broken"); err == nil {
		t.Error("registry row survived a failed create")
	}
}

func TestSchemaService_GetTableStructure(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "notes",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	st, err := svc.GetTableStructure(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetTableStructure: %v", err)
	}
	// Standard columns come first, then declared ones.
	want := []string{"id", "created_at", "updated_at", "body"}
	if len(st.Columns) != len(want) {
		t.Fatalf("columns = %d, want %d", len(st.Columns), len(want))
	}
	for i, name := range want {
		if st.Columns[i].Name != name {
			t.Errorf("column[%d] = %s, want %s", i, st.Columns[i].Name, name)
		}
	}
}

func TestSchemaService_GetTableStructure_Drift(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "drifted",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	// Simulate a column added behind the service's back. The structure
	// call must serve the catalog state, not the stale registry.
	backend.SetCatalogColumns("drifted", []schema.CatalogColumn{
		{Name: "id", DataType: "uuid", Position: 1},
		{Name: "created_at", DataType: "timestamp with time zone", Position: 2},
		{Name: "updated_at", DataType: "timestamp with time zone", Position: 3},
		{Name: "body", DataType: "TEXT", Position: 4},
		{Name: "extra", DataType: "TEXT", Position: 5},
	})

	st, err := svc.GetTableStructure(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetTableStructure: %v", err)
	}
	if len(st.Columns) != 5 {
		t.Fatalf("columns = %d, want 5 (catalog wins)", len(st.Columns))
	}
	if st.Columns[4].Name != "extra" {
		t.Errorf("last column = %s, want extra", st.Columns[4].Name)
	}
}

func TestSchemaService_UpdateTableMetadata_Realtime(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "feed",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	on := true
	def, err = svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &on})
	if err != nil {
		t.Fatalf("enable realtime: %v", err)
	}
	if !def.RealtimeEnabled {
		t.Error("flag not set after enable")
	}
	if installed, _ := backend.TriggerExists(ctx, "feed"); !installed {
		t.Error("trigger missing after enable")
	}

	off := false
	def, err = svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &off})
	if err != nil {
		t.Fatalf("disable realtime: %v", err)
	}
	if def.RealtimeEnabled {
		t.Error("flag still set after disable")
	}
	if installed, _ := backend.TriggerExists(ctx, "feed"); installed {
		t.Error("trigger still installed after disable")
	}
}

func TestSchemaService_UpdateTableMetadata_RealtimeFailureKeepsFlag(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "strict",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	backend.FailNextDDL(errors.New("no permission"))
	on := true
	if _, err := svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &on}); err == nil {
		t.Fatal("expected error from failed trigger install")
	}

	// The flag must never claim a trigger that does not exist.
	stored, err := svc.GetTable(ctx, def.ID)
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if stored.RealtimeEnabled {
		t.Error("flag set despite failed trigger install")
	}
}

// brokenTriggers fails every trigger install, delegating the rest to the
// backend.
type brokenTriggers struct {
	*memory.Backend
}

func (b brokenTriggers) Enable(ctx context.Context, table string) error {
	return &schema.DDLError{Statement: "CREATE TRIGGER", Err: errors.New("permission denied")}
}

func TestSchemaService_CreateTable_RealtimeFailureLeavesNoTable(t *testing.T) {
	backend := memory.NewBackend()
	collector, _ := metrics.New()
	svc := app.NewSchemaService(app.SchemaServiceDeps{
		Store:        backend,
		Catalog:      backend,
		Triggers:     brokenTriggers{backend},
		Clock:        clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		IDs:          idgen.NewSequential("tbl_"),
		RealtimeRole: "rowbase_realtime",
		Logger:       zerolog.Nop(),
		Metrics:      collector,
	})
	ctx := context.Background()

	params := app.CreateParams{
		Name:            "chats",
		RealtimeEnabled: true,
		Columns:         []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	}
	if _, err := svc.CreateTable(ctx, params); err == nil {
		t.Fatal("expected error from failed trigger install")
	}

	// The whole create must have been undone: no registry row, no table,
	// and a retry must not run into a name conflict.
	if _, err := backend.GetByName(ctx, "chats"); err == nil {
		t.Error("table survived a failed create with realtime")
	}
	params.RealtimeEnabled = false
	if _, err := svc.CreateTable(ctx, params); err != nil {
		t.Errorf("retry after rollback: %v", err)
	}
}

func TestSchemaService_UpdateTableMetadata_RealtimeIdempotent(t *testing.T) {
	backend := memory.NewBackend()
	collector, _ := metrics.New()
	fake := clock.NewFake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := app.NewSchemaService(app.SchemaServiceDeps{
		Store:        backend,
		Catalog:      backend,
		Triggers:     backend,
		Clock:        fake,
		IDs:          idgen.NewSequential("tbl_"),
		RealtimeRole: "rowbase_realtime",
		Logger:       zerolog.Nop(),
		Metrics:      collector,
	})
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:            "feed",
		RealtimeEnabled: true,
		Columns:         []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	// Enabling an already-enabled table is a no-op: nothing touches the
	// trigger or the registry row.
	fake.Advance(time.Hour)
	on := true
	again, err := svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &on})
	if err != nil {
		t.Fatalf("second enable: %v", err)
	}
	if !again.RealtimeEnabled {
		t.Error("flag lost on repeated enable")
	}
	if !again.UpdatedAt.Equal(def.UpdatedAt) {
		t.Error("no-op enable touched the registry row")
	}
	if installed, _ := backend.TriggerExists(ctx, "feed"); !installed {
		t.Error("trigger missing after repeated enable")
	}

	// Disabling twice: the second call is equally a no-op.
	off := false
	if def, err = svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &off}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	fake.Advance(time.Hour)
	again, err = svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &off})
	if err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if again.RealtimeEnabled {
		t.Error("flag set after repeated disable")
	}
	if !again.UpdatedAt.Equal(def.UpdatedAt) {
		t.Error("no-op disable touched the registry row")
	}
	if installed, _ := backend.TriggerExists(ctx, "feed"); installed {
		t.Error("trigger present after disable")
	}
}

func TestSchemaService_DisableRealtimeWithoutTrigger(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "quiet",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	// The table never had a trigger; asking for realtime off stays a no-op.
	off := false
	got, err := svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{RealtimeEnabled: &off})
	if err != nil {
		t.Fatalf("disable without trigger: %v", err)
	}
	if got.RealtimeEnabled {
		t.Error("flag set on never-enabled table")
	}
	if installed, _ := backend.TriggerExists(ctx, "quiet"); installed {
		t.Error("trigger appeared out of nowhere")
	}
}

func TestSchemaService_UpdateTableMetadata_Public(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "docs",
		Columns: []schema.ColumnSpec{{Name: "body", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	public := true
	def, err = svc.UpdateTableMetadata(ctx, def.ID, app.MetadataPatch{Public: &public})
	if err != nil {
		t.Fatalf("UpdateTableMetadata: %v", err)
	}
	if !def.Public {
		t.Error("public flag not set")
	}
}

func TestSchemaService_DeleteTable(t *testing.T) {
	svc, backend := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "gone",
		Columns: []schema.ColumnSpec{{Name: "a", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := svc.DeleteTable(ctx, def.ID); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if _, err := backend.GetByName(ctx, "gone"); err == nil {
		t.Error("registry row survived delete")
	}

	var notFound *schema.NotFoundError
	if err := svc.DeleteTable(ctx, def.ID); !errors.As(err, &notFound) {
		t.Errorf("second delete: expected NotFoundError, got %v", err)
	}
}

func TestSchemaService_AddColumn(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name:    "items",
		Columns: []schema.ColumnSpec{{Name: "name", Type: schema.TypeText}},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	def, err = svc.AddColumn(ctx, def.ID, schema.ColumnSpec{Name: "price", Type: schema.TypeInteger})
	if err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if _, ok := def.Column("price"); !ok {
		t.Error("price column missing from definition")
	}

	// Duplicate against a declared column.
	var conflict *schema.ConflictError
	if _, err := svc.AddColumn(ctx, def.ID, schema.ColumnSpec{Name: "price", Type: schema.TypeText}); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError, got %v", err)
	}
	// Duplicate against a standard column.
	if _, err := svc.AddColumn(ctx, def.ID, schema.ColumnSpec{Name: "id", Type: schema.TypeText}); err == nil {
		t.Error("adding a standard column name should fail")
	}
}

func TestSchemaService_DropColumn(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name: "wide",
		Columns: []schema.ColumnSpec{
			{Name: "keep", Type: schema.TypeText},
			{Name: "drop_me", Type: schema.TypeText},
		},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	def, err = svc.DropColumn(ctx, def.ID, "drop_me")
	if err != nil {
		t.Fatalf("DropColumn: %v", err)
	}
	if _, ok := def.Column("drop_me"); ok {
		t.Error("column still declared after drop")
	}

	var notFound *schema.NotFoundError
	if _, err := svc.DropColumn(ctx, def.ID, "drop_me"); !errors.As(err, &notFound) {
		t.Errorf("second drop: expected NotFoundError, got %v", err)
	}
	if _, err := svc.DropColumn(ctx, def.ID, "created_at"); err == nil {
		t.Error("dropping a standard column should fail")
	}
}

func TestSchemaService_AlterColumnType(t *testing.T) {
	svc, _ := newSchemaService(t)
	ctx := context.Background()

	def, err := svc.CreateTable(ctx, app.CreateParams{
		Name: "casts",
		Columns: []schema.ColumnSpec{
			{Name: "first", Type: schema.TypeText},
			{Name: "amount", Type: schema.TypeText, Default: "zero"},
			{Name: "last", Type: schema.TypeText},
		},
	})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	def, err = svc.AlterColumnType(ctx, def.ID, "amount", schema.TypeInteger)
	if err != nil {
		t.Fatalf("AlterColumnType: %v", err)
	}
	col, ok := def.Column("amount")
	if !ok {
		t.Fatal("amount column missing")
	}
	if col.Type != schema.TypeInteger {
		t.Errorf("type = %s, want integer", col.Type)
	}
	if col.Default != "" {
		t.Errorf("default should be cleared on type change, got %q", col.Default)
	}
	// Column order must be preserved.
	if def.Columns[1].Name != "amount" {
		t.Errorf("column order changed: %+v", def.Columns)
	}

	if _, err := svc.AlterColumnType(ctx, def.ID, "amount", schema.ColumnType("blob")); err == nil {
		t.Error("unknown type should be rejected")
	}
	var notFound *schema.NotFoundError
	if _, err := svc.AlterColumnType(ctx, def.ID, "missing", schema.TypeText); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
