package sqlgen

import (
	"strings"
	"testing"

	"github.com/rowbase/rowbase/domain/schema"
)

func TestCompileCreate(t *testing.T) {
	def := schema.TableDefinition{
		Name: "notes",
		Columns: []schema.ColumnSpec{
			{Name: "body", Type: schema.TypeText, Nullable: true},
		},
	}

	got, err := CompileCreate(def)
	if err != nil {
		t.Fatalf("CompileCreate: %v", err)
	}
	want := `CREATE TABLE "notes" ("id" UUID PRIMARY KEY DEFAULT gen_random_uuid(), "created_at" TIMESTAMPTZ NOT NULL DEFAULT now(), "updated_at" TIMESTAMPTZ NOT NULL DEFAULT now(), "body" TEXT)`
	if got != want {
		t.Errorf("CompileCreate =\n  %s\nwant\n  %s", got, want)
	}
}

func TestCompileCreateColumnVariants(t *testing.T) {
	cases := []struct {
		name string
		col  schema.ColumnSpec
		want string // expected column clause
	}{
		{
			"not null",
			schema.ColumnSpec{Name: "title", Type: schema.TypeText},
			`"title" TEXT NOT NULL`,
		},
		{
			"integer default",
			schema.ColumnSpec{Name: "count", Type: schema.TypeInteger, Nullable: true, Default: "0"},
			`"count" BIGINT DEFAULT 0`,
		},
		{
			"boolean default",
			schema.ColumnSpec{Name: "pinned", Type: schema.TypeBoolean, Default: "false"},
			`"pinned" BOOLEAN DEFAULT false NOT NULL`,
		},
		{
			"text default quoted",
			schema.ColumnSpec{Name: "status", Type: schema.TypeText, Nullable: true, Default: "new"},
			`"status" TEXT DEFAULT 'new'`,
		},
		{
			"timestamp now()",
			schema.ColumnSpec{Name: "seen_at", Type: schema.TypeTimestamp, Nullable: true, Default: "now()"},
			`"seen_at" TIMESTAMPTZ DEFAULT now()`,
		},
		{
			"unique",
			schema.ColumnSpec{Name: "slug", Type: schema.TypeText, Constraint: schema.ConstraintUnique},
			`"slug" TEXT UNIQUE NOT NULL`,
		},
		{
			"foreign key",
			schema.ColumnSpec{Name: "note_id", Type: schema.TypeUUID, Nullable: true, Constraint: schema.ConstraintReferences, References: "notes"},
			`"note_id" UUID REFERENCES "notes" ("id")`,
		},
		{
			"json",
			schema.ColumnSpec{Name: "meta", Type: schema.TypeJSON, Nullable: true},
			`"meta" JSONB`,
		},
		{
			"real",
			schema.ColumnSpec{Name: "score", Type: schema.TypeReal, Nullable: true},
			`"score" DOUBLE PRECISION`,
		},
	}

	for _, tc := range cases {
		def := schema.TableDefinition{Name: "t", Columns: []schema.ColumnSpec{tc.col}}
		got, err := CompileCreate(def)
		if err != nil {
			t.Errorf("%s: CompileCreate: %v", tc.name, err)
			continue
		}
		if !strings.Contains(got, tc.want) {
			t.Errorf("%s: statement %q does not contain %q", tc.name, got, tc.want)
		}
	}
}

func TestCompileCreateRejectsBadDefaults(t *testing.T) {
	cases := []schema.ColumnSpec{
		{Name: "count", Type: schema.TypeInteger, Default: "zero"},
		{Name: "count", Type: schema.TypeInteger, Default: "1; DROP TABLE x"},
		{Name: "pinned", Type: schema.TypeBoolean, Default: "yes"},
		{Name: "score", Type: schema.TypeReal, Default: "fast"},
	}
	for _, col := range cases {
		def := schema.TableDefinition{Name: "t", Columns: []schema.ColumnSpec{col}}
		if _, err := CompileCreate(def); err == nil {
			t.Errorf("default %q for %s accepted", col.Default, col.Type)
		}
	}
}

func TestDefaultLiteralEscapesQuotes(t *testing.T) {
	def := schema.TableDefinition{Name: "t", Columns: []schema.ColumnSpec{
		{Name: "status", Type: schema.TypeText, Nullable: true, Default: "it's"},
	}}
	got, err := CompileCreate(def)
	if err != nil {
		t.Fatalf("CompileCreate: %v", err)
	}
	if !strings.Contains(got, `DEFAULT 'it''s'`) {
		t.Errorf("quote not doubled in %q", got)
	}
}

func TestCompileAlterStatements(t *testing.T) {
	addCol, err := CompileAddColumn("notes", schema.ColumnSpec{Name: "pinned", Type: schema.TypeBoolean, Nullable: true})
	if err != nil {
		t.Fatalf("CompileAddColumn: %v", err)
	}
	if want := `ALTER TABLE "notes" ADD COLUMN "pinned" BOOLEAN`; addCol != want {
		t.Errorf("CompileAddColumn = %q, want %q", addCol, want)
	}

	if got, want := CompileDropColumn("notes", "pinned"), `ALTER TABLE "notes" DROP COLUMN "pinned"`; got != want {
		t.Errorf("CompileDropColumn = %q, want %q", got, want)
	}

	got := CompileAlterColumnType("notes", "count", schema.TypeText)
	want := `ALTER TABLE "notes" ALTER COLUMN "count" TYPE TEXT USING "count"::TEXT`
	if got != want {
		t.Errorf("CompileAlterColumnType = %q, want %q", got, want)
	}

	if got, want := CompileDrop("notes"), `DROP TABLE IF EXISTS "notes"`; got != want {
		t.Errorf("CompileDrop = %q, want %q", got, want)
	}
}

func TestCompileTriggerStatements(t *testing.T) {
	create := CompileCreateTrigger("notes")
	want := `CREATE TRIGGER "rowbase_notify_notes" AFTER INSERT OR UPDATE OR DELETE ON "notes" FOR EACH ROW EXECUTE FUNCTION rowbase_notify()`
	if create != want {
		t.Errorf("CompileCreateTrigger = %q, want %q", create, want)
	}

	drop := CompileDropTrigger("notes")
	if want := `DROP TRIGGER IF EXISTS "rowbase_notify_notes" ON "notes"`; drop != want {
		t.Errorf("CompileDropTrigger = %q, want %q", drop, want)
	}

	fn := CompileNotifyFunction()
	for _, frag := range []string{"pg_notify('rowbase_changes'", "TG_TABLE_NAME", "lower(TG_OP)", "OLD.id::text", "NEW.id::text"} {
		if !strings.Contains(fn, frag) {
			t.Errorf("notify function missing %q", frag)
		}
	}
}

func TestCompileRowSecurity(t *testing.T) {
	private := schema.TableDefinition{Name: "notes", OwnerID: "owner-1", Public: false}
	stmts := CompileRowSecurity(private, "rowbase_realtime")
	if len(stmts) != 3 {
		t.Fatalf("CompileRowSecurity returned %d statements, want 3", len(stmts))
	}
	if want := `ALTER TABLE "notes" ENABLE ROW LEVEL SECURITY`; stmts[0] != want {
		t.Errorf("stmt[0] = %q, want %q", stmts[0], want)
	}
	if !strings.Contains(stmts[1], `GRANT SELECT ON "notes" TO "rowbase_realtime"`) {
		t.Errorf("stmt[1] = %q", stmts[1])
	}
	if !strings.Contains(stmts[2], `current_setting('rowbase.claims.sub', true) = 'owner-1'`) {
		t.Errorf("private policy missing owner predicate: %q", stmts[2])
	}

	public := schema.TableDefinition{Name: "notes", OwnerID: "owner-1", Public: true}
	repl := CompileReplacePolicy(public)
	if len(repl) != 2 {
		t.Fatalf("CompileReplacePolicy returned %d statements, want 2", len(repl))
	}
	if !strings.Contains(repl[0], "DROP POLICY IF EXISTS") {
		t.Errorf("repl[0] = %q", repl[0])
	}
	if !strings.Contains(repl[1], "USING (true)") {
		t.Errorf("public policy = %q, want USING (true)", repl[1])
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`weird"name`); got != `"weird""name"` {
		t.Errorf("QuoteIdent = %q", got)
	}
}
