// Package sqlgen compiles validated table definitions into DDL statements.
// It only ever emits SQL assembled from a closed vocabulary of validated
// tokens; caller input is never interpolated raw. Callers are expected to
// run every compiled statement inside a transaction together with the
// matching registry mutation.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rowbase/rowbase/domain/schema"
)

// Channel is the single NOTIFY channel shared by all tables. The table name
// travels inside the payload, so one LISTEN covers every table.
const Channel = "rowbase_changes"

// NotifyFunction is the shared trigger function installed once per database.
const NotifyFunction = "rowbase_notify"

// triggerPrefix namespaces the per-table change triggers.
const triggerPrefix = "rowbase_notify_"

// readPolicy is the name of the per-table row visibility policy.
const readPolicy = "rowbase_read"

// QuoteIdent quotes an identifier for safe embedding in DDL. Validated
// identifiers never contain a double quote, but quoting is unconditional.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral renders a string as a single-quoted SQL literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TriggerName returns the change trigger name for a table.
func TriggerName(table string) string {
	return triggerPrefix + table
}

// columnDDL renders one column clause from a validated spec.
func columnDDL(col schema.ColumnSpec) (string, error) {
	var b strings.Builder
	b.WriteString(QuoteIdent(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Type.SQL())

	if col.Default != "" {
		def, err := defaultLiteral(col.Type, col.Default)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}

	switch col.Constraint {
	case schema.ConstraintPrimaryKey:
		b.WriteString(" PRIMARY KEY")
	case schema.ConstraintUnique:
		b.WriteString(" UNIQUE")
	case schema.ConstraintNotNull:
		b.WriteString(" NOT NULL")
	case schema.ConstraintReferences:
		b.WriteString(" REFERENCES ")
		b.WriteString(QuoteIdent(col.References))
		b.WriteString(" (\"id\")")
	}

	if !col.Nullable && col.Constraint != schema.ConstraintNotNull && col.Constraint != schema.ConstraintPrimaryKey {
		b.WriteString(" NOT NULL")
	}
	return b.String(), nil
}

// defaultLiteral renders a default value for the given type. Numeric and
// boolean defaults must parse; everything else is emitted as a quoted
// literal, except the now() function for timestamps.
func defaultLiteral(t schema.ColumnType, lit string) (string, error) {
	switch t {
	case schema.TypeInteger:
		if _, err := strconv.ParseInt(lit, 10, 64); err != nil {
			return "", &schema.InvalidNameError{Name: lit, Reason: "default is not an integer"}
		}
		return lit, nil
	case schema.TypeReal:
		if _, err := strconv.ParseFloat(lit, 64); err != nil {
			return "", &schema.InvalidNameError{Name: lit, Reason: "default is not a number"}
		}
		return lit, nil
	case schema.TypeBoolean:
		if lit != "true" && lit != "false" {
			return "", &schema.InvalidNameError{Name: lit, Reason: "default is not a boolean"}
		}
		return lit, nil
	case schema.TypeTimestamp:
		if lit == "now()" {
			return "now()", nil
		}
		return quoteLiteral(lit), nil
	default:
		return quoteLiteral(lit), nil
	}
}

// CompileCreate emits the CREATE TABLE statement for a validated definition.
// The standard columns are always present; user columns follow in declaration
// order.
func CompileCreate(def schema.TableDefinition) (string, error) {
	cols := []string{
		`"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`,
		`"created_at" TIMESTAMPTZ NOT NULL DEFAULT now()`,
		`"updated_at" TIMESTAMPTZ NOT NULL DEFAULT now()`,
	}
	for _, c := range def.Columns {
		clause, err := columnDDL(c)
		if err != nil {
			return "", err
		}
		cols = append(cols, clause)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(def.Name), strings.Join(cols, ", ")), nil
}

// CompileDrop emits the DROP TABLE statement. Dropping a table also drops
// its triggers and policies; this is irreversible.
func CompileDrop(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdent(table))
}

// CompileAddColumn emits a single ALTER TABLE ... ADD COLUMN statement.
func CompileAddColumn(table string, col schema.ColumnSpec) (string, error) {
	clause, err := columnDDL(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdent(table), clause), nil
}

// CompileDropColumn emits a single ALTER TABLE ... DROP COLUMN statement.
// Destructive and irreversible; callers must have confirmed out-of-band.
func CompileDropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", QuoteIdent(table), QuoteIdent(column))
}

// CompileAlterColumnType emits an ALTER TABLE ... TYPE statement with an
// explicit cast. The database rejects casts incompatible with existing data.
func CompileAlterColumnType(table, column string, t schema.ColumnType) string {
	q := QuoteIdent(column)
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		QuoteIdent(table), q, t.SQL(), q, t.SQL())
}

// CompileRowSecurity emits the statements that put a freshly created table
// under row-level security: enable and force RLS, grant read access to the
// restricted realtime role, and install the visibility policy.
func CompileRowSecurity(def schema.TableDefinition, realtimeRole string) []string {
	q := QuoteIdent(def.Name)
	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", q),
		fmt.Sprintf("GRANT SELECT ON %s TO %s", q, QuoteIdent(realtimeRole)),
		compilePolicy(def),
	}
}

// CompileReplacePolicy emits the statements that swap the visibility policy
// after a table's public flag changes.
func CompileReplacePolicy(def schema.TableDefinition) []string {
	return []string{
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", QuoteIdent(readPolicy), QuoteIdent(def.Name)),
		compilePolicy(def),
	}
}

// compilePolicy renders the per-table SELECT policy. Public tables are
// readable by any identity; private tables only by the owner or the service
// role. The claims are session-local settings placed by the authorization
// evaluator.
func compilePolicy(def schema.TableDefinition) string {
	using := "true"
	if !def.Public {
		using = fmt.Sprintf(
			"current_setting('rowbase.claims.role', true) = 'service' OR current_setting('rowbase.claims.sub', true) = %s",
			quoteLiteral(def.OwnerID),
		)
	}
	return fmt.Sprintf("CREATE POLICY %s ON %s FOR SELECT USING (%s)",
		QuoteIdent(readPolicy), QuoteIdent(def.Name), using)
}

// CompileNotifyFunction emits the shared trigger function. It serializes the
// table name, operation and primary key compactly and publishes on the fixed
// channel. Installed once; CREATE OR REPLACE keeps it idempotent.
func CompileNotifyFunction() string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
DECLARE
	pk text;
BEGIN
	IF TG_OP = 'DELETE' THEN
		pk := OLD.id::text;
	ELSE
		pk := NEW.id::text;
	END IF;
	PERFORM pg_notify('%s', json_build_object('table', TG_TABLE_NAME, 'op', lower(TG_OP), 'pk', pk)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`, NotifyFunction, Channel)
}

// CompileCreateTrigger emits the per-table change trigger.
func CompileCreateTrigger(table string) string {
	return fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
		QuoteIdent(TriggerName(table)), QuoteIdent(table), NotifyFunction)
}

// CompileDropTrigger emits the statement removing the per-table trigger.
// IF EXISTS keeps disabling idempotent.
func CompileDropTrigger(table string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s",
		QuoteIdent(TriggerName(table)), QuoteIdent(table))
}
