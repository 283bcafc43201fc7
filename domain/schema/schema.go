// Package schema provides table definition value types and pure validation
// functions. This package has NO dependencies on I/O or external packages.
package schema

import "time"

// ColumnType is a logical column type from the closed, supported set.
// Anything outside this set is rejected before it can reach SQL.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeJSON      ColumnType = "json"
	TypeUUID      ColumnType = "uuid"
	TypeReal      ColumnType = "real"
)

// SQL returns the Postgres type this logical type maps to.
func (t ColumnType) SQL() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeInteger:
		return "BIGINT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	case TypeJSON:
		return "JSONB"
	case TypeUUID:
		return "UUID"
	case TypeReal:
		return "DOUBLE PRECISION"
	}
	return ""
}

// Constraint is an optional column constraint.
type Constraint string

const (
	ConstraintNone       Constraint = ""
	ConstraintPrimaryKey Constraint = "primary_key"
	ConstraintUnique     Constraint = "unique"
	ConstraintNotNull    Constraint = "not_null"
	ConstraintReferences Constraint = "references"
)

// ColumnSpec describes one user-declared column (immutable value type).
// Columns are replaced or appended whole; a live column's data is never
// partially patched.
type ColumnSpec struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	Default    string     // optional default literal; empty = none
	Constraint Constraint // optional
	References string     // referenced table when Constraint is ConstraintReferences
}

// TableDefinition is the registry's record of one declared table.
// The physical table always carries the standard columns (id, created_at,
// updated_at) in addition to Columns.
type TableDefinition struct {
	ID              string
	Name            string
	OwnerID         string
	Public          bool
	Columns         []ColumnSpec // declared columns, in declaration order
	RealtimeEnabled bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Column returns the declared column with the given name, if present.
func (d TableDefinition) Column(name string) (ColumnSpec, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// WithColumn returns a copy of the definition with col appended.
func (d TableDefinition) WithColumn(col ColumnSpec) TableDefinition {
	cols := make([]ColumnSpec, len(d.Columns), len(d.Columns)+1)
	copy(cols, d.Columns)
	d.Columns = append(cols, col)
	return d
}

// WithoutColumn returns a copy of the definition with the named column removed.
func (d TableDefinition) WithoutColumn(name string) TableDefinition {
	cols := make([]ColumnSpec, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name != name {
			cols = append(cols, c)
		}
	}
	d.Columns = cols
	return d
}

// StandardColumns are present on every physical table regardless of the
// declared schema. User columns may not shadow them.
var StandardColumns = []string{"id", "created_at", "updated_at"}

// IsStandardColumn reports whether name is one of the always-present columns.
func IsStandardColumn(name string) bool {
	for _, c := range StandardColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CatalogColumn is a column as reported by the live database catalog
// (information_schema). It is the ground truth for read operations.
type CatalogColumn struct {
	Name     string
	DataType string
	Nullable bool
	Default  string
	Position int
}
