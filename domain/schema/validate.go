package schema

import "strings"

// maxIdentifierLen matches the Postgres identifier limit.
const maxIdentifierLen = 63

// reservedNames may never be used as table or column names. Covers SQL
// keywords that survive lowercasing, names Postgres treats specially, and
// internal table names.
var reservedNames = map[string]bool{
	"all": true, "alter": true, "analyse": true, "analyze": true,
	"and": true, "any": true, "array": true, "as": true, "asc": true,
	"authorization": true, "between": true, "both": true, "case": true,
	"cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "cross": true, "current_date": true,
	"current_time": true, "current_timestamp": true, "current_user": true,
	"default": true, "delete": true, "desc": true, "distinct": true,
	"do": true, "drop": true, "else": true, "end": true, "except": true,
	"false": true, "for": true, "foreign": true, "from": true, "full": true,
	"grant": true, "group": true, "having": true, "in": true,
	"initially": true, "inner": true, "insert": true, "intersect": true,
	"into": true, "is": true, "join": true, "leading": true, "left": true,
	"like": true, "limit": true, "localtime": true, "localtimestamp": true,
	"natural": true, "not": true, "null": true, "offset": true, "on": true,
	"only": true, "or": true, "order": true, "outer": true, "primary": true,
	"references": true, "returning": true, "right": true, "select": true,
	"session_user": true, "set": true, "some": true, "table": true,
	"then": true, "to": true, "trailing": true, "true": true, "union": true,
	"unique": true, "update": true, "user": true, "using": true,
	"values": true, "when": true, "where": true, "window": true, "with": true,
}

// ValidateIdentifier checks a table or column name against the identifier
// grammar: lowercase ASCII letters, digits and underscore, starting with a
// letter, at most 63 bytes, and not on the reserved list. System prefixes
// (pg_, rowbase_) are rejected so user tables can never collide with catalog
// or internal objects.
func ValidateIdentifier(name string) error {
	if name == "" {
		return &InvalidNameError{Name: name, Reason: "must not be empty"}
	}
	if len(name) > maxIdentifierLen {
		return &InvalidNameError{Name: name, Reason: "longer than 63 characters"}
	}
	if name[0] < 'a' || name[0] > 'z' {
		return &InvalidNameError{Name: name, Reason: "must start with a lowercase letter"}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return &InvalidNameError{Name: name, Reason: "only lowercase letters, digits and underscore are allowed"}
	}
	if reservedNames[name] {
		return &InvalidNameError{Name: name, Reason: "reserved word"}
	}
	if strings.HasPrefix(name, "pg_") || strings.HasPrefix(name, "rowbase_") {
		return &InvalidNameError{Name: name, Reason: "reserved prefix"}
	}
	return nil
}

// ValidateColumnType checks t against the supported set. Unknown types fail
// closed rather than passing through to SQL.
func ValidateColumnType(t string) (ColumnType, error) {
	ct := ColumnType(t)
	if ct.SQL() == "" {
		return "", &UnsupportedTypeError{Type: t}
	}
	return ct, nil
}

// ValidateColumn checks a whole column spec: name grammar, no shadowing of
// standard columns, a supported type, and a coherent constraint.
func ValidateColumn(col ColumnSpec) error {
	if err := ValidateIdentifier(col.Name); err != nil {
		return err
	}
	if IsStandardColumn(col.Name) {
		return &InvalidNameError{Name: col.Name, Reason: "collides with a standard column"}
	}
	if _, err := ValidateColumnType(string(col.Type)); err != nil {
		return err
	}
	switch col.Constraint {
	case ConstraintNone, ConstraintPrimaryKey, ConstraintUnique, ConstraintNotNull:
	case ConstraintReferences:
		if err := ValidateIdentifier(col.References); err != nil {
			return err
		}
	default:
		return &InvalidNameError{Name: string(col.Constraint), Reason: "unknown constraint"}
	}
	return nil
}

// ValidateDefinition checks a table definition: the table name, every
// column, and column name uniqueness.
func ValidateDefinition(def TableDefinition) error {
	if err := ValidateIdentifier(def.Name); err != nil {
		return err
	}
	seen := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		if err := ValidateColumn(col); err != nil {
			return err
		}
		if seen[col.Name] {
			return &ConflictError{Table: def.Name, Column: col.Name}
		}
		seen[col.Name] = true
	}
	return nil
}
