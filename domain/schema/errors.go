package schema

import "fmt"

// InvalidNameError reports an identifier that failed validation.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Name, e.Reason)
}

// UnsupportedTypeError reports a column type outside the supported set.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported column type %q", e.Type)
}

// ConflictError reports a table or column name collision.
type ConflictError struct {
	Table  string
	Column string // empty for table-level conflicts
}

func (e *ConflictError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("column %q already exists on table %q", e.Column, e.Table)
	}
	return fmt.Sprintf("table %q already exists", e.Table)
}

// NotFoundError reports a missing table or column.
type NotFoundError struct {
	Table  string
	Column string
}

func (e *NotFoundError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("column %q not found on table %q", e.Column, e.Table)
	}
	return fmt.Sprintf("table %q not found", e.Table)
}

// DDLError reports a statement the database rejected. The registry mutation
// that accompanied the statement is rolled back with it.
type DDLError struct {
	Statement string
	Err       error
}

func (e *DDLError) Error() string {
	return fmt.Sprintf("ddl execution failed: %v", e.Err)
}

func (e *DDLError) Unwrap() error { return e.Err }

// SyncError reports disagreement between the registry and the live catalog.
// The catalog is the source of truth; callers resolve in its favor.
type SyncError struct {
	Table  string
	Detail string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("registry out of sync for table %q: %s", e.Table, e.Detail)
}
