package api

import (
	"sort"
	"time"

	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/domain/schema"
)

// columnPayload is the wire shape of one declared column.
type columnPayload struct {
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable,omitempty"`
	Default    string `json:"default,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	References string `json:"references,omitempty"`
}

func (p columnPayload) toSpec(name string) schema.ColumnSpec {
	return schema.ColumnSpec{
		Name:       name,
		Type:       schema.ColumnType(p.Type),
		Nullable:   p.Nullable,
		Default:    p.Default,
		Constraint: schema.Constraint(p.Constraint),
		References: p.References,
	}
}

// createTableRequest declares a table. table_schema arrives as a JSON
// object, so declaration order is not preserved on the wire; columns are
// created in name order to keep the result deterministic.
type createTableRequest struct {
	Name            string                   `json:"name"`
	OwnerID         string                   `json:"owner_id,omitempty"`
	Public          bool                     `json:"public,omitempty"`
	RealtimeEnabled bool                     `json:"realtime_enabled,omitempty"`
	TableSchema     map[string]columnPayload `json:"table_schema"`
}

func (req createTableRequest) toParams() app.CreateParams {
	names := make([]string, 0, len(req.TableSchema))
	for name := range req.TableSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]schema.ColumnSpec, 0, len(names))
	for _, name := range names {
		columns = append(columns, req.TableSchema[name].toSpec(name))
	}
	return app.CreateParams{
		Name:            req.Name,
		OwnerID:         req.OwnerID,
		Public:          req.Public,
		RealtimeEnabled: req.RealtimeEnabled,
		Columns:         columns,
	}
}

type patchTableRequest struct {
	Public          *bool `json:"public,omitempty"`
	RealtimeEnabled *bool `json:"realtime_enabled,omitempty"`
}

type addColumnRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable,omitempty"`
	Default    string `json:"default,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	References string `json:"references,omitempty"`
}

type alterColumnRequest struct {
	Type string `json:"type"`
}

// tableResponse is the wire shape of a registered table.
type tableResponse struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name"`
	OwnerID         string                   `json:"owner_id,omitempty"`
	Public          bool                     `json:"public"`
	RealtimeEnabled bool                     `json:"realtime_enabled"`
	TableSchema     map[string]columnPayload `json:"table_schema"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func toTableResponse(def schema.TableDefinition) tableResponse {
	cols := make(map[string]columnPayload, len(def.Columns))
	for _, c := range def.Columns {
		cols[c.Name] = columnPayload{
			Type:       string(c.Type),
			Nullable:   c.Nullable,
			Default:    c.Default,
			Constraint: string(c.Constraint),
			References: c.References,
		}
	}
	return tableResponse{
		ID:              def.ID,
		Name:            def.Name,
		OwnerID:         def.OwnerID,
		Public:          def.Public,
		RealtimeEnabled: def.RealtimeEnabled,
		TableSchema:     cols,
		CreatedAt:       def.CreatedAt,
		UpdatedAt:       def.UpdatedAt,
	}
}

// catalogColumnPayload is one column as seen in the live catalog.
type catalogColumnPayload struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Position int    `json:"position"`
}

// structureResponse is a table with its catalog-derived column list.
type structureResponse struct {
	tableResponse
	Columns []catalogColumnPayload `json:"columns"`
}

func toStructureResponse(st app.TableStructure) structureResponse {
	cols := make([]catalogColumnPayload, 0, len(st.Columns))
	for _, c := range st.Columns {
		cols = append(cols, catalogColumnPayload{
			Name:     c.Name,
			DataType: c.DataType,
			Nullable: c.Nullable,
			Default:  c.Default,
			Position: c.Position,
		})
	}
	return structureResponse{tableResponse: toTableResponse(st.Definition), Columns: cols}
}
