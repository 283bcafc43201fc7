package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/pkg/respond"
)

func (h *Handler) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	def, err := h.schemas.CreateTable(r.Context(), req.toParams())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toTableResponse(def))
}

func (h *Handler) handleListTables(w http.ResponseWriter, r *http.Request) {
	defs, err := h.schemas.ListTables(r.Context())
	if err != nil {
		respond.FromError(w, err)
		return
	}
	out := make([]tableResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, toTableResponse(def))
	}
	respond.JSON(w, http.StatusOK, out)
}

// handleGetTable serves the catalog-derived structure, not the raw
// registry row, so a caller always sees the physical truth.
func (h *Handler) handleGetTable(w http.ResponseWriter, r *http.Request) {
	st, err := h.schemas.GetTableStructure(r.Context(), chi.URLParam(r, "tableID"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toStructureResponse(st))
}

func (h *Handler) handlePatchTable(w http.ResponseWriter, r *http.Request) {
	var req patchTableRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	def, err := h.schemas.UpdateTableMetadata(r.Context(), chi.URLParam(r, "tableID"), app.MetadataPatch{
		Public:          req.Public,
		RealtimeEnabled: req.RealtimeEnabled,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toTableResponse(def))
}

func (h *Handler) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	if err := h.schemas.DeleteTable(r.Context(), chi.URLParam(r, "tableID")); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.NoContent(w)
}

func (h *Handler) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req addColumnRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	def, err := h.schemas.AddColumn(r.Context(), chi.URLParam(r, "tableID"), schema.ColumnSpec{
		Name:       req.Name,
		Type:       schema.ColumnType(req.Type),
		Nullable:   req.Nullable,
		Default:    req.Default,
		Constraint: schema.Constraint(req.Constraint),
		References: req.References,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toTableResponse(def))
}

func (h *Handler) handleAlterColumn(w http.ResponseWriter, r *http.Request) {
	var req alterColumnRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	def, err := h.schemas.AlterColumnType(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "column"), schema.ColumnType(req.Type))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toTableResponse(def))
}

func (h *Handler) handleDropColumn(w http.ResponseWriter, r *http.Request) {
	_, err := h.schemas.DropColumn(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "column"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.NoContent(w)
}
