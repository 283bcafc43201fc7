package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rowbase/rowbase/pkg/respond"
)

func (h *Handler) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := respond.Decode(r, &values); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	row, err := h.rows.Insert(r.Context(), chi.URLParam(r, "tableID"), values)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, row)
}

func (h *Handler) handleGetRow(w http.ResponseWriter, r *http.Request) {
	row, err := h.rows.Get(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "rowID"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, row)
}

func (h *Handler) handleListRows(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	rows, err := h.rows.List(r.Context(), chi.URLParam(r, "tableID"), limit, offset)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := respond.Decode(r, &values); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	row, err := h.rows.Update(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "rowID"), values)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, row)
}

func (h *Handler) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	if err := h.rows.Delete(r.Context(), chi.URLParam(r, "tableID"), chi.URLParam(r, "rowID")); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.NoContent(w)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
