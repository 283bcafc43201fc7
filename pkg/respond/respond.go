// Package respond provides JSON response helpers for the REST API, mapping
// the domain error taxonomy onto HTTP statuses in one place.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rowbase/rowbase/domain/schema"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NoContent writes a 204 (typically for DELETE).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response with an explicit status and code.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// FromError maps a domain error onto its HTTP status and code and writes it.
// Validation and conflict errors surface as precise 4xx; DDL failures carry
// the database's message; everything unrecognized is a 500.
func FromError(w http.ResponseWriter, err error) {
	var (
		invalidName *schema.InvalidNameError
		badType     *schema.UnsupportedTypeError
		conflict    *schema.ConflictError
		notFound    *schema.NotFoundError
		ddl         *schema.DDLError
		sync        *schema.SyncError
	)
	switch {
	case errors.As(err, &invalidName):
		Error(w, http.StatusBadRequest, "invalid_name", invalidName.Error())
	case errors.As(err, &badType):
		Error(w, http.StatusBadRequest, "unsupported_type", badType.Error())
	case errors.As(err, &conflict):
		Error(w, http.StatusConflict, "schema_conflict", conflict.Error())
	case errors.As(err, &notFound):
		Error(w, http.StatusNotFound, "not_found", notFound.Error())
	case errors.As(err, &ddl):
		Error(w, http.StatusBadRequest, "ddl_failed", ddl.Error())
	case errors.As(err, &sync):
		Error(w, http.StatusInternalServerError, "registry_sync", sync.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// Decode parses a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
