package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rowbase/rowbase/domain/schema"
)

func TestFromErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&schema.InvalidNameError{Name: "select", Reason: "reserved word"}, http.StatusBadRequest, "invalid_name"},
		{&schema.UnsupportedTypeError{Type: "blob"}, http.StatusBadRequest, "unsupported_type"},
		{&schema.ConflictError{Table: "notes"}, http.StatusConflict, "schema_conflict"},
		{&schema.NotFoundError{Table: "notes"}, http.StatusNotFound, "not_found"},
		{&schema.DDLError{Statement: "ALTER", Err: errors.New("cannot cast")}, http.StatusBadRequest, "ddl_failed"},
		{&schema.SyncError{Table: "notes", Detail: "drift"}, http.StatusInternalServerError, "registry_sync"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
		// Wrapped errors must still map.
		{fmt.Errorf("create table: %w", &schema.ConflictError{Table: "notes"}), http.StatusConflict, "schema_conflict"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		FromError(rec, tc.err)

		if rec.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%v: bad body: %v", tc.err, err)
			continue
		}
		if body.Error.Code != tc.code {
			t.Errorf("%v: code = %q, want %q", tc.err, body.Error.Code, tc.code)
		}
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, errors.New("password=hunter2"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Errorf("internal error leaked detail: %s", rec.Body.String())
	}
}
