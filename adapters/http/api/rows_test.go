package api_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestRowCRUD(t *testing.T) {
	srv := newServer(t)

	table := createTable(t, srv, "articles")
	id := table["id"].(string)
	base := srv.URL + "/v1/tables/" + id + "/data"

	// Insert.
	resp, raw := doJSON(t, http.MethodPost, base, map[string]any{"title": "hello", "views": 3}, testKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert: status = %d: %s", resp.StatusCode, raw)
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rowID, _ := row["id"].(string)
	if rowID == "" {
		t.Fatalf("row id missing: %v", row)
	}
	if _, ok := row["created_at"]; !ok {
		t.Error("created_at missing from inserted row")
	}

	// Read back.
	resp, raw = doJSON(t, http.MethodGet, base+"/"+rowID, nil, testKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d: %s", resp.StatusCode, raw)
	}

	// Patch.
	resp, raw = doJSON(t, http.MethodPatch, base+"/"+rowID, map[string]any{"title": "updated"}, testKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status = %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row["title"] != "updated" {
		t.Errorf("title = %v", row["title"])
	}

	// List.
	resp, raw = doJSON(t, http.MethodGet, base, nil, testKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status = %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}

	// Delete.
	resp, _ = doJSON(t, http.MethodDelete, base+"/"+rowID, nil, testKey)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/"+rowID, nil, testKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestRowInsert_Rejections(t *testing.T) {
	srv := newServer(t)

	table := createTable(t, srv, "articles")
	base := srv.URL + "/v1/tables/" + table["id"].(string) + "/data"

	// Unknown column.
	resp, _ := doJSON(t, http.MethodPost, base, map[string]any{"bogus": 1}, testKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown column: status = %d, want 404", resp.StatusCode)
	}
	// Standard column write.
	resp, _ = doJSON(t, http.MethodPost, base, map[string]any{"id": "custom"}, testKey)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("standard column: status = %d, want 400", resp.StatusCode)
	}
	// Unknown table.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/tables/nope/data", map[string]any{"title": "x"}, testKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown table: status = %d, want 404", resp.StatusCode)
	}
}

func TestRowList_Paging(t *testing.T) {
	srv := newServer(t)

	table := createTable(t, srv, "articles")
	base := srv.URL + "/v1/tables/" + table["id"].(string) + "/data"

	for i := 0; i < 5; i++ {
		resp, raw := doJSON(t, http.MethodPost, base, map[string]any{"title": "row"}, testKey)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("insert %d: status = %d: %s", i, resp.StatusCode, raw)
		}
	}

	resp, raw := doJSON(t, http.MethodGet, base+"?limit=2", nil, testKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("limit=2 returned %d rows", len(rows))
	}

	resp, raw = doJSON(t, http.MethodGet, base+"?limit=10&offset=4", nil, testKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("offset=4 returned %d rows", len(rows))
	}
}
