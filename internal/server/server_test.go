package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lattice-db/lattice/internal/catalog"
	"github.com/lattice-db/lattice/internal/index"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/locks"
	"github.com/lattice-db/lattice/internal/search"
	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
)

// newTestServer assembles the full stack over an in-memory database and a
// temp blob root.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	log := slog.New(slog.DiscardHandler)
	repo := sqlrepo.New(db, sqlrepo.SQLiteDialect{}, log)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	indexes := index.NewManager(repo, log)
	locker := locks.NewManager(repo, log, time.Minute)
	docs := ingest.NewService(repo, indexes, locker, log)
	srv := New(
		catalog.NewService(repo, docs, log),
		docs,
		search.NewService(repo, log),
		index.NewRebuilder(repo, indexes, log, 2),
		log,
		Options{CollectionsDir: filepath.Join(t.TempDir(), "collections")},
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type apiEnvelope struct {
	Success      bool            `json:"success"`
	StatusCode   int             `json:"statusCode"`
	Data         json.RawMessage `json:"data"`
	ErrorMessage string          `json:"errorMessage"`
	GUID         string          `json:"guid"`
	TimestampUTC string          `json:"timestampUtc"`
}

// doJSON performs a request and decodes the envelope. A 204 (or any empty
// body) yields a zero envelope.
func doJSON(t *testing.T, method, url string, body any) (int, apiEnvelope) {
	t.Helper()
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = raw
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func createCollection(t *testing.T, ts *httptest.Server, body map[string]any) string {
	t.Helper()
	status, env := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections", body)
	if status != http.StatusCreated {
		t.Fatalf("create collection: status %d, error %q", status, env.ErrorMessage)
	}
	var col struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &col); err != nil {
		t.Fatalf("decode collection: %v", err)
	}
	return col.ID
}

// ingestDoc stores content through the API and returns the document id.
func ingestDoc(t *testing.T, ts *httptest.Server, collectionID string, body map[string]any) string {
	t.Helper()
	status, env := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+collectionID+"/documents", body)
	if status != http.StatusCreated {
		t.Fatalf("ingest: status %d, error %q", status, env.ErrorMessage)
	}
	var out struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return out.Document.ID
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/health", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("health: status %d, success %v", status, env.Success)
	}
	if env.GUID == "" || env.TimestampUTC == "" {
		t.Errorf("envelope bookkeeping missing: %+v", env)
	}
}

func TestCollectionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	id := createCollection(t, ts, map[string]any{"name": "books", "indexingMode": "All"})

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d", status)
	}
	var col struct {
		Name         string `json:"name"`
		IndexingMode string `json:"indexingMode"`
	}
	if err := json.Unmarshal(env.Data, &col); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if col.Name != "books" || col.IndexingMode != "All" {
		t.Errorf("collection: %+v", col)
	}

	status, _ = doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+id,
		map[string]any{"description": "updated"})
	if status != http.StatusOK {
		t.Fatalf("update: status %d", status)
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1.0/collections/"+id, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: status %d, want 204", status)
	}
	status, env = doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+id, nil)
	if status != http.StatusNotFound || env.Success {
		t.Fatalf("get after delete: status %d, success %v", status, env.Success)
	}
}

func TestDuplicateCollectionNameConflicts(t *testing.T) {
	ts := newTestServer(t)
	createCollection(t, ts, map[string]any{"name": "dup"})
	status, env := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections", map[string]any{"name": "dup"})
	if status != http.StatusConflict || env.Success {
		t.Fatalf("duplicate: status %d, success %v", status, env.Success)
	}
}

func TestIngestAndFetchDocument(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "docs", "indexingMode": "All"})
	content := `{"title":"Dune","year":1965}`
	docID := ingestDoc(t, ts, colID, map[string]any{
		"name":    "dune.json",
		"content": json.RawMessage(content),
		"labels":  []string{"classic"},
		"tags":    map[string]string{"genre": "scifi"},
	})

	docURL := ts.URL + "/v1.0/collections/" + colID + "/documents/" + docID

	// Metadata.
	status, env := doJSON(t, http.MethodGet, docURL, nil)
	if status != http.StatusOK {
		t.Fatalf("get document: status %d", status)
	}
	var doc struct {
		Name          string `json:"name"`
		ContentLength int64  `json:"contentLength"`
	}
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Name != "dune.json" || doc.ContentLength != int64(len(content)) {
		t.Errorf("document: %+v", doc)
	}

	// includeContent=true returns the raw body without the envelope.
	resp, err := http.Get(docURL + "?includeContent=true")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if string(raw) != content {
		t.Errorf("content = %q, want %q", raw, content)
	}

	// Stats reflect the ingest.
	status, env = doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+colID+"/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats: status %d", status)
	}
	var stats struct {
		DocumentCount int64 `json:"documentCount"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Errorf("document count = %d, want 1", stats.DocumentCount)
	}

	status, _ = doJSON(t, http.MethodDelete, docURL, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete document: status %d, want 204", status)
	}
	status, _ = doJSON(t, http.MethodGet, docURL, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", status)
	}
}

func TestDocumentScopedToCollection(t *testing.T) {
	ts := newTestServer(t)
	colA := createCollection(t, ts, map[string]any{"name": "a"})
	colB := createCollection(t, ts, map[string]any{"name": "b"})
	docID := ingestDoc(t, ts, colA, map[string]any{"content": json.RawMessage(`{"x":1}`)})

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+colB+"/documents/"+docID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("cross-collection fetch: status %d, want 404", status)
	}
	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1.0/collections/"+colB+"/documents/"+docID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("cross-collection delete: status %d, want 404", status)
	}
}

func TestIngestMalformedJSONIs400(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "strictjson"})

	// A body that is not valid JSON never decodes, and a missing content
	// field fails flattening. Both are 400s.
	resp, err := http.DefaultClient.Do(mustRequest(t, http.MethodPut,
		ts.URL+"/v1.0/collections/"+colID+"/documents", []byte(`{"content": {broken`)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("broken body: status %d, want 400", resp.StatusCode)
	}

	status, _ := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/documents",
		map[string]any{"name": "empty.json"})
	if status != http.StatusBadRequest {
		t.Fatalf("missing content: status %d, want 400", status)
	}
}

func mustRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestConstraintsRoundTripAndStrict422(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "strict"})

	status, _ := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/constraints",
		map[string]any{
			"schemaEnforcementMode": "Strict",
			"fieldConstraints":      []map[string]any{{"fieldPath": "year", "required": true}},
		})
	if status != http.StatusNoContent {
		t.Fatalf("put constraints: status %d, want 204", status)
	}

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+colID+"/constraints", nil)
	if status != http.StatusOK {
		t.Fatalf("get constraints: status %d", status)
	}
	var view struct {
		SchemaEnforcementMode string `json:"schemaEnforcementMode"`
		FieldConstraints      []struct {
			FieldPath string `json:"fieldPath"`
		} `json:"fieldConstraints"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.SchemaEnforcementMode != "Strict" || len(view.FieldConstraints) != 1 {
		t.Fatalf("view: %+v", view)
	}

	status, env = doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/documents",
		map[string]any{"content": json.RawMessage(`{"title":"no year"}`)})
	if status != http.StatusUnprocessableEntity || env.Success {
		t.Fatalf("strict ingest: status %d, success %v, want 422", status, env.Success)
	}
}

func TestSoftValidationWarnsInEnvelope(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "soft"})

	status, _ := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/constraints",
		map[string]any{
			"schemaEnforcementMode": "Soft",
			"fieldConstraints":      []map[string]any{{"fieldPath": "year", "required": true}},
		})
	if status != http.StatusNoContent {
		t.Fatalf("put constraints: status %d", status)
	}

	status, env := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/documents",
		map[string]any{"content": json.RawMessage(`{"title":"stored"}`)})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("soft ingest: status %d, success %v, want 201 success", status, env.Success)
	}
	if env.ErrorMessage == "" {
		t.Error("soft warnings not surfaced in envelope")
	}
}

func TestIndexingPolicyEndpoints(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "policy", "indexingMode": "All"})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"A","year":1}`)})

	status, _ := doJSON(t, http.MethodPut, ts.URL+"/v1.0/collections/"+colID+"/indexing",
		map[string]any{"indexingMode": "Selective", "indexedFields": []string{"year"}})
	if status != http.StatusNoContent {
		t.Fatalf("put indexing: status %d, want 204", status)
	}

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/collections/"+colID+"/indexing", nil)
	if status != http.StatusOK {
		t.Fatalf("get indexing: status %d", status)
	}
	var view struct {
		IndexingMode  string `json:"indexingMode"`
		IndexedFields []struct {
			FieldPath string `json:"fieldPath"`
		} `json:"indexedFields"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.IndexingMode != "Selective" || len(view.IndexedFields) != 1 || view.IndexedFields[0].FieldPath != "year" {
		t.Fatalf("view: %+v", view)
	}
}

func TestRebuildIndexesOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "reindexed", "indexingMode": "All"})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"Dune"}`)})

	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1.0/collections/"+colID+"/indexes/rebuild",
		map[string]any{"dropUnusedIndexes": true})
	if status != http.StatusOK {
		t.Fatalf("rebuild: status %d, error %q", status, env.ErrorMessage)
	}
	var result struct {
		DocumentsProcessed int `json:"documentsProcessed"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.DocumentsProcessed != 1 {
		t.Errorf("documents processed = %d, want 1", result.DocumentsProcessed)
	}

	// Empty body defaults to not dropping anything.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1.0/collections/"+colID+"/indexes/rebuild", nil)
	if status != http.StatusOK {
		t.Fatalf("rebuild without body: status %d", status)
	}
}

func TestSearchOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "searchable", "indexingMode": "All"})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"Dune","year":1965}`)})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"Foundation","year":1951}`)})

	searchURL := ts.URL + "/v1.0/collections/" + colID + "/documents/search"
	status, env := doJSON(t, http.MethodPost, searchURL,
		map[string]any{"sqlExpression": "year >= 1960", "includeContent": true})
	if status != http.StatusOK {
		t.Fatalf("search: status %d, error %q", status, env.ErrorMessage)
	}
	var result struct {
		MatchCount int `json:"matchCount"`
		Documents  []struct {
			Content json.RawMessage `json:"content"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.MatchCount != 1 || len(result.Documents) != 1 {
		t.Fatalf("result: %+v", result)
	}
	if len(result.Documents[0].Content) == 0 {
		t.Error("includeContent did not inline content")
	}

	// Malformed expression is a 400.
	status, _ = doJSON(t, http.MethodPost, searchURL, map[string]any{"sqlExpression": "year >="})
	if status != http.StatusBadRequest {
		t.Fatalf("bad expression: status %d, want 400", status)
	}
}

func TestSchemaEndpoints(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "shapes"})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"A","year":1}`)})

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/schemas", nil)
	if status != http.StatusOK {
		t.Fatalf("list schemas: status %d", status)
	}
	var schemas []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &schemas); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(schemas) != 1 {
		t.Fatalf("schemas = %d, want 1", len(schemas))
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/v1.0/schemas/"+schemas[0].ID, nil)
	if status != http.StatusOK {
		t.Fatalf("get schema: status %d", status)
	}

	status, env = doJSON(t, http.MethodGet, ts.URL+"/v1.0/schemas/"+schemas[0].ID+"/elements", nil)
	if status != http.StatusOK {
		t.Fatalf("get elements: status %d", status)
	}
	var elements []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(env.Data, &elements); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(elements) != 2 {
		t.Errorf("elements = %d, want 2", len(elements))
	}
}

func TestLockedErrorResponseShape(t *testing.T) {
	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	err := fmt.Errorf("ingest: %w", &locks.LockedError{
		CollectionID: "col_1",
		DocumentName: "report.json",
		Hostname:     "worker-2",
		CreatedUTC:   created,
		HeldFor:      5 * time.Second,
	})
	status, data := classify(err)
	if status != http.StatusConflict {
		t.Fatalf("status = %d, want 409", status)
	}
	details, ok := data.(lockDetails)
	if !ok {
		t.Fatalf("payload is %T, want lockDetails", data)
	}
	if details.LockedByHostname != "worker-2" || details.HeldForMs != 5000 {
		t.Errorf("details: %+v", details)
	}
	if details.LockCreatedUTC != created.Format(time.RFC3339Nano) {
		t.Errorf("lock created = %q, want %q", details.LockCreatedUTC, created.Format(time.RFC3339Nano))
	}
}

func TestIndexTablesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	colID := createCollection(t, ts, map[string]any{"name": "mapped", "indexingMode": "All"})
	ingestDoc(t, ts, colID, map[string]any{"content": json.RawMessage(`{"title":"A"}`)})

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1.0/tables", nil)
	if status != http.StatusOK {
		t.Fatalf("list tables: status %d", status)
	}
	var mappings []struct {
		Key       string `json:"key"`
		TableName string `json:"tableName"`
	}
	if err := json.Unmarshal(env.Data, &mappings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mappings) != 1 || mappings[0].Key != "title" {
		t.Errorf("mappings: %+v", mappings)
	}
}
