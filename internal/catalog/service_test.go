package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lattice-db/lattice/internal/hashing"
	"github.com/lattice-db/lattice/internal/index"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
	"github.com/lattice-db/lattice/internal/types"
)

type testEnv struct {
	repo    storage.Repository
	ingest  *ingest.Service
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	repo := sqlrepo.New(db, sqlrepo.SQLiteDialect{}, slog.New(slog.DiscardHandler))
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ing := ingest.NewService(repo, index.NewManager(repo, nil), nil, nil)
	return &testEnv{repo: repo, ingest: ing, service: NewService(repo, ing, nil)}
}

func TestCreateCollection(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "books")

	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name:               "books",
		Description:        "library",
		DocumentsDirectory: dir,
		IndexingMode:       types.IndexingAll,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if col.SchemaEnforcementMode != types.EnforcementNone {
		t.Errorf("enforcement defaulted to %q, want None", col.SchemaEnforcementMode)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("documents directory not created: %v", err)
	}

	// Duplicate name conflicts.
	_, err = e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name:               "books",
		DocumentsDirectory: t.TempDir(),
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate name: %v, want ErrConflict", err)
	}
}

func TestCreateCollectionValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	bad := []CreateCollectionRequest{
		{DocumentsDirectory: t.TempDir()},
		{Name: "x"},
		{Name: "x", DocumentsDirectory: t.TempDir(), SchemaEnforcementMode: "Loose"},
		{Name: "x", DocumentsDirectory: t.TempDir(), IndexingMode: "Some"},
	}
	for i, req := range bad {
		if _, err := e.service.CreateCollection(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("request %d: %v, want ErrInvalidRequest", i, err)
		}
	}
}

func TestUpdateCollection(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "mutable", DocumentsDirectory: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	desc := "updated"
	strict := types.EnforcementStrict
	updated, err := e.service.UpdateCollection(ctx, col.ID, UpdateCollectionRequest{
		Description:           &desc,
		SchemaEnforcementMode: &strict,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != "updated" || updated.SchemaEnforcementMode != types.EnforcementStrict {
		t.Errorf("update not applied: %+v", updated)
	}
	// Untouched fields survive.
	if updated.IndexingMode != types.IndexingNone {
		t.Errorf("indexing mode changed unexpectedly: %q", updated.IndexingMode)
	}

	badMode := types.SchemaEnforcementMode("Loose")
	if _, err := e.service.UpdateCollection(ctx, col.ID, UpdateCollectionRequest{
		SchemaEnforcementMode: &badMode,
	}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad mode: %v, want ErrInvalidRequest", err)
	}
}

func TestDeleteCollectionCascades(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "doomed")

	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "doomed", DocumentsDirectory: dir, IndexingMode: types.IndexingAll,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result, err := e.ingest.Ingest(ctx, ingest.Request{
		CollectionID: col.ID,
		Content:      []byte(`{"title":"gone"}`),
		Labels:       []string{"l"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := e.service.SetFieldConstraints(ctx, col.ID, []*types.FieldConstraint{
		{FieldPath: "title", Required: true},
	}); err != nil {
		t.Fatalf("set constraints: %v", err)
	}

	if err := e.service.DeleteCollection(ctx, col.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := e.repo.GetCollection(ctx, col.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("collection survived: %v", err)
	}
	if _, err := e.repo.GetDocument(ctx, result.Document.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document survived: %v", err)
	}
	if n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName("title")); n != 0 {
		t.Errorf("index entries survived: %d", n)
	}
	constraints, _ := e.repo.ListFieldConstraints(ctx, col.ID)
	if len(constraints) != 0 {
		t.Errorf("constraints survived: %d", len(constraints))
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("empty documents directory survived: %v", err)
	}
}

func TestSetFieldConstraintsValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "validated", DocumentsDirectory: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	min := 10.0
	max := 1.0
	minLen := 10
	maxLen := 1
	bad := [][]*types.FieldConstraint{
		{{FieldPath: ""}},
		{{FieldPath: "a"}, {FieldPath: "a"}},
		{{FieldPath: "a", RegexPattern: "["}},
		{{FieldPath: "a", MinValue: &min, MaxValue: &max}},
		{{FieldPath: "a", MinLength: &minLen, MaxLength: &maxLen}},
	}
	for i, constraints := range bad {
		if err := e.service.SetFieldConstraints(ctx, col.ID, constraints); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("set %d: %v, want ErrInvalidRequest", i, err)
		}
	}

	if err := e.service.SetFieldConstraints(ctx, "col_missing", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown collection: %v, want ErrNotFound", err)
	}

	good := []*types.FieldConstraint{
		{FieldPath: "title", Required: true, RegexPattern: "^[A-Z]"},
	}
	if err := e.service.SetFieldConstraints(ctx, col.ID, good); err != nil {
		t.Fatalf("valid set: %v", err)
	}
	stored, err := e.service.ListFieldConstraints(ctx, col.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].ID == "" || stored[0].CollectionID != col.ID {
		t.Errorf("stored constraint: %+v", stored)
	}
}

func TestSetIndexedFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "selective", DocumentsDirectory: t.TempDir(), IndexingMode: types.IndexingSelective,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Duplicates collapse to one declaration.
	if err := e.service.SetIndexedFields(ctx, col.ID, []string{"title", "year", "title"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	fields, err := e.service.ListIndexedFields(ctx, col.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fields) != 2 {
		t.Errorf("fields = %d, want 2", len(fields))
	}

	if err := e.service.SetIndexedFields(ctx, col.ID, []string{""}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("empty path: %v, want ErrInvalidRequest", err)
	}
}

func TestSchemaViews(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "schemas", DocumentsDirectory: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result, err := e.ingest.Ingest(ctx, ingest.Request{
		CollectionID: col.ID,
		Content:      []byte(`{"title":"A","year":1}`),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	schemas, err := e.service.ListSchemas(ctx)
	if err != nil {
		t.Fatalf("list schemas: %v", err)
	}
	if len(schemas) != 1 {
		t.Fatalf("schemas = %d, want 1", len(schemas))
	}

	sch, elements, err := e.service.GetSchema(ctx, result.Schema.ID)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if sch.Hash == "" || len(elements) != 2 {
		t.Errorf("schema %+v with %d elements", sch, len(elements))
	}

	if _, _, err := e.service.GetSchema(ctx, "sch_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown schema: %v, want ErrNotFound", err)
	}
}

func TestGetCollectionStats(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col, err := e.service.CreateCollection(ctx, CreateCollectionRequest{
		Name: "stats", DocumentsDirectory: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	content := []byte(`{"a":1}`)
	if _, err := e.ingest.Ingest(ctx, ingest.Request{CollectionID: col.ID, Content: content}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stats, err := e.service.GetCollectionStats(ctx, col.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DocumentCount != 1 || stats.TotalBytes != int64(len(content)) || stats.DistinctSchemas != 1 {
		t.Errorf("stats: %+v", stats)
	}

	if _, err := e.service.GetCollectionStats(ctx, "col_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown collection: %v, want ErrNotFound", err)
	}
}
