package index

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/hashing"
	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
	"github.com/lattice-db/lattice/internal/types"
)

type testEnv struct {
	repo    storage.Repository
	manager *Manager
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
	return &testEnv{repo: repo, manager: NewManager(repo, nil)}
}

func (e *testEnv) createCollection(t *testing.T, mode types.IndexingMode) *types.Collection {
	t.Helper()
	now := time.Now().UTC()
	c := &types.Collection{
		ID:                    idgen.NewCollectionID(),
		Name:                  "c-" + idgen.NewCollectionID(),
		DocumentsDirectory:    t.TempDir(),
		SchemaEnforcementMode: types.EnforcementNone,
		IndexingMode:          mode,
		CreatedUTC:            now,
		LastUpdateUTC:         now,
	}
	if err := e.repo.CreateCollection(context.Background(), c); err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return c
}

// createDocument persists both the metadata row and the blob so the
// rebuilder can re-read the content.
func (e *testEnv) createDocument(t *testing.T, col *types.Collection, content string) *types.Document {
	t.Helper()
	now := time.Now().UTC()
	d := &types.Document{
		ID:            idgen.NewDocumentID(),
		CollectionID:  col.ID,
		ContentLength: int64(len(content)),
		SHA256Hash:    hashing.SHA256Hex([]byte(content)),
		CreatedUTC:    now,
		LastUpdateUTC: now,
	}
	if err := e.repo.CreateDocument(context.Background(), d); err != nil {
		t.Fatalf("create document: %v", err)
	}
	store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	if err := store.Write(d.ID, []byte(content)); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return d
}

func TestEnsureCreatesMappingAndTable(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	m1, err := e.manager.Ensure(ctx, "year")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if m1.TableName != hashing.IndexTableName("year") {
		t.Errorf("table name = %q", m1.TableName)
	}

	// Second ensure returns the same mapping.
	m2, err := e.manager.Ensure(ctx, "year")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if m2.ID != m1.ID {
		t.Errorf("second ensure created a new mapping: %q vs %q", m2.ID, m1.ID)
	}

	// Table exists and is queryable.
	if _, err := e.repo.CountIndexEntries(ctx, m1.TableName); err != nil {
		t.Fatalf("count on ensured table: %v", err)
	}
}

func TestEnsureRejectsEmptyKey(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.manager.Ensure(context.Background(), ""); err == nil {
		t.Fatal("empty key accepted")
	}
}

func TestIndexAndDeindexDocument(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col := e.createCollection(t, types.IndexingAll)
	doc := e.createDocument(t, col, `{"title":"Dune","year":1965,"tags":["scifi","classic"]}`)

	values, err := flatten.Flatten([]byte(`{"title":"Dune","year":1965,"tags":["scifi","classic"]}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if err := e.manager.IndexDocument(ctx, doc.ID, values, nil); err != nil {
		t.Fatalf("index document: %v", err)
	}

	titleTable := hashing.IndexTableName("title")
	n, err := e.repo.CountIndexEntries(ctx, titleTable)
	if err != nil {
		t.Fatalf("count title entries: %v", err)
	}
	if n != 1 {
		t.Errorf("title entries = %d, want 1", n)
	}

	tagsTable := hashing.IndexTableName("tags")
	n, err = e.repo.CountIndexEntries(ctx, tagsTable)
	if err != nil {
		t.Fatalf("count tags entries: %v", err)
	}
	if n != 2 {
		t.Errorf("tags entries = %d, want 2 (one per array element)", n)
	}

	if err := e.manager.DeindexDocument(ctx, doc.ID); err != nil {
		t.Fatalf("deindex: %v", err)
	}
	for _, key := range []string{"title", "year", "tags"} {
		n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName(key))
		if n != 0 {
			t.Errorf("%s entries after deindex = %d, want 0", key, n)
		}
	}
}

func TestIndexDocumentSelectiveKeep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	values, err := flatten.Flatten([]byte(`{"title":"Dune","year":1965}`))
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	keep := map[string]bool{"title": true}
	if err := e.manager.IndexDocument(ctx, "doc_sel", values, keep); err != nil {
		t.Fatalf("index document: %v", err)
	}

	if n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName("title")); n != 1 {
		t.Errorf("title entries = %d, want 1", n)
	}
	// year was filtered out, so its table must not even exist.
	if _, err := e.repo.GetIndexTableMapping(ctx, "year"); err == nil {
		t.Error("year mapping created despite selective filter")
	}
}

func TestDropIfEmpty(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.manager.Ensure(ctx, "transient"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	dropped, err := e.manager.DropIfEmpty(ctx, "transient")
	if err != nil {
		t.Fatalf("drop empty: %v", err)
	}
	if !dropped {
		t.Error("empty table not dropped")
	}
	if _, err := e.repo.GetIndexTableMapping(ctx, "transient"); err == nil {
		t.Error("mapping survived drop")
	}

	// A table with rows must survive.
	m, err := e.manager.Ensure(ctx, "busy")
	if err != nil {
		t.Fatalf("ensure busy: %v", err)
	}
	v := "x"
	if err := e.repo.InsertIndexEntries(ctx, m.TableName, []*types.IndexEntry{
		{ID: idgen.NewIndexEntryID(), DocumentID: "doc_1", Value: &v, CreatedUTC: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dropped, err = e.manager.DropIfEmpty(ctx, "busy")
	if err != nil {
		t.Fatalf("drop busy: %v", err)
	}
	if dropped {
		t.Error("non-empty table was dropped")
	}

	// Dropping an unknown key is a quiet no-op.
	dropped, err = e.manager.DropIfEmpty(ctx, "never-indexed")
	if err != nil || dropped {
		t.Errorf("unknown key: dropped=%v err=%v", dropped, err)
	}
}

func TestRebuildIndexesAllMode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col := e.createCollection(t, types.IndexingAll)
	e.createDocument(t, col, `{"title":"Dune","year":1965}`)
	e.createDocument(t, col, `{"title":"Foundation","year":1951}`)

	r := NewRebuilder(e.repo, e.manager, nil, 2)
	result, err := r.Rebuild(ctx, col, false)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if result.DocumentsProcessed != 2 {
		t.Errorf("documents processed = %d, want 2", result.DocumentsProcessed)
	}
	if result.IndexesAdded != 2 {
		t.Errorf("indexes added = %d, want 2 (title, year)", result.IndexesAdded)
	}

	for _, key := range []string{"title", "year"} {
		n, err := e.repo.CountIndexEntries(ctx, hashing.IndexTableName(key))
		if err != nil {
			t.Fatalf("count %s: %v", key, err)
		}
		if n != 2 {
			t.Errorf("%s entries = %d, want 2", key, n)
		}
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col := e.createCollection(t, types.IndexingAll)
	e.createDocument(t, col, `{"title":"Dune"}`)

	r := NewRebuilder(e.repo, e.manager, nil, 1)
	if _, err := r.Rebuild(ctx, col, false); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	if _, err := r.Rebuild(ctx, col, false); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	// No duplicate rows from repeated rebuilds.
	n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName("title"))
	if n != 1 {
		t.Errorf("title entries = %d, want 1", n)
	}
}

func TestRebuildAfterModeChangeToSelective(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	col := e.createCollection(t, types.IndexingAll)
	e.createDocument(t, col, `{"title":"Dune","year":1965}`)

	r := NewRebuilder(e.repo, e.manager, nil, 1)
	if _, err := r.Rebuild(ctx, col, false); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}

	// Narrow to title only and rebuild with drop-unused.
	col.IndexingMode = types.IndexingSelective
	if err := e.repo.UpdateCollection(ctx, col); err != nil {
		t.Fatalf("update collection: %v", err)
	}
	if err := e.repo.ReplaceIndexedFields(ctx, col.ID, []*types.IndexedField{
		{ID: idgen.NewIndexedFieldID(), CollectionID: col.ID, FieldPath: "title", CreatedUTC: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("replace indexed fields: %v", err)
	}

	result, err := r.Rebuild(ctx, col, true)
	if err != nil {
		t.Fatalf("selective rebuild: %v", err)
	}
	if result.IndexesDropped != 1 {
		t.Errorf("indexes dropped = %d, want 1 (year)", result.IndexesDropped)
	}
	if n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName("title")); n != 1 {
		t.Errorf("title entries = %d, want 1", n)
	}
	if _, err := e.repo.GetIndexTableMapping(ctx, "year"); err == nil {
		t.Error("year mapping survived drop-unused rebuild")
	}
}

func TestRebuildDropUnusedSparesSharedTables(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Two collections share the "title" table.
	colA := e.createCollection(t, types.IndexingAll)
	colB := e.createCollection(t, types.IndexingAll)
	e.createDocument(t, colA, `{"title":"A"}`)
	e.createDocument(t, colB, `{"title":"B"}`)

	r := NewRebuilder(e.repo, e.manager, nil, 1)
	if _, err := r.Rebuild(ctx, colA, false); err != nil {
		t.Fatalf("rebuild A: %v", err)
	}
	if _, err := r.Rebuild(ctx, colB, false); err != nil {
		t.Fatalf("rebuild B: %v", err)
	}

	// A stops indexing; the shared table still holds B's rows.
	colA.IndexingMode = types.IndexingNone
	if err := e.repo.UpdateCollection(ctx, colA); err != nil {
		t.Fatalf("update: %v", err)
	}
	result, err := r.Rebuild(ctx, colA, true)
	if err != nil {
		t.Fatalf("rebuild A none: %v", err)
	}
	if result.IndexesDropped != 0 {
		t.Errorf("indexes dropped = %d, want 0 (table shared with another collection)", result.IndexesDropped)
	}
	if n, _ := e.repo.CountIndexEntries(ctx, hashing.IndexTableName("title")); n != 1 {
		t.Errorf("shared title entries = %d, want 1 (B's row)", n)
	}
}
