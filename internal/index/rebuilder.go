package index

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// Rebuilder re-derives a collection's index entries from its stored blobs.
// Used after the indexing mode or the indexed-field set changes, or to
// recover from a partial ingest failure.
type Rebuilder struct {
	repo    storage.Repository
	manager *Manager
	log     *slog.Logger
	workers int
}

// NewRebuilder returns a rebuilder that reads blobs with up to workers
// concurrent readers. Database writes stay sequential.
func NewRebuilder(repo storage.Repository, manager *Manager, log *slog.Logger, workers int) *Rebuilder {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = 4
	}
	return &Rebuilder{repo: repo, manager: manager, log: log, workers: workers}
}

// Rebuild purges the collection's rows from every index table, then
// re-flattens every document and repopulates the tables the collection's
// indexing mode calls for. When dropUnused is set, tables left empty across
// ALL collections are dropped along with their mappings.
func (r *Rebuilder) Rebuild(ctx context.Context, col *types.Collection, dropUnused bool) (*types.IndexRebuildResult, error) {
	store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
	if err != nil {
		return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
	}

	ids, err := r.repo.ListDocumentIDs(ctx, col.ID)
	if err != nil {
		return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
	}

	// Read and flatten concurrently; results land in per-index slots so no
	// locking is needed.
	projections := make([][]flatten.FlattenedValue, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := store.Read(id)
			if err != nil {
				return fmt.Errorf("read document %s: %w", id, err)
			}
			values, err := flatten.Flatten(content)
			if err != nil {
				return fmt.Errorf("flatten document %s: %w", id, err)
			}
			projections[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
	}

	keep, err := r.keepSet(ctx, col)
	if err != nil {
		return nil, err
	}

	before, err := r.repo.ListIndexTableMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
	}
	knownKeys := make(map[string]bool, len(before))
	for _, m := range before {
		knownKeys[m.Key] = true
	}

	// Purge this collection's rows everywhere before repopulating, so keys
	// the documents no longer contain do not leave stale entries behind.
	for _, m := range before {
		if _, err := r.repo.DeleteIndexEntriesByCollection(ctx, m.TableName, col.ID); err != nil {
			return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
		}
	}

	result := &types.IndexRebuildResult{DocumentsProcessed: len(ids)}

	if col.IndexingMode != types.IndexingNone {
		for i, id := range ids {
			if err := r.manager.IndexDocument(ctx, id, projections[i], keep); err != nil {
				return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
			}
		}
	}

	after, err := r.repo.ListIndexTableMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
	}
	for _, m := range after {
		if !knownKeys[m.Key] {
			result.IndexesAdded++
		}
	}

	if dropUnused {
		for _, m := range after {
			dropped, err := r.manager.DropIfEmpty(ctx, m.Key)
			if err != nil {
				return nil, fmt.Errorf("rebuild indexes for collection %s: %w", col.ID, err)
			}
			if dropped {
				result.IndexesDropped++
			}
		}
	}

	r.log.Info("index rebuild complete",
		"collection", col.ID,
		"documents", result.DocumentsProcessed,
		"added", result.IndexesAdded,
		"dropped", result.IndexesDropped)
	return result, nil
}

// keepSet returns the key filter for the collection's indexing mode: nil
// means index everything, a non-nil set restricts to its members.
func (r *Rebuilder) keepSet(ctx context.Context, col *types.Collection) (map[string]bool, error) {
	if col.IndexingMode != types.IndexingSelective {
		return nil, nil
	}
	fields, err := r.repo.ListIndexedFields(ctx, col.ID)
	if err != nil {
		return nil, fmt.Errorf("list indexed fields for collection %s: %w", col.ID, err)
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f.FieldPath] = true
	}
	return keep, nil
}
