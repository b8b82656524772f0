// Package catalog manages collection lifecycle and configuration: create,
// update, and delete collections, maintain their field constraints and
// indexed-field declarations, and expose schema and stats views.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// ErrInvalidRequest flags caller input that fails validation before any
// storage work happens.
var ErrInvalidRequest = errors.New("invalid request")

// CreateCollectionRequest carries the settings for a new collection.
type CreateCollectionRequest struct {
	Name                  string
	Description           string
	DocumentsDirectory    string
	SchemaEnforcementMode types.SchemaEnforcementMode
	IndexingMode          types.IndexingMode
}

// UpdateCollectionRequest carries mutable collection settings. Nil fields
// keep their current values.
type UpdateCollectionRequest struct {
	Description           *string
	SchemaEnforcementMode *types.SchemaEnforcementMode
	IndexingMode          *types.IndexingMode
}

// Service coordinates collection-level operations.
type Service struct {
	repo      storage.Repository
	documents *ingest.Service
	log       *slog.Logger
	now       func() time.Time
}

// NewService returns a catalog service. The ingest service handles the
// per-document cascade when a collection is deleted.
func NewService(repo storage.Repository, documents *ingest.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, documents: documents, log: log, now: time.Now}
}

// CreateCollection validates the request, creates the blob directory, and
// persists the collection row. Unset modes default to None.
func (s *Service) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*types.Collection, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: collection name must not be empty", ErrInvalidRequest)
	}
	if req.DocumentsDirectory == "" {
		return nil, fmt.Errorf("%w: documents directory must not be empty", ErrInvalidRequest)
	}
	enforcement := req.SchemaEnforcementMode
	if enforcement == "" {
		enforcement = types.EnforcementNone
	}
	if !enforcement.IsValid() {
		return nil, fmt.Errorf("%w: unknown schema enforcement mode %q", ErrInvalidRequest, enforcement)
	}
	indexing := req.IndexingMode
	if indexing == "" {
		indexing = types.IndexingNone
	}
	if !indexing.IsValid() {
		return nil, fmt.Errorf("%w: unknown indexing mode %q", ErrInvalidRequest, indexing)
	}

	if _, err := blob.NewDirectoryStore(req.DocumentsDirectory); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	now := s.now().UTC()
	col := &types.Collection{
		ID:                    idgen.NewCollectionID(),
		Name:                  req.Name,
		Description:           req.Description,
		DocumentsDirectory:    req.DocumentsDirectory,
		SchemaEnforcementMode: enforcement,
		IndexingMode:          indexing,
		CreatedUTC:            now,
		LastUpdateUTC:         now,
	}
	if err := s.repo.CreateCollection(ctx, col); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.log.Info("collection created", "collection", col.ID, "name", col.Name)
	return col, nil
}

// GetCollection returns one collection by ID.
func (s *Service) GetCollection(ctx context.Context, id string) (*types.Collection, error) {
	return s.repo.GetCollection(ctx, id)
}

// GetCollectionByName returns one collection by its unique name.
func (s *Service) GetCollectionByName(ctx context.Context, name string) (*types.Collection, error) {
	return s.repo.GetCollectionByName(ctx, name)
}

// ListCollections returns all collections.
func (s *Service) ListCollections(ctx context.Context) ([]*types.Collection, error) {
	return s.repo.ListCollections(ctx)
}

// UpdateCollection applies the given settings. Name and directory are
// immutable; changing the indexing mode takes effect for future ingests,
// with an explicit rebuild bringing existing documents in line.
func (s *Service) UpdateCollection(ctx context.Context, id string, req UpdateCollectionRequest) (*types.Collection, error) {
	col, err := s.repo.GetCollection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update collection: %w", err)
	}

	if req.Description != nil {
		col.Description = *req.Description
	}
	if req.SchemaEnforcementMode != nil {
		if !req.SchemaEnforcementMode.IsValid() {
			return nil, fmt.Errorf("%w: unknown schema enforcement mode %q", ErrInvalidRequest, *req.SchemaEnforcementMode)
		}
		col.SchemaEnforcementMode = *req.SchemaEnforcementMode
	}
	if req.IndexingMode != nil {
		if !req.IndexingMode.IsValid() {
			return nil, fmt.Errorf("%w: unknown indexing mode %q", ErrInvalidRequest, *req.IndexingMode)
		}
		col.IndexingMode = *req.IndexingMode
	}
	col.LastUpdateUTC = s.now().UTC()

	if err := s.repo.UpdateCollection(ctx, col); err != nil {
		return nil, fmt.Errorf("update collection: %w", err)
	}
	return col, nil
}

// DeleteCollection removes the collection and everything it owns: every
// document with its index rows, annotations, and blob, then the constraint
// and indexed-field rows, and finally the collection itself. The blob
// directory is removed when the cascade leaves it empty.
func (s *Service) DeleteCollection(ctx context.Context, id string) error {
	col, err := s.repo.GetCollection(ctx, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	ids, err := s.repo.ListDocumentIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	for _, docID := range ids {
		if err := s.documents.Delete(ctx, docID); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}

	if err := s.repo.ReplaceFieldConstraints(ctx, id, nil); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := s.repo.ReplaceIndexedFields(ctx, id, nil); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if err := s.repo.DeleteCollection(ctx, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}

	// Best effort: only an empty directory goes away, so foreign files
	// dropped next to the blobs survive.
	if err := os.Remove(col.DocumentsDirectory); err != nil && !os.IsNotExist(err) {
		s.log.Warn("could not remove documents directory",
			"collection", id, "directory", col.DocumentsDirectory, "error", err)
	}

	s.log.Info("collection deleted", "collection", id, "documents", len(ids))
	return nil
}

// GetCollectionStats returns document count and size totals for one
// collection.
func (s *Service) GetCollectionStats(ctx context.Context, id string) (*types.CollectionStats, error) {
	if _, err := s.repo.GetCollection(ctx, id); err != nil {
		return nil, fmt.Errorf("collection stats: %w", err)
	}
	return s.repo.GetCollectionStats(ctx, id)
}

// SetFieldConstraints validates and replaces the collection's constraint
// set wholesale.
func (s *Service) SetFieldConstraints(ctx context.Context, collectionID string, constraints []*types.FieldConstraint) error {
	if _, err := s.repo.GetCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("set field constraints: %w", err)
	}

	now := s.now().UTC()
	seen := make(map[string]bool, len(constraints))
	for _, c := range constraints {
		if c.FieldPath == "" {
			return fmt.Errorf("%w: constraint is missing a field path", ErrInvalidRequest)
		}
		if seen[c.FieldPath] {
			return fmt.Errorf("%w: duplicate constraint for field %q", ErrInvalidRequest, c.FieldPath)
		}
		seen[c.FieldPath] = true
		if c.RegexPattern != "" {
			if _, err := regexp.Compile(c.RegexPattern); err != nil {
				return fmt.Errorf("%w: field %q has invalid regex pattern: %v", ErrInvalidRequest, c.FieldPath, err)
			}
		}
		if c.MinValue != nil && c.MaxValue != nil && *c.MinValue > *c.MaxValue {
			return fmt.Errorf("%w: field %q has min value above max value", ErrInvalidRequest, c.FieldPath)
		}
		if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
			return fmt.Errorf("%w: field %q has min length above max length", ErrInvalidRequest, c.FieldPath)
		}
		c.ID = idgen.NewFieldConstraintID()
		c.CollectionID = collectionID
		c.CreatedUTC = now
		c.LastUpdateUTC = now
	}
	return s.repo.ReplaceFieldConstraints(ctx, collectionID, constraints)
}

// ListFieldConstraints returns the collection's constraint set.
func (s *Service) ListFieldConstraints(ctx context.Context, collectionID string) ([]*types.FieldConstraint, error) {
	return s.repo.ListFieldConstraints(ctx, collectionID)
}

// SetIndexedFields replaces the collection's selective-indexing opt-ins.
// Takes effect for future ingests; a rebuild applies it retroactively.
func (s *Service) SetIndexedFields(ctx context.Context, collectionID string, fieldPaths []string) error {
	if _, err := s.repo.GetCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("set indexed fields: %w", err)
	}

	now := s.now().UTC()
	seen := make(map[string]bool, len(fieldPaths))
	fields := make([]*types.IndexedField, 0, len(fieldPaths))
	for _, path := range fieldPaths {
		if path == "" {
			return fmt.Errorf("%w: indexed field path must not be empty", ErrInvalidRequest)
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		fields = append(fields, &types.IndexedField{
			ID:           idgen.NewIndexedFieldID(),
			CollectionID: collectionID,
			FieldPath:    path,
			CreatedUTC:   now,
		})
	}
	return s.repo.ReplaceIndexedFields(ctx, collectionID, fields)
}

// ListIndexedFields returns the collection's selective-indexing opt-ins.
func (s *Service) ListIndexedFields(ctx context.Context, collectionID string) ([]*types.IndexedField, error) {
	return s.repo.ListIndexedFields(ctx, collectionID)
}

// ListSchemas returns every deduplicated schema in the store.
func (s *Service) ListSchemas(ctx context.Context) ([]*types.Schema, error) {
	return s.repo.ListSchemas(ctx)
}

// GetSchema returns one schema with its ordered elements.
func (s *Service) GetSchema(ctx context.Context, id string) (*types.Schema, []*types.SchemaElement, error) {
	sch, err := s.repo.GetSchema(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get schema: %w", err)
	}
	elements, err := s.repo.ListSchemaElements(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get schema: %w", err)
	}
	return sch, elements, nil
}

// ListIndexTables returns the global key <-> table mappings.
func (s *Service) ListIndexTables(ctx context.Context) ([]*types.IndexTableMapping, error) {
	return s.repo.ListIndexTableMappings(ctx)
}
