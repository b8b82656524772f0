// Package ingest implements the document write path: lock, schema
// extraction and dedup, constraint validation, durable blob write, index
// population, and annotations, in that order. Deletion reverses the
// pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/hashing"
	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/index"
	"github.com/lattice-db/lattice/internal/locks"
	"github.com/lattice-db/lattice/internal/schema"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
	"github.com/lattice-db/lattice/internal/validation"
)

// ValidationError reports a strict-mode constraint rejection.
type ValidationError struct {
	Issues []validation.Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.FieldPath + ": " + issue.Message
	}
	return "document failed validation: " + strings.Join(msgs, "; ")
}

// Request carries one document to ingest.
type Request struct {
	CollectionID string
	Name         string
	Content      []byte
	Labels       []string
	Tags         map[string]string
}

// Result is a successful ingest. Warnings carries soft-mode validation
// issues; the document was stored regardless.
type Result struct {
	Document *types.Document
	Schema   *types.Schema
	Warnings []validation.Issue
}

// Service is the write-path coordinator.
type Service struct {
	repo    storage.Repository
	indexes *index.Manager
	locker  *locks.Manager
	log     *slog.Logger
	locking bool
	now     func() time.Time
}

// NewService wires the write path. locker may be nil when locking is
// disabled by configuration.
func NewService(repo storage.Repository, indexes *index.Manager, locker *locks.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:    repo,
		indexes: indexes,
		locker:  locker,
		log:     log,
		locking: locker != nil,
		now:     time.Now,
	}
}

// Ingest stores one document: parse and flatten, dedup its schema, validate
// against the collection's constraints, persist the metadata row and blob,
// populate index tables, and attach annotations. Documents are immutable; a
// later ingest with the same name is a new document.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	projection, err := flatten.Flatten(req.Content)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	// Named documents serialize through the object lock so two writers
	// cannot interleave the row/blob/index writes for the same name.
	if s.locking && req.Name != "" {
		lock, err := s.locker.Acquire(ctx, col.ID, req.Name)
		if err != nil {
			return nil, err
		}
		defer s.locker.Release(ctx, lock)
	}

	sch, err := s.dedupSchema(ctx, req.Content)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	var warnings []validation.Issue
	if col.SchemaEnforcementMode != types.EnforcementNone {
		constraints, err := s.repo.ListFieldConstraints(ctx, col.ID)
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		result := validation.Validate(constraints, projection)
		if !result.OK {
			if col.SchemaEnforcementMode == types.EnforcementStrict {
				return nil, &ValidationError{Issues: result.Errors}
			}
			warnings = result.Errors
		}
	}

	now := s.now().UTC()
	doc := &types.Document{
		ID:            idgen.NewDocumentID(),
		CollectionID:  col.ID,
		SchemaID:      sch.ID,
		Name:          req.Name,
		ContentLength: int64(len(req.Content)),
		SHA256Hash:    hashing.SHA256Hex(req.Content),
		CreatedUTC:    now,
		LastUpdateUTC: now,
	}

	store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	// The row goes in first so the blob is never orphaned; a failed blob
	// write compensates by removing the row.
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err := store.Write(doc.ID, req.Content); err != nil {
		if delErr := s.repo.DeleteDocument(ctx, doc.ID); delErr != nil {
			s.log.Error("failed to remove document row after blob write failure",
				"document", doc.ID, "error", delErr)
		}
		return nil, fmt.Errorf("ingest: %w", err)
	}

	if err := s.indexDocument(ctx, col, doc.ID, projection); err != nil {
		// Index rows are re-derivable by rebuild; the document itself is
		// durable, so report the error without undoing the write.
		return nil, fmt.Errorf("ingest: document %s stored but indexing failed: %w", doc.ID, err)
	}

	if err := s.annotate(ctx, doc.ID, req.Labels, req.Tags); err != nil {
		return nil, fmt.Errorf("ingest: document %s stored but annotating failed: %w", doc.ID, err)
	}

	s.log.Info("document ingested",
		"collection", col.ID, "document", doc.ID, "name", doc.Name,
		"bytes", doc.ContentLength, "schema", sch.ID, "warnings", len(warnings))
	return &Result{Document: doc, Schema: sch, Warnings: warnings}, nil
}

// dedupSchema extracts the content's schema and returns the canonical row
// for its hash, creating one if this shape has never been seen. Concurrent
// first-writers race on the unique hash column; losers re-read the winner.
func (s *Service) dedupSchema(ctx context.Context, content []byte) (*types.Schema, error) {
	elements, err := schema.Extract(content)
	if err != nil {
		return nil, err
	}
	hash := schema.Hash(elements)

	var out *types.Schema
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(25*time.Millisecond), 3), ctx)

	op := func() error {
		existing, err := s.repo.GetSchemaByHash(ctx, hash)
		switch {
		case err == nil:
			out = existing
			return nil
		case errors.Is(err, storage.ErrNotFound):
			// fall through to create
		default:
			return backoff.Permanent(err)
		}

		now := s.now().UTC()
		candidate := &types.Schema{
			ID:            idgen.NewSchemaID(),
			Hash:          hash,
			CreatedUTC:    now,
			LastUpdateUTC: now,
		}
		rows := make([]*types.SchemaElement, len(elements))
		for i, el := range elements {
			rows[i] = &types.SchemaElement{
				ID:         idgen.NewSchemaElementID(),
				SchemaID:   candidate.ID,
				Position:   el.Position,
				Key:        el.Key,
				DataType:   el.DataType,
				Nullable:   el.Nullable,
				CreatedUTC: now,
			}
		}
		if err := s.repo.CreateSchema(ctx, candidate, rows); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return err // another writer stored this shape first
			}
			return backoff.Permanent(err)
		}
		s.log.Info("new schema registered", "schema", candidate.ID, "hash", hash, "elements", len(rows))
		out = candidate
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("dedup schema: %w", err)
	}
	return out, nil
}

func (s *Service) indexDocument(ctx context.Context, col *types.Collection, documentID string, projection []flatten.FlattenedValue) error {
	if col.IndexingMode == types.IndexingNone {
		return nil
	}
	var keep map[string]bool
	if col.IndexingMode == types.IndexingSelective {
		fields, err := s.repo.ListIndexedFields(ctx, col.ID)
		if err != nil {
			return err
		}
		keep = make(map[string]bool, len(fields))
		for _, f := range fields {
			keep[f.FieldPath] = true
		}
	}
	return s.indexes.IndexDocument(ctx, documentID, projection, keep)
}

func (s *Service) annotate(ctx context.Context, documentID string, labels []string, tags map[string]string) error {
	now := s.now().UTC()
	for _, label := range labels {
		l := &types.Label{ID: idgen.NewLabelID(), DocumentID: documentID, Label: label, CreatedUTC: now}
		if err := s.repo.AddLabel(ctx, l); err != nil {
			return err
		}
	}
	for key, value := range tags {
		t := &types.Tag{ID: idgen.NewTagID(), DocumentID: documentID, Key: key, Value: value, CreatedUTC: now}
		if err := s.repo.AddTag(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one document and everything derived from it: index rows in
// every dynamic table, labels, tags, the blob, and finally the metadata row.
// The blob removal is non-fatal since an orphaned file cannot be reached
// once the row is gone.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	col, err := s.repo.GetCollection(ctx, doc.CollectionID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if s.locking && doc.Name != "" {
		lock, err := s.locker.Acquire(ctx, col.ID, doc.Name)
		if err != nil {
			return err
		}
		defer s.locker.Release(ctx, lock)
	}

	if err := s.indexes.DeindexDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.repo.DeleteLabelsForDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := s.repo.DeleteTagsForDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
	if err == nil {
		if err := store.Delete(documentID); err != nil {
			s.log.Warn("failed to delete blob", "document", documentID, "error", err)
		}
	}

	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.log.Info("document deleted", "collection", col.ID, "document", documentID)
	return nil
}

// Get returns one document's metadata row.
func (s *Service) Get(ctx context.Context, documentID string) (*types.Document, error) {
	return s.repo.GetDocument(ctx, documentID)
}

// List returns the metadata rows of every document in a collection.
func (s *Service) List(ctx context.Context, collectionID string) ([]*types.Document, error) {
	return s.repo.ListDocuments(ctx, collectionID)
}

// ReadContent returns the stored JSON bytes of one document.
func (s *Service) ReadContent(ctx context.Context, documentID string) ([]byte, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("read document content: %w", err)
	}
	col, err := s.repo.GetCollection(ctx, doc.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("read document content: %w", err)
	}
	store, err := blob.NewDirectoryStore(col.DocumentsDirectory)
	if err != nil {
		return nil, fmt.Errorf("read document content: %w", err)
	}
	content, err := store.Read(documentID)
	if err != nil {
		return nil, fmt.Errorf("read document content: %w", err)
	}
	return content, nil
}
