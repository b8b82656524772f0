// Package storage defines the repository contract for Lattice's relational
// metadata.
//
// The concrete implementation lives in the sqlrepo sub-package and is
// parameterized by SQL dialect; backends register themselves with the
// factory sub-package. Consumers depend on this interface rather than on a
// concrete type so alternative implementations can be substituted.
package storage

import (
	"context"
	"errors"

	"github.com/lattice-db/lattice/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on a unique-constraint violation or other
// conflicting state (duplicate collection name, duplicate lock row, ...).
var ErrConflict = errors.New("conflict")

// Repository is the transactional store for all relational metadata:
// collections, documents, schemas, annotations, constraints, index table
// mappings, and object locks, plus DDL for the dynamic per-key index tables.
type Repository interface {
	// Collections
	CreateCollection(ctx context.Context, c *types.Collection) error
	GetCollection(ctx context.Context, id string) (*types.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*types.Collection, error)
	ListCollections(ctx context.Context) ([]*types.Collection, error)
	UpdateCollection(ctx context.Context, c *types.Collection) error
	DeleteCollection(ctx context.Context, id string) error
	GetCollectionStats(ctx context.Context, collectionID string) (*types.CollectionStats, error)

	// Documents
	CreateDocument(ctx context.Context, d *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetDocumentsByIDs(ctx context.Context, ids []string) ([]*types.Document, error)
	ListDocuments(ctx context.Context, collectionID string) ([]*types.Document, error)
	ListDocumentIDs(ctx context.Context, collectionID string) ([]string, error)
	DeleteDocument(ctx context.Context, id string) error

	// Schemas. CreateSchema persists the schema and its ordered elements.
	CreateSchema(ctx context.Context, s *types.Schema, elements []*types.SchemaElement) error
	GetSchema(ctx context.Context, id string) (*types.Schema, error)
	GetSchemaByHash(ctx context.Context, hash string) (*types.Schema, error)
	ListSchemas(ctx context.Context) ([]*types.Schema, error)
	ListSchemaElements(ctx context.Context, schemaID string) ([]*types.SchemaElement, error)

	// Labels and tags
	AddLabel(ctx context.Context, l *types.Label) error
	ListDocumentLabels(ctx context.Context, documentID string) ([]*types.Label, error)
	ListCollectionLabels(ctx context.Context, collectionID string) ([]*types.Label, error)
	DeleteLabelsForDocument(ctx context.Context, documentID string) error
	AddTag(ctx context.Context, t *types.Tag) error
	ListDocumentTags(ctx context.Context, documentID string) ([]*types.Tag, error)
	ListCollectionTags(ctx context.Context, collectionID string) ([]*types.Tag, error)
	DeleteTagsForDocument(ctx context.Context, documentID string) error

	// Field constraints and indexed-field declarations
	ReplaceFieldConstraints(ctx context.Context, collectionID string, constraints []*types.FieldConstraint) error
	ListFieldConstraints(ctx context.Context, collectionID string) ([]*types.FieldConstraint, error)
	ReplaceIndexedFields(ctx context.Context, collectionID string, fields []*types.IndexedField) error
	ListIndexedFields(ctx context.Context, collectionID string) ([]*types.IndexedField, error)

	// Index table mappings and dynamic per-key tables
	CreateIndexTableMapping(ctx context.Context, m *types.IndexTableMapping) error
	GetIndexTableMapping(ctx context.Context, key string) (*types.IndexTableMapping, error)
	ListIndexTableMappings(ctx context.Context) ([]*types.IndexTableMapping, error)
	DeleteIndexTableMapping(ctx context.Context, key string) error
	CreateIndexTable(ctx context.Context, tableName string) error
	DropIndexTable(ctx context.Context, tableName string) error
	InsertIndexEntries(ctx context.Context, tableName string, entries []*types.IndexEntry) error
	DeleteIndexEntriesByDocument(ctx context.Context, tableName, documentID string) error
	DeleteIndexEntriesByCollection(ctx context.Context, tableName, collectionID string) (int64, error)
	CountIndexEntries(ctx context.Context, tableName string) (int64, error)
	IndexTableHasCollectionRows(ctx context.Context, tableName, collectionID string) (bool, error)

	// Object locks
	CreateObjectLock(ctx context.Context, l *types.ObjectLock) error
	GetObjectLock(ctx context.Context, collectionID, documentName string) (*types.ObjectLock, error)
	DeleteObjectLock(ctx context.Context, id string) error

	// Raw statement escape hatches. Queries use ?-style placeholders and are
	// rebound to the backend's syntax. ExecuteQuery returns one map per row
	// keyed by lowercase column name.
	ExecuteQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error)

	// WithTx runs fn inside a single database transaction. The callback's
	// repository view shares the transaction; returning an error rolls back.
	// Nested calls join the enclosing transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
