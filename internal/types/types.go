// Package types provides shared value types for the Lattice document store.
//
// The concrete repository implementation lives in internal/storage. This
// package holds entity and request/response types that are referenced by
// both the storage layer and its consumers (services, HTTP server, CLI).
package types

import (
	"encoding/json"
	"time"
)

// SchemaEnforcementMode controls how field constraints are applied on ingest.
type SchemaEnforcementMode string

const (
	// EnforcementNone skips constraint validation entirely.
	EnforcementNone SchemaEnforcementMode = "None"
	// EnforcementSoft validates but allows ingestion; errors come back as warnings.
	EnforcementSoft SchemaEnforcementMode = "Soft"
	// EnforcementStrict rejects documents that fail validation.
	EnforcementStrict SchemaEnforcementMode = "Strict"
)

// IsValid reports whether m is a recognized enforcement mode.
func (m SchemaEnforcementMode) IsValid() bool {
	switch m {
	case EnforcementNone, EnforcementSoft, EnforcementStrict:
		return true
	}
	return false
}

// IndexingMode controls which document keys get per-key index tables.
type IndexingMode string

const (
	// IndexingNone disables indexing for the collection.
	IndexingNone IndexingMode = "None"
	// IndexingAll indexes every key present in ingested documents.
	IndexingAll IndexingMode = "All"
	// IndexingSelective indexes only keys declared via IndexedField.
	IndexingSelective IndexingMode = "Selective"
)

// IsValid reports whether m is a recognized indexing mode.
func (m IndexingMode) IsValid() bool {
	switch m {
	case IndexingNone, IndexingAll, IndexingSelective:
		return true
	}
	return false
}

// Collection is a logical namespace that owns documents, constraints,
// indexed-field declarations, and annotations.
type Collection struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name"`
	Description           string                `json:"description,omitempty"`
	DocumentsDirectory    string                `json:"documentsDirectory"`
	SchemaEnforcementMode SchemaEnforcementMode `json:"schemaEnforcementMode"`
	IndexingMode          IndexingMode          `json:"indexingMode"`
	CreatedUTC            time.Time             `json:"createdUtc"`
	LastUpdateUTC         time.Time             `json:"lastUpdateUtc"`
}

// Document is the metadata row for one stored JSON body. The body bytes live
// in the blob store keyed by ID; documents are immutable once ingested.
type Document struct {
	ID            string    `json:"id"`
	CollectionID  string    `json:"collectionId"`
	SchemaID      string    `json:"schemaId"`
	Name          string    `json:"name,omitempty"`
	ContentLength int64     `json:"contentLength"`
	SHA256Hash    string    `json:"sha256Hash"`
	CreatedUTC    time.Time `json:"createdUtc"`
	LastUpdateUTC time.Time `json:"lastUpdateUtc"`

	// Content is populated only when the caller asked for it.
	Content json.RawMessage `json:"content,omitempty"`
}

// Schema is a deduplicated structural fingerprint of a JSON shape,
// content-addressed by Hash.
type Schema struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	Hash          string    `json:"hash"`
	CreatedUTC    time.Time `json:"createdUtc"`
	LastUpdateUTC time.Time `json:"lastUpdateUtc"`
}

// SchemaElement is one entry in a schema's ordered element list. Key is a
// dot-joined path as produced by the flattener.
type SchemaElement struct {
	ID         string    `json:"id"`
	SchemaID   string    `json:"schemaId"`
	Position   int       `json:"position"`
	Key        string    `json:"key"`
	DataType   string    `json:"dataType"`
	Nullable   bool      `json:"nullable"`
	CreatedUTC time.Time `json:"createdUtc"`
}

// FieldConstraint is a per-collection validation rule evaluated against the
// flattened projection of a candidate document. Unique on
// (CollectionID, FieldPath).
type FieldConstraint struct {
	ID               string    `json:"id"`
	CollectionID     string    `json:"collectionId"`
	FieldPath        string    `json:"fieldPath"`
	DataType         string    `json:"dataType,omitempty"`
	Required         bool      `json:"required"`
	Nullable         *bool     `json:"nullable,omitempty"` // nil means nullable
	RegexPattern     string    `json:"regexPattern,omitempty"`
	MinValue         *float64  `json:"minValue,omitempty"`
	MaxValue         *float64  `json:"maxValue,omitempty"`
	MinLength        *int      `json:"minLength,omitempty"`
	MaxLength        *int      `json:"maxLength,omitempty"`
	AllowedValues    []string  `json:"allowedValues,omitempty"`
	ArrayElementType string    `json:"arrayElementType,omitempty"`
	CreatedUTC       time.Time `json:"createdUtc"`
	LastUpdateUTC    time.Time `json:"lastUpdateUtc"`
}

// IsNullable reports whether null values are allowed for the field.
// Constraints are nullable unless explicitly declared otherwise.
func (c *FieldConstraint) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

// IndexedField is a per-collection opt-in for selective indexing.
// Unique on (CollectionID, FieldPath).
type IndexedField struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId"`
	FieldPath    string    `json:"fieldPath"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

// IndexTableMapping records the global bijection key <-> dynamic table name.
// TableName is always "index_" + lowercase hex MD5 of the key.
type IndexTableMapping struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	TableName  string    `json:"tableName"`
	CreatedUTC time.Time `json:"createdUtc"`
}

// IndexEntry is one row of a dynamic per-key index table: a single flattened
// leaf of one document. Position is the array index when the leaf sat inside
// an array, nil otherwise. Value is nil for JSON null.
type IndexEntry struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Position   *int      `json:"position,omitempty"`
	Value      *string   `json:"value"`
	CreatedUTC time.Time `json:"createdUtc"`
}

// Label is a single-string annotation attached to exactly one of a
// collection or a document.
type Label struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId,omitempty"`
	DocumentID   string    `json:"documentId,omitempty"`
	Label        string    `json:"label"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

// Tag is a (key, value) annotation attached to exactly one of a collection
// or a document.
type Tag struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId,omitempty"`
	DocumentID   string    `json:"documentId,omitempty"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

// ObjectLock is a table-backed named lock claiming a (collection, document
// name) pair for one host. Unique on (CollectionID, DocumentName); logically
// expires after the configured TTL.
type ObjectLock struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collectionId"`
	DocumentName string    `json:"documentName"`
	Hostname     string    `json:"hostname"`
	CreatedUTC   time.Time `json:"createdUtc"`
}

// Expired reports whether the lock's TTL has elapsed as of now.
func (l *ObjectLock) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.CreatedUTC) > ttl
}

// CollectionStats summarizes a collection's contents.
type CollectionStats struct {
	CollectionID    string `json:"collectionId"`
	DocumentCount   int64  `json:"documentCount"`
	TotalBytes      int64  `json:"totalBytes"`
	DistinctSchemas int64  `json:"distinctSchemas"`
}
