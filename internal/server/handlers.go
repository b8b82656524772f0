package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lattice-db/lattice/internal/catalog"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
	"github.com/lattice-db/lattice/internal/validation"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	s.respond(w, r, started, http.StatusOK, map[string]string{"status": "ok"})
}

// --- collections ---

type createCollectionBody struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	DocumentsDirectory    string `json:"documentsDirectory"`
	SchemaEnforcementMode string `json:"schemaEnforcementMode"`
	IndexingMode          string `json:"indexingMode"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body createCollectionBody
	if err := s.decodeBody(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	dir := body.DocumentsDirectory
	if dir == "" && body.Name != "" {
		dir = s.defaultDirectory(body.Name)
	}
	col, err := s.catalog.CreateCollection(r.Context(), catalog.CreateCollectionRequest{
		Name:                  body.Name,
		Description:           body.Description,
		DocumentsDirectory:    dir,
		SchemaEnforcementMode: types.SchemaEnforcementMode(body.SchemaEnforcementMode),
		IndexingMode:          types.IndexingMode(body.IndexingMode),
	})
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusCreated, col)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	cols, err := s.catalog.ListCollections(r.Context())
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, cols)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	col, err := s.catalog.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, col)
}

type updateCollectionBody struct {
	Description           *string `json:"description"`
	SchemaEnforcementMode *string `json:"schemaEnforcementMode"`
	IndexingMode          *string `json:"indexingMode"`
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body updateCollectionBody
	if err := s.decodeBody(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	req := catalog.UpdateCollectionRequest{Description: body.Description}
	if body.SchemaEnforcementMode != nil {
		mode := types.SchemaEnforcementMode(*body.SchemaEnforcementMode)
		req.SchemaEnforcementMode = &mode
	}
	if body.IndexingMode != nil {
		mode := types.IndexingMode(*body.IndexingMode)
		req.IndexingMode = &mode
	}
	col, err := s.catalog.UpdateCollection(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, col)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	if err := s.catalog.DeleteCollection(r.Context(), r.PathValue("id")); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCollectionStats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	stats, err := s.catalog.GetCollectionStats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, stats)
}

// --- constraints ---

// constraintsView pairs the enforcement mode with the constraint set, the
// shape served by GET and accepted by PUT.
type constraintsView struct {
	SchemaEnforcementMode string                   `json:"schemaEnforcementMode"`
	FieldConstraints      []*types.FieldConstraint `json:"fieldConstraints"`
}

func (s *Server) handleGetConstraints(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	col, err := s.catalog.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	constraints, err := s.catalog.ListFieldConstraints(r.Context(), col.ID)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, constraintsView{
		SchemaEnforcementMode: string(col.SchemaEnforcementMode),
		FieldConstraints:      constraints,
	})
}

func (s *Server) handlePutConstraints(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body struct {
		SchemaEnforcementMode string                   `json:"schemaEnforcementMode"`
		FieldConstraints      []*types.FieldConstraint `json:"fieldConstraints"`
	}
	if err := s.decodeBody(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	collectionID := r.PathValue("id")
	if body.SchemaEnforcementMode != "" {
		mode := types.SchemaEnforcementMode(body.SchemaEnforcementMode)
		if _, err := s.catalog.UpdateCollection(r.Context(), collectionID,
			catalog.UpdateCollectionRequest{SchemaEnforcementMode: &mode}); err != nil {
			s.respondError(w, r, started, err)
			return
		}
	}
	if body.FieldConstraints != nil {
		if err := s.catalog.SetFieldConstraints(r.Context(), collectionID, body.FieldConstraints); err != nil {
			s.respondError(w, r, started, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- indexing policy ---

type indexingView struct {
	IndexingMode  string                `json:"indexingMode"`
	IndexedFields []*types.IndexedField `json:"indexedFields"`
}

func (s *Server) handleGetIndexing(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	col, err := s.catalog.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	fields, err := s.catalog.ListIndexedFields(r.Context(), col.ID)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, indexingView{
		IndexingMode:  string(col.IndexingMode),
		IndexedFields: fields,
	})
}

func (s *Server) handlePutIndexing(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body struct {
		IndexingMode   string    `json:"indexingMode"`
		IndexedFields  *[]string `json:"indexedFields"`
		RebuildIndexes bool      `json:"rebuildIndexes"`
	}
	if err := s.decodeBody(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	collectionID := r.PathValue("id")
	if body.IndexingMode != "" {
		mode := types.IndexingMode(body.IndexingMode)
		if _, err := s.catalog.UpdateCollection(r.Context(), collectionID,
			catalog.UpdateCollectionRequest{IndexingMode: &mode}); err != nil {
			s.respondError(w, r, started, err)
			return
		}
	}
	if body.IndexedFields != nil {
		if err := s.catalog.SetIndexedFields(r.Context(), collectionID, *body.IndexedFields); err != nil {
			s.respondError(w, r, started, err)
			return
		}
	}
	if body.RebuildIndexes {
		col, err := s.catalog.GetCollection(r.Context(), collectionID)
		if err != nil {
			s.respondError(w, r, started, err)
			return
		}
		if _, err := s.rebuilder.Rebuild(r.Context(), col, false); err != nil {
			s.respondError(w, r, started, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRebuildIndexes(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body struct {
		DropUnusedIndexes bool `json:"dropUnusedIndexes"`
	}
	if err := s.decodeBodyOptional(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	col, err := s.catalog.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	result, err := s.rebuilder.Rebuild(r.Context(), col, body.DropUnusedIndexes)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, result)
}

// --- documents ---

// createDocumentBody carries one document to ingest. Content holds the raw
// JSON body to store.
type createDocumentBody struct {
	Name    string            `json:"name,omitempty"`
	Content json.RawMessage   `json:"content"`
	Labels  []string          `json:"labels,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// ingestResponse augments the stored document with its schema and any
// soft-mode validation warnings.
type ingestResponse struct {
	Document *types.Document    `json:"document"`
	Schema   *types.Schema      `json:"schema"`
	Warnings []validation.Issue `json:"warnings,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body createDocumentBody
	if err := s.decodeBody(r, &body); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	result, err := s.documents.Ingest(r.Context(), ingest.Request{
		CollectionID: r.PathValue("cid"),
		Name:         body.Name,
		Content:      body.Content,
		Labels:       body.Labels,
		Tags:         body.Tags,
	})
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}

	resp := ingestResponse{Document: result.Document, Schema: result.Schema, Warnings: result.Warnings}
	if len(result.Warnings) > 0 {
		s.respondWarnings(w, r, started, http.StatusCreated, resp,
			fmt.Sprintf("document stored with %d validation warning(s)", len(result.Warnings)))
		return
	}
	s.respond(w, r, started, http.StatusCreated, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	collectionID := r.PathValue("cid")
	if _, err := s.catalog.GetCollection(r.Context(), collectionID); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	docs, err := s.documents.List(r.Context(), collectionID)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, docs)
}

// handleGetDocument returns document metadata wrapped in the envelope, or
// the raw stored bytes when ?includeContent=true.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	doc, err := s.documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	if doc.CollectionID != r.PathValue("cid") {
		s.respondError(w, r, started, storage.ErrNotFound)
		return
	}
	if r.URL.Query().Get("includeContent") != "true" {
		s.respond(w, r, started, http.StatusOK, doc)
		return
	}

	content, err := s.documents.ReadContent(r.Context(), doc.ID)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.log.Error("failed to write content", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	doc, err := s.documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	if doc.CollectionID != r.PathValue("cid") {
		s.respondError(w, r, started, storage.ErrNotFound)
		return
	}
	if err := s.documents.Delete(r.Context(), doc.ID); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- search ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req types.SearchRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, r, started, err)
		return
	}
	if req.MaxResults > s.opts.MaxResults {
		req.MaxResults = s.opts.MaxResults
	}
	result, err := s.search.Search(r.Context(), r.PathValue("cid"), &req)
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, result)
}

// --- schemas and index tables ---

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	schemas, err := s.catalog.ListSchemas(r.Context())
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, schemas)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	sch, _, err := s.catalog.GetSchema(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, sch)
}

func (s *Server) handleGetSchemaElements(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	_, elements, err := s.catalog.GetSchema(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, elements)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	mappings, err := s.catalog.ListIndexTables(r.Context())
	if err != nil {
		s.respondError(w, r, started, err)
		return
	}
	s.respond(w, r, started, http.StatusOK, mappings)
}

// decodeBody parses a JSON request body, rejecting junk and oversized
// payloads with 400s.
func (s *Server) decodeBody(r *http.Request, into any) error {
	body := io.LimitReader(r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeBodyOptional is decodeBody for endpoints whose body may be empty.
func (s *Server) decodeBodyOptional(r *http.Request, into any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
