// Package server exposes the HTTP API under /v1.0: collection lifecycle and
// configuration, document ingest and retrieval, search, index rebuild, and
// schema views. Every JSON response is wrapped in a uniform envelope; the
// raw content fetch returns the stored bytes as-is.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/lattice-db/lattice/internal/catalog"
	"github.com/lattice-db/lattice/internal/index"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/search"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// Options configures request handling limits and defaults.
type Options struct {
	// MaxResults clamps search page sizes.
	MaxResults int
	// CollectionsDir is where collections without an explicit directory
	// put their blobs.
	CollectionsDir string
	// MaxBodyBytes caps request bodies. Zero means 32 MiB.
	MaxBodyBytes int64
}

// Server routes HTTP requests to the underlying services.
type Server struct {
	catalog   *catalog.Service
	documents *ingest.Service
	search    *search.Service
	rebuilder *index.Rebuilder
	log       *slog.Logger
	opts      Options
}

// New assembles the API server.
func New(cat *catalog.Service, docs *ingest.Service, srch *search.Service, rebuilder *index.Rebuilder, log *slog.Logger, opts Options) *Server {
	if log == nil {
		log = discardLogger()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1000
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	return &Server{
		catalog:   cat,
		documents: docs,
		search:    srch,
		rebuilder: rebuilder,
		log:       log,
		opts:      opts,
	}
}

// Handler returns the routed HTTP handler. GET patterns also serve HEAD.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1.0/health", s.handleHealth)

	mux.HandleFunc("GET /v1.0/collections", s.handleListCollections)
	mux.HandleFunc("PUT /v1.0/collections", s.handleCreateCollection)
	mux.HandleFunc("GET /v1.0/collections/{id}", s.handleGetCollection)
	mux.HandleFunc("PUT /v1.0/collections/{id}", s.handleUpdateCollection)
	mux.HandleFunc("DELETE /v1.0/collections/{id}", s.handleDeleteCollection)
	mux.HandleFunc("GET /v1.0/collections/{id}/stats", s.handleCollectionStats)

	mux.HandleFunc("GET /v1.0/collections/{id}/constraints", s.handleGetConstraints)
	mux.HandleFunc("PUT /v1.0/collections/{id}/constraints", s.handlePutConstraints)
	mux.HandleFunc("GET /v1.0/collections/{id}/indexing", s.handleGetIndexing)
	mux.HandleFunc("PUT /v1.0/collections/{id}/indexing", s.handlePutIndexing)
	mux.HandleFunc("POST /v1.0/collections/{id}/indexes/rebuild", s.handleRebuildIndexes)

	mux.HandleFunc("GET /v1.0/collections/{cid}/documents", s.handleListDocuments)
	mux.HandleFunc("PUT /v1.0/collections/{cid}/documents", s.handleIngest)
	mux.HandleFunc("GET /v1.0/collections/{cid}/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /v1.0/collections/{cid}/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /v1.0/collections/{cid}/documents/search", s.handleSearch)

	mux.HandleFunc("GET /v1.0/schemas", s.handleListSchemas)
	mux.HandleFunc("GET /v1.0/schemas/{id}", s.handleGetSchema)
	mux.HandleFunc("GET /v1.0/schemas/{id}/elements", s.handleGetSchemaElements)
	mux.HandleFunc("GET /v1.0/tables", s.handleListTables)

	return s.logRequests(mux)
}

// logRequests emits one debug line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// defaultDirectory picks the blob directory for a collection created
// without one.
func (s *Server) defaultDirectory(name string) string {
	return filepath.Join(s.opts.CollectionsDir, name)
}
