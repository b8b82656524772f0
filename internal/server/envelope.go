package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lattice-db/lattice/internal/blob"
	"github.com/lattice-db/lattice/internal/catalog"
	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/locks"
	"github.com/lattice-db/lattice/internal/search"
	"github.com/lattice-db/lattice/internal/storage"
)

// envelope is the uniform response wrapper for every JSON endpoint.
type envelope struct {
	Success          bool   `json:"success"`
	StatusCode       int    `json:"statusCode"`
	Data             any    `json:"data,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	TimestampUTC     string `json:"timestampUtc"`
	GUID             string `json:"guid"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// lockDetails is attached to 409 responses caused by a held object lock.
type lockDetails struct {
	CollectionID     string `json:"collectionId"`
	DocumentName     string `json:"documentName"`
	LockedByHostname string `json:"lockedByHostname"`
	LockCreatedUTC   string `json:"lockCreatedUtc"`
	HeldForMs        int64  `json:"heldForMs"`
}

// validationDetails is attached to 422 responses.
type validationDetails struct {
	Errors any `json:"errors"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, started time.Time, status int, data any) {
	s.writeEnvelope(w, r, envelope{
		Success:          true,
		StatusCode:       status,
		Data:             data,
		TimestampUTC:     time.Now().UTC().Format(time.RFC3339Nano),
		GUID:             idgen.New("req"),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	})
}

// respondWarnings is the soft-validation success shape: the operation
// succeeded, the warnings ride along in errorMessage territory.
func (s *Server) respondWarnings(w http.ResponseWriter, r *http.Request, started time.Time, status int, data any, warning string) {
	s.writeEnvelope(w, r, envelope{
		Success:          true,
		StatusCode:       status,
		Data:             data,
		ErrorMessage:     warning,
		TimestampUTC:     time.Now().UTC().Format(time.RFC3339Nano),
		GUID:             idgen.New("req"),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, started time.Time, err error) {
	status, data := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeEnvelope(w, r, envelope{
		Success:          false,
		StatusCode:       status,
		Data:             data,
		ErrorMessage:     err.Error(),
		TimestampUTC:     time.Now().UTC().Format(time.RFC3339Nano),
		GUID:             idgen.New("req"),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	})
}

// classify maps service errors onto HTTP status codes, with structured
// detail payloads for lock contention and validation failures.
func classify(err error) (int, any) {
	var locked *locks.LockedError
	if errors.As(err, &locked) {
		return http.StatusConflict, lockDetails{
			CollectionID:     locked.CollectionID,
			DocumentName:     locked.DocumentName,
			LockedByHostname: locked.Hostname,
			LockCreatedUTC:   locked.CreatedUTC.UTC().Format(time.RFC3339Nano),
			HeldForMs:        locked.HeldFor.Milliseconds(),
		}
	}
	var invalid *ingest.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity, validationDetails{Errors: invalid.Issues}
	}
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, nil
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, nil
	case errors.Is(err, flatten.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidRequest),
		errors.Is(err, search.ErrInvalidExpression),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, nil
	default:
		return http.StatusInternalServerError, nil
	}
}

func (s *Server) writeEnvelope(w http.ResponseWriter, r *http.Request, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.log.Error("failed to write response", "path", r.URL.Path, "error", err)
	}
}

// discardLogger keeps constructor call sites tidy.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
