// Package factory creates repository backends based on configuration.
//
// Backends register themselves from init functions in this package, so
// importing factory is enough to make every supported database available.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lattice-db/lattice/internal/storage"
)

// Options configures how a repository backend is opened.
type Options struct {
	// Backend selects the registered backend ("sqlite", "postgres",
	// "mysql", "mssql"). Empty defaults to sqlite.
	Backend string
	// Path is the database file path for the embedded backend.
	Path string
	// DSN is the connection string for server backends.
	DSN string
	// Logger receives repository diagnostics; nil discards them.
	Logger *slog.Logger
	// SkipMigrate leaves schema creation to the caller. Used by tests that
	// exercise Migrate explicitly.
	SkipMigrate bool
}

// Repository aliases the storage contract to keep registration signatures
// short.
type Repository = storage.Repository

// BackendFactory opens one concrete repository.
type BackendFactory func(ctx context.Context, opts Options) (Repository, error)

var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a repository backend factory.
func RegisterBackend(name string, factory BackendFactory) {
	backendRegistry[name] = factory
}

// Open creates a repository backend and runs startup migration.
func Open(ctx context.Context, opts Options) (Repository, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "sqlite"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	factory, ok := backendRegistry[backend]
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, supportedBackends())
	}

	repo, err := factory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", backend, err)
	}
	if !opts.SkipMigrate {
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("migrating %s backend: %w", backend, err)
		}
	}
	return repo, nil
}

func supportedBackends() string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
