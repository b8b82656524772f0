package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-db/lattice/internal/catalog"
	"github.com/lattice-db/lattice/internal/config"
	"github.com/lattice-db/lattice/internal/index"
	"github.com/lattice-db/lattice/internal/ingest"
	"github.com/lattice-db/lattice/internal/locks"
	"github.com/lattice-db/lattice/internal/search"
	"github.com/lattice-db/lattice/internal/server"
	"github.com/lattice-db/lattice/internal/storage/factory"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	repo, err := factory.Open(ctx, factory.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.DatabasePath(),
		DSN:     cfg.Storage.DSN,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	indexes := index.NewManager(repo, log)
	var locker *locks.Manager
	if cfg.Locking.Enabled {
		locker = locks.NewManager(repo, log, cfg.Locking.TTL)
	}
	docs := ingest.NewService(repo, indexes, locker, log)
	srv := server.New(
		catalog.NewService(repo, docs, log),
		docs,
		search.NewService(repo, log),
		index.NewRebuilder(repo, indexes, log, cfg.Search.RebuildWorkers),
		log,
		server.Options{
			MaxResults:     cfg.Search.MaxResults,
			CollectionsDir: cfg.CollectionsDir(),
		},
	)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", cfg.Listen, "backend", cfg.Storage.Backend,
			"locking", cfg.Locking.Enabled, "version", version)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process logger from the log section: text or json
// handler at the configured level.
func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
