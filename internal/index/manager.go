// Package index maintains the dynamic per-key index tables: one relational
// table per distinct document key, named "index_" plus the MD5 of the key,
// holding one row per flattened leaf. The key <-> table bijection lives in
// the mappings table and is shared by every collection.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/hashing"
	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// Manager creates and removes index tables and their entries.
type Manager struct {
	repo storage.Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewManager returns an index table manager.
func NewManager(repo storage.Repository, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{repo: repo, log: log, now: time.Now}
}

// Ensure returns the mapping for key, creating the mapping row and the
// backing table when the key has never been indexed. Safe under concurrent
// first-writers: the loser of the mapping insert re-reads the winner's row.
func (m *Manager) Ensure(ctx context.Context, key string) (*types.IndexTableMapping, error) {
	if key == "" {
		return nil, errors.New("index key must not be empty")
	}

	var mapping *types.IndexTableMapping
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(25*time.Millisecond), 3), ctx)

	op := func() error {
		existing, err := m.repo.GetIndexTableMapping(ctx, key)
		switch {
		case err == nil:
			mapping = existing
			return nil
		case errors.Is(err, storage.ErrNotFound):
			// fall through to create
		default:
			return backoff.Permanent(err)
		}

		candidate := &types.IndexTableMapping{
			ID:         idgen.NewIndexTableMappingID(),
			Key:        key,
			TableName:  hashing.IndexTableName(key),
			CreatedUTC: m.now().UTC(),
		}
		if err := m.repo.CreateIndexTableMapping(ctx, candidate); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return err // another writer won; retry re-reads their row
			}
			return backoff.Permanent(err)
		}
		m.log.Info("created index table mapping", "key", key, "table", candidate.TableName)
		mapping = candidate
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("ensure index table for key %q: %w", key, err)
	}

	// Table DDL is idempotent, so issuing it after losing the mapping race
	// is harmless.
	if err := m.repo.CreateIndexTable(ctx, mapping.TableName); err != nil {
		return nil, fmt.Errorf("ensure index table for key %q: %w", key, err)
	}
	return mapping, nil
}

// IndexDocument writes the flattened projection of one document into the
// index tables for the given keys. A nil keep set indexes every key.
func (m *Manager) IndexDocument(ctx context.Context, documentID string, values []flatten.FlattenedValue, keep map[string]bool) error {
	byKey := make(map[string][]*types.IndexEntry)
	now := m.now().UTC()
	for _, v := range values {
		if keep != nil && !keep[v.Key] {
			continue
		}
		byKey[v.Key] = append(byKey[v.Key], &types.IndexEntry{
			ID:         idgen.NewIndexEntryID(),
			DocumentID: documentID,
			Position:   v.Position,
			Value:      v.Value,
			CreatedUTC: now,
		})
	}

	for key, entries := range byKey {
		mapping, err := m.Ensure(ctx, key)
		if err != nil {
			return err
		}
		if err := m.repo.InsertIndexEntries(ctx, mapping.TableName, entries); err != nil {
			return fmt.Errorf("index document %s key %q: %w", documentID, key, err)
		}
	}
	return nil
}

// DeindexDocument removes the document's rows from every index table.
func (m *Manager) DeindexDocument(ctx context.Context, documentID string) error {
	mappings, err := m.repo.ListIndexTableMappings(ctx)
	if err != nil {
		return fmt.Errorf("deindex document %s: %w", documentID, err)
	}
	for _, mapping := range mappings {
		if err := m.repo.DeleteIndexEntriesByDocument(ctx, mapping.TableName, documentID); err != nil {
			return fmt.Errorf("deindex document %s: %w", documentID, err)
		}
	}
	return nil
}

// DropIfEmpty removes the mapping and backing table for key when the table
// holds no rows from any collection. Tables are shared across collections,
// so one collection dropping its index must not destroy another's entries.
func (m *Manager) DropIfEmpty(ctx context.Context, key string) (bool, error) {
	mapping, err := m.repo.GetIndexTableMapping(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("drop index table for key %q: %w", key, err)
	}

	count, err := m.repo.CountIndexEntries(ctx, mapping.TableName)
	if err != nil {
		return false, fmt.Errorf("drop index table for key %q: %w", key, err)
	}
	if count > 0 {
		return false, nil
	}

	err = m.repo.WithTx(ctx, func(tx storage.Repository) error {
		if err := tx.DeleteIndexTableMapping(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return tx.DropIndexTable(ctx, mapping.TableName)
	})
	if err != nil {
		return false, fmt.Errorf("drop index table for key %q: %w", key, err)
	}
	m.log.Info("dropped empty index table", "key", key, "table", mapping.TableName)
	return true, nil
}
