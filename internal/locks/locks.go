// Package locks provides table-backed named locks over (collection, document
// name) pairs. A lock is a single row with a unique constraint; whoever
// inserts the row holds the lock. Locks expire logically after a TTL so a
// crashed holder cannot wedge a name forever.
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lattice-db/lattice/internal/idgen"
	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// DefaultTTL is the lock expiry used when the caller does not configure one.
const DefaultTTL = 30 * time.Second

// LockedError reports that another holder owns the lock.
type LockedError struct {
	CollectionID string
	DocumentName string
	Hostname     string
	CreatedUTC   time.Time
	HeldFor      time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("document %q in collection %s is locked by %s (held %s)",
		e.DocumentName, e.CollectionID, e.Hostname, e.HeldFor.Round(time.Millisecond))
}

// Manager acquires and releases object locks through the repository.
type Manager struct {
	repo     storage.Repository
	log      *slog.Logger
	hostname string
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns a lock manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(repo storage.Repository, log *slog.Logger, ttl time.Duration) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Manager{repo: repo, log: log, hostname: hostname, ttl: ttl, now: time.Now}
}

// TTL returns the configured lock expiry.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Acquire claims the lock for (collectionID, documentName) and returns it.
// An expired lock left by a dead holder is reclaimed. Returns *LockedError
// when another live holder owns the name.
func (m *Manager) Acquire(ctx context.Context, collectionID, documentName string) (*types.ObjectLock, error) {
	var acquired *types.ObjectLock

	// Insert can race reclamation by another host; one short retry round
	// covers the delete-then-insert window.
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewConstantBackOff(50*time.Millisecond), 3), ctx)

	op := func() error {
		lock, err := m.tryAcquire(ctx, collectionID, documentName)
		if err != nil {
			var locked *LockedError
			if errors.As(err, &locked) {
				return backoff.Permanent(err)
			}
			if errors.Is(err, storage.ErrConflict) {
				return err // raced; retry
			}
			return backoff.Permanent(err)
		}
		acquired = lock
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return acquired, nil
}

func (m *Manager) tryAcquire(ctx context.Context, collectionID, documentName string) (*types.ObjectLock, error) {
	existing, err := m.repo.GetObjectLock(ctx, collectionID, documentName)
	switch {
	case err == nil:
		now := m.now().UTC()
		if !existing.Expired(now, m.ttl) {
			return nil, &LockedError{
				CollectionID: collectionID,
				DocumentName: documentName,
				Hostname:     existing.Hostname,
				CreatedUTC:   existing.CreatedUTC,
				HeldFor:      now.Sub(existing.CreatedUTC),
			}
		}
		m.log.Warn("reclaiming expired lock",
			"collection", collectionID,
			"document", documentName,
			"holder", existing.Hostname,
			"age", now.Sub(existing.CreatedUTC))
		if err := m.repo.DeleteObjectLock(ctx, existing.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("reclaim expired lock: %w", err)
		}
	case errors.Is(err, storage.ErrNotFound):
		// free to claim
	default:
		return nil, fmt.Errorf("check lock: %w", err)
	}

	lock := &types.ObjectLock{
		ID:           idgen.NewObjectLockID(),
		CollectionID: collectionID,
		DocumentName: documentName,
		Hostname:     m.hostname,
		CreatedUTC:   m.now().UTC(),
	}
	if err := m.repo.CreateObjectLock(ctx, lock); err != nil {
		return nil, err
	}
	return lock, nil
}

// Release removes a held lock. Failures are logged, not returned: the lock
// expires on its own, so a failed release only delays the next writer.
func (m *Manager) Release(ctx context.Context, lock *types.ObjectLock) {
	if lock == nil {
		return
	}
	if err := m.repo.DeleteObjectLock(ctx, lock.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Reclaimed by another host after expiry.
			m.log.Warn("lock already released",
				"collection", lock.CollectionID, "document", lock.DocumentName)
			return
		}
		m.log.Error("failed to release lock",
			"collection", lock.CollectionID, "document", lock.DocumentName, "error", err)
	}
}
