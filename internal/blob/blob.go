// Package blob stores document bodies as flat files, one file per document
// ID, under a per-collection directory. The relational row is authoritative
// for metadata; files here hold only the raw JSON bytes.
package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no blob exists for the requested ID.
var ErrNotFound = errors.New("blob not found")

// ErrExists is returned when a blob for the ID already exists. Documents are
// immutable, so a second write for the same ID is always a caller bug.
var ErrExists = errors.New("blob already exists")

// DirectoryStore reads and writes blobs under a single directory.
type DirectoryStore struct {
	dir string
}

// NewDirectoryStore creates the directory if needed and returns a store
// rooted at it.
func NewDirectoryStore(dir string) (*DirectoryStore, error) {
	if dir == "" {
		return nil, errors.New("blob directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &DirectoryStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *DirectoryStore) Dir() string { return s.dir }

// Path returns the file path a blob with the given ID lives at.
func (s *DirectoryStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Write persists content under id. The file is created exclusively and
// synced to disk before returning, so a successful Write means the bytes
// are durable. Fails with ErrExists if the ID is already taken.
func (s *DirectoryStore) Write(id string, content []byte) error {
	if id == "" {
		return errors.New("blob id must not be empty")
	}
	path := s.Path(id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("write blob %s: %w", id, ErrExists)
		}
		return fmt.Errorf("write blob %s: %w", id, err)
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write blob %s: %w", id, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("sync blob %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close blob %s: %w", id, err)
	}
	return s.syncDir()
}

// Read returns the stored bytes for id.
func (s *DirectoryStore) Read(id string) ([]byte, error) {
	content, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read blob %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return content, nil
}

// Delete removes the blob for id. Deleting a missing blob is not an error;
// delete cascades must be idempotent.
func (s *DirectoryStore) Delete(id string) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// syncDir fsyncs the directory so a freshly created entry survives a crash.
// Some platforms do not support syncing directories; that is not fatal.
func (s *DirectoryStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return nil
	}
	defer func() { _ = d.Close() }()
	_ = d.Sync()
	return nil
}
