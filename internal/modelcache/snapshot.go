package modelcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"stockcast/internal/model"
)

// ErrNoSnapshot is returned by Load when no snapshot exists for a product.
var ErrNoSnapshot = errors.New("no snapshot")

// SnapshotStore is the durable tier holding one serialised model per product.
type SnapshotStore interface {
	Exists(ctx context.Context, productID string) (bool, error)
	Load(ctx context.Context, productID string) (model.Model, error)
	Save(ctx context.Context, productID string, m model.Model) error
	Delete(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
	Close() error
}

const snapshotSuffix = "_model.json"

// FileStore keeps snapshots as JSON files in a directory.
type FileStore struct {
	dir string
}

var _ SnapshotStore = &FileStore{} // Compile-time check

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(productID string) string {
	return filepath.Join(s.dir, url.PathEscape(productID)+snapshotSuffix)
}

// Exists implements SnapshotStore.
func (s *FileStore) Exists(_ context.Context, productID string) (bool, error) {
	_, err := os.Stat(s.path(productID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load implements SnapshotStore.
func (s *FileStore) Load(_ context.Context, productID string) (model.Model, error) {
	data, err := os.ReadFile(s.path(productID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return model.Decode(data)
}

// Save implements SnapshotStore. The write goes through a temp file and an atomic rename, so
// concurrent writers from several processes end as last-writer-wins without torn files.
func (s *FileStore) Save(_ context.Context, productID string, m model.Model) error {
	data, err := model.Encode(m)
	if err != nil {
		return err
	}

	path := s.path(productID)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Delete implements SnapshotStore.
func (s *FileStore) Delete(_ context.Context, productID string) error {
	if err := os.Remove(s.path(productID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear implements SnapshotStore.
func (s *FileStore) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Close implements SnapshotStore.
func (s *FileStore) Close() error { return nil }
