// Package filestore keeps the whole entry tree in one JSON document on disk.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/model"
)

var _ backend.Backend = (*Store)(nil)

// Store persists the in-memory tree to a single file.
// The file is rewritten through a temporary file and rename after every
// successful mutation, so readers of the path never see a partial document.
type Store struct {
	*memory.Store
	mu   sync.Mutex
	path string
}

// Open loads path, or starts empty if the file does not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: filestore: path required", backend.ErrBackend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: filestore: create dirs: %v", backend.ErrBackend, err)
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: filestore: read %s: %v", backend.ErrBackend, path, err)
	}
	root, err := backend.DecodeRoot(data)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.Store = memory.New(
		memory.WithRoot(root),
		memory.WithCommit(s.persist),
		memory.WithLogger(logger.With("backend", "filestore", "path", path)),
	)
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) persist(_ context.Context, root *model.Root) error {
	data, err := backend.EncodeRoot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteFile(s.path, data)
}

// WriteFile replaces path with data through a temporary file and rename.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
