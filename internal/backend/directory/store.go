// Package directory stores each top-level entry in its own JSON file,
// with an index file recording the root order.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/filestore"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/model"
)

const (
	indexFile = "index.json"
	entryExt  = ".json"
)

var _ backend.Backend = (*Store)(nil)

// Store persists the in-memory tree as one file per top-level entry.
// Only files whose content changed are rewritten.
type Store struct {
	*memory.Store
	mu      sync.Mutex
	dir     string
	written map[uuid.UUID][]byte
	logger  *slog.Logger
}

// Open loads dir, creating it if needed.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: directory: path required", backend.ErrBackend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", "directory", "path", dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: directory: create %s: %v", backend.ErrBackend, dir, err)
	}

	s := &Store{dir: dir, written: make(map[uuid.UUID][]byte), logger: logger}
	root, err := s.load()
	if err != nil {
		return nil, err
	}
	s.Store = memory.New(
		memory.WithRoot(root),
		memory.WithCommit(s.persist),
		memory.WithLogger(logger),
	)
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) entryPath(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+entryExt)
}

func (s *Store) load() (*model.Root, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return model.NewRoot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: directory: read index: %v", backend.ErrBackend, err)
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: directory: decode index: %v", backend.ErrBackend, err)
	}
	docs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(s.entryPath(id))
		if err != nil {
			return nil, fmt.Errorf("%w: directory: read %s: %v", backend.ErrBackend, id, err)
		}
		s.written[id] = data
		docs = append(docs, data)
	}
	return backend.DecodeEntries(docs)
}

func (s *Store) persist(_ context.Context, root *model.Root) error {
	docs, err := backend.EncodeEntries(root.Entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, len(root.Entries))
	keep := make(map[uuid.UUID]bool, len(root.Entries))
	for i, e := range root.Entries {
		id := e.EntryID()
		ids[i] = id
		keep[id] = true
		if bytes.Equal(s.written[id], docs[i]) {
			continue
		}
		if err := filestore.WriteFile(s.entryPath(id), docs[i]); err != nil {
			return err
		}
		s.written[id] = docs[i]
	}

	index, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := filestore.WriteFile(filepath.Join(s.dir, indexFile), index); err != nil {
		return err
	}

	// the index no longer names these, so a failed removal only leaves garbage
	for id := range s.written {
		if keep[id] {
			continue
		}
		if err := os.Remove(s.entryPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove stale entry file", "id", id, "err", err)
			continue
		}
		delete(s.written, id)
	}
	return nil
}
