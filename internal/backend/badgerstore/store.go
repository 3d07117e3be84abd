// Package badgerstore persists the entry tree in an embedded Badger
// key-value database: one key per top-level entry plus an order index.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/model"
)

var (
	indexKey    = []byte("superscore/index")
	entryPrefix = []byte("superscore/entry/")
)

var _ backend.Backend = (*Store)(nil)

// Config selects where the database lives.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM, for tests.
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's own log lines. Nil silences them.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store snapshots the in-memory tree into Badger after every successful
// mutation, in one transaction. Unchanged entries are not rewritten.
type Store struct {
	*memory.Store
	db        *badger.DB
	path      string
	mu        sync.Mutex
	written   map[uuid.UUID][]byte
	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("%w: badgerstore: path required", backend.ErrBackend)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("%w: badgerstore: create %s: %v", backend.ErrBackend, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := slog.Default()
	if cfg.Logger != nil {
		logger = cfg.Logger
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: badgerstore: open: %v", backend.ErrBackend, err)
	}

	s := &Store{db: db, path: cfg.Path, written: make(map[uuid.UUID][]byte)}
	root, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.New(
		memory.WithRoot(root),
		memory.WithCommit(s.persist),
		memory.WithLogger(logger.With("backend", "badger", "path", cfg.Path)),
	)
	return s, nil
}

// Path returns the database directory, empty when in memory.
func (s *Store) Path() string { return s.path }

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

func entryKey(id uuid.UUID) []byte {
	return append(bytes.Clone(entryPrefix), id.String()...)
}

func (s *Store) load() (*model.Root, error) {
	var docs [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var ids []uuid.UUID
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("decode index: %w", err)
		}
		for _, id := range ids {
			it, err := txn.Get(entryKey(id))
			if err != nil {
				return fmt.Errorf("entry %s: %w", id, err)
			}
			doc, err := it.ValueCopy(nil)
			if err != nil {
				return err
			}
			s.written[id] = doc
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: badgerstore: load: %v", backend.ErrBackend, err)
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
	keep := make(map[uuid.UUID]bool, len(ids))
	changed := make(map[uuid.UUID][]byte)
	for i, e := range root.Entries {
		id := e.EntryID()
		ids[i] = id
		keep[id] = true
		if !bytes.Equal(s.written[id], docs[i]) {
			changed[id] = docs[i]
		}
	}
	index, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for id, doc := range changed {
			if err := txn.Set(entryKey(id), doc); err != nil {
				return err
			}
		}
		for id := range s.written {
			if keep[id] {
				continue
			}
			if err := txn.Delete(entryKey(id)); err != nil {
				return err
			}
		}
		return txn.Set(indexKey, index)
	})
	if err != nil {
		return err
	}

	for id := range s.written {
		if !keep[id] {
			delete(s.written, id)
		}
	}
	for id, doc := range changed {
		s.written[id] = doc
	}
	return nil
}
