// Package memory provides the in-memory implementation of the storage
// contract. The persistent backends embed it and snapshot its Root after
// every successful mutation.
package memory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/model"
)

var _ backend.Backend = (*Store)(nil)

// CommitFunc persists a candidate root. A failed commit leaves the store
// unchanged.
type CommitFunc func(ctx context.Context, root *model.Root) error

// Store keeps the entry tree in memory.
//
// Mutations are copy-on-write: a mutation clones the current root, edits
// the clone, commits it and swaps it in. Readers and search iterators work
// on whichever root was current when they started and never block writers.
type Store struct {
	mu     sync.Mutex // serializes writers
	root   *model.Root
	commit CommitFunc
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRoot seeds the store with an existing root.
func WithRoot(root *model.Root) Option {
	return func(s *Store) {
		if root != nil {
			s.root = root
		}
	}
}

// WithEntries seeds a fresh root with top-level entries.
func WithEntries(entries ...model.Entry) Option {
	return func(s *Store) {
		for _, e := range entries {
			s.root.Entries = append(s.root.Entries, model.Clone(e))
		}
	}
}

// WithCommit installs the persistence hook run before each swap.
func WithCommit(fn CommitFunc) Option {
	return func(s *Store) { s.commit = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store. Without options the root is empty.
func New(opts ...Option) *Store {
	s := &Store{root: model.NewRoot(), logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) current() *model.Root {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Get returns a copy of the first entry with id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (model.Entry, error) {
	e := find(s.current(), id)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrEntryNotFound, id)
	}
	return model.Clone(e), nil
}

// Save appends e to the root.
func (s *Store) Save(ctx context.Context, e model.Entry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	if err := checkDistinct(e); err != nil {
		return err
	}
	return s.mutate(ctx, "save", func(root *model.Root) error {
		if find(root, e.EntryID()) != nil {
			return fmt.Errorf("%w: %s", backend.ErrEntryAlreadyExists, e.EntryID())
		}
		// descendants may already be stored, but only with identical content
		var conflict error
		model.Walk(e, func(d model.Entry) bool {
			if existing := find(root, d.EntryID()); existing != nil && !model.Equal(existing, d) {
				conflict = fmt.Errorf("%w: %s (child of %s)", backend.ErrEntryAlreadyExists, d.EntryID(), e.EntryID())
				return false
			}
			return true
		})
		if conflict != nil {
			return conflict
		}
		root.Entries = append(root.Entries, model.Clone(e))
		return nil
	})
}

// Update replaces every stored occurrence of e's id with e.
func (s *Store) Update(ctx context.Context, e model.Entry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	if err := checkDistinct(e); err != nil {
		return err
	}
	return s.mutate(ctx, "update", func(root *model.Root) error {
		existing := find(root, e.EntryID())
		if existing == nil {
			return fmt.Errorf("%w: %s", backend.ErrEntryNotFound, e.EntryID())
		}
		if existing.Kind() != e.Kind() {
			return fmt.Errorf("%w: update %s changes kind %s to %s", backend.ErrBackend, e.EntryID(), existing.Kind(), e.Kind())
		}
		root.Entries = rewrite(root.Entries, e.EntryID(), e)
		return nil
	})
}

// Delete removes every occurrence of e's id. The stored entry must match e.
func (s *Store) Delete(ctx context.Context, e model.Entry) error {
	if e == nil {
		return fmt.Errorf("%w: delete nil entry", backend.ErrBackend)
	}
	return s.mutate(ctx, "delete", func(root *model.Root) error {
		existing := find(root, e.EntryID())
		if existing == nil {
			return fmt.Errorf("%w: %s", backend.ErrEntryNotFound, e.EntryID())
		}
		if !model.Equal(existing, e) {
			return fmt.Errorf("%w: stored entry %s differs from the one requested for deletion", backend.ErrBackend, e.EntryID())
		}
		root.Entries = rewrite(root.Entries, e.EntryID(), nil)
		return nil
	})
}

// Search yields copies of entries matching every term, each id once,
// in depth-first order from the root.
func (s *Store) Search(ctx context.Context, terms ...backend.SearchTerm) (iter.Seq[model.Entry], error) {
	f, err := backend.Compile(terms...)
	if err != nil {
		return nil, err
	}
	return func(yield func(model.Entry) bool) {
		root := s.current()
		seen := make(map[uuid.UUID]bool)
		for _, top := range root.Entries {
			cont := model.Walk(top, func(e model.Entry) bool {
				if ctx.Err() != nil {
					return false
				}
				id := e.EntryID()
				if seen[id] {
					return true
				}
				seen[id] = true
				if !f.Match(e) {
					return true
				}
				return yield(model.Clone(e))
			})
			if !cont {
				return
			}
		}
	}, nil
}

// Root returns a copy of the root.
func (s *Store) Root(ctx context.Context) (*model.Root, error) {
	return model.Clone(s.current()).(*model.Root), nil
}

func (s *Store) mutate(ctx context.Context, op string, fn func(*model.Root) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.Clone(s.root).(*model.Root)
	if err := fn(next); err != nil {
		return err
	}
	if s.commit != nil {
		if err := s.commit(ctx, next); err != nil {
			s.logger.Error("backend commit failed", "op", op, "err", err)
			return fmt.Errorf("%w: commit %s: %v", backend.ErrBackend, op, err)
		}
	}
	s.root = next
	return nil
}

func checkEntry(e model.Entry) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", backend.ErrBackend)
	}
	if e.Kind() == model.KindRoot {
		return fmt.Errorf("%w: the root cannot be stored as an entry", backend.ErrBackend)
	}
	if err := model.Validate(e); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrBackend, err)
	}
	return nil
}

// checkDistinct rejects a subtree that reuses one id for different
// content. The same entry reachable twice is allowed.
func checkDistinct(e model.Entry) error {
	seen := make(map[uuid.UUID]model.Entry)
	var conflict error
	model.Walk(e, func(d model.Entry) bool {
		id := d.EntryID()
		if prev, ok := seen[id]; ok {
			if !model.Equal(prev, d) {
				conflict = fmt.Errorf("%w: %s appears twice in %s with different content", backend.ErrEntryAlreadyExists, id, e.EntryID())
				return false
			}
			return true
		}
		seen[id] = d
		return true
	})
	return conflict
}

func find(root *model.Root, id uuid.UUID) model.Entry {
	for _, top := range root.Entries {
		if e := model.Find(top, id); e != nil {
			return e
		}
	}
	return nil
}

// rewrite replaces (repl != nil) or removes (repl == nil) every occurrence
// of id in list and below it. list is owned by the caller's clone.
func rewrite(list []model.Entry, id uuid.UUID, repl model.Entry) []model.Entry {
	if list == nil {
		return nil
	}
	out := make([]model.Entry, 0, len(list))
	for _, e := range list {
		if e.EntryID() == id {
			if repl != nil {
				out = append(out, model.Clone(repl))
			}
			continue
		}
		rewriteInside(e, id, repl)
		out = append(out, e)
	}
	return out
}

func rewriteInside(e model.Entry, id uuid.UUID, repl model.Entry) {
	switch t := e.(type) {
	case *model.Collection:
		t.Children = rewrite(t.Children, id, repl)
	case *model.Snapshot:
		t.Children = rewrite(t.Children, id, repl)
	case *model.Parameter:
		if t.Readback == nil {
			return
		}
		if t.Readback.ID != id {
			rewriteInside(t.Readback, id, repl)
			return
		}
		t.Readback = nil
		if p, ok := repl.(*model.Parameter); ok {
			t.Readback = model.Clone(p).(*model.Parameter)
		}
	case *model.Setpoint:
		if t.Readback == nil || t.Readback.ID != id {
			return
		}
		t.Readback = nil
		if r, ok := repl.(*model.Readback); ok {
			t.Readback = model.Clone(r).(*model.Readback)
		}
	}
}
