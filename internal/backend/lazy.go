package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/model"
)

// LazyEntry is a reference to a stored entry that is fetched on first
// Resolve. Once a fetch returns the entry or a storage error, later calls
// return that same result. A fetch cut short by its context is not kept,
// so the next Resolve fetches again.
type LazyEntry struct {
	id uuid.UUID
	b  Backend

	mu       sync.Mutex
	resolved atomic.Bool
	entry    model.Entry
	err      error
}

// Lazy returns an unresolved reference to id in b.
func Lazy(b Backend, id uuid.UUID) *LazyEntry {
	return &LazyEntry{id: id, b: b}
}

// ID is available without resolving.
func (l *LazyEntry) ID() uuid.UUID { return l.id }

// Resolved reports whether the fetch has already happened.
func (l *LazyEntry) Resolved() bool { return l.resolved.Load() }

// Resolve fetches the entry, failing with ErrEntryNotFound if the record
// no longer exists.
func (l *LazyEntry) Resolve(ctx context.Context) (model.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolved.Load() {
		return l.entry, l.err
	}
	e, err := l.b.Get(ctx, l.id)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}
	l.entry, l.err = e, err
	l.resolved.Store(true)
	return e, err
}
