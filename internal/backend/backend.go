// Package backend defines the storage contract shared by every persistence
// implementation, together with the search operators they all honour.
package backend

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/model"
)

var (
	// ErrEntryNotFound is returned when no entry carries the requested id.
	ErrEntryNotFound = errors.New("backend: entry not found")
	// ErrEntryAlreadyExists is returned when saving an id that is present.
	ErrEntryAlreadyExists = errors.New("backend: entry already exists")
	// ErrBackend covers content mismatches and backend-internal failures.
	ErrBackend = errors.New("backend: error")
	// ErrConfiguration reports an unusable search term.
	ErrConfiguration = errors.New("backend: configuration error")
)

// Backend is the persistence and search boundary consumed by the client.
//
// Save appends to the Root. Update and Delete act on every occurrence of
// the id anywhere in the tree. Search yields entries matching every term;
// the sequence walks the store on each range and may be stopped early.
type Backend interface {
	Get(ctx context.Context, id uuid.UUID) (model.Entry, error)
	Save(ctx context.Context, e model.Entry) error
	Update(ctx context.Context, e model.Entry) error
	Delete(ctx context.Context, e model.Entry) error
	Search(ctx context.Context, terms ...SearchTerm) (iter.Seq[model.Entry], error)
	Root(ctx context.Context) (*model.Root, error)
}

// Collect drains a search into a slice.
func Collect(ctx context.Context, b Backend, terms ...SearchTerm) ([]model.Entry, error) {
	seq, err := b.Search(ctx, terms...)
	if err != nil {
		return nil, err
	}
	var out []model.Entry
	for e := range seq {
		out = append(out, e)
	}
	return out, nil
}
