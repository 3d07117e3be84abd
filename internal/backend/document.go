package backend

import (
	"fmt"

	"github.com/tamzrod/superscore/internal/model"
)

// EncodeRoot serializes a whole tree for the persistent backends.
func EncodeRoot(root *model.Root) ([]byte, error) {
	data, err := model.MarshalEntry(root)
	if err != nil {
		return nil, fmt.Errorf("%w: encode root: %v", ErrBackend, err)
	}
	return data, nil
}

// DecodeRoot is the inverse of EncodeRoot. Empty input yields an empty root.
func DecodeRoot(data []byte) (*model.Root, error) {
	if len(data) == 0 {
		return model.NewRoot(), nil
	}
	e, err := model.UnmarshalEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode root: %v", ErrBackend, err)
	}
	root, ok := e.(*model.Root)
	if !ok {
		return nil, fmt.Errorf("%w: stored document is a %s, not a Root", ErrBackend, e.Kind())
	}
	return root, nil
}

// EncodeEntries serializes top-level entries one by one, for backends that
// store each under its own key.
func EncodeEntries(entries []model.Entry) ([][]byte, error) {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := model.MarshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %v", ErrBackend, e.EntryID(), err)
		}
		out[i] = b
	}
	return out, nil
}

// DecodeEntries rebuilds a root from per-entry documents in order.
func DecodeEntries(docs [][]byte) (*model.Root, error) {
	root := model.NewRoot()
	for _, d := range docs {
		e, err := model.UnmarshalEntry(d)
		if err != nil {
			return nil, fmt.Errorf("%w: decode entry: %v", ErrBackend, err)
		}
		root.Entries = append(root.Entries, e)
	}
	return root, nil
}
