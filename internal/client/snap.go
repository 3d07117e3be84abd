package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
)

// Snap reads every Parameter below e and returns a Snapshot with the same
// shape. e is a Collection, or a lone Parameter which yields a one-child
// Snapshot.
//
// All primary addresses are read in one batch. Readbacks linked to
// writable Parameters are read in a second batch issued only after the
// first has returned. A leaf whose read fails carries null data; its
// siblings are unaffected. The Snapshot is not saved.
func (c *Client) Snap(ctx context.Context, e model.Entry) (_ *model.Snapshot, err error) {
	ctx, span := c.start(ctx, "client.Snap", e)
	defer func() { endSpan(span, err) }()

	var title, description string
	switch t := e.(type) {
	case *model.Collection:
		title, description = t.Title, t.Description
	case *model.Parameter:
		title, description = t.Address, t.Description
	default:
		return nil, fmt.Errorf("%w: snap %s", ErrEntryKind, kindOf(e))
	}

	var s snapper
	s.collect(e)
	span.SetAttributes(
		attribute.Int("snap.leaves", len(s.leaves)),
		attribute.Int("snap.readbacks", len(s.readbacks)),
	)

	s.primary = c.cl.Get(ctx, addresses(s.leaves)...)
	if len(s.readbacks) > 0 {
		s.secondary = c.cl.Get(ctx, addresses(s.readbacks)...)
	}

	snap := model.NewSnapshot(title, description)
	if p, ok := e.(*model.Parameter); ok {
		snap.Children = []model.Entry{s.leaf(p)}
	} else {
		snap.Children = s.children(e.(*model.Collection))
	}

	failed := 0
	for _, batch := range []struct {
		params  []*model.Parameter
		results []control.Result
	}{{s.leaves, s.primary}, {s.readbacks, s.secondary}} {
		for i, r := range batch.results {
			if r.Err != nil {
				failed++
				c.logger.Warn("snap read failed", "address", batch.params[i].Address, "err", r.Err)
			}
		}
	}
	span.SetAttributes(attribute.Int("snap.failed", failed))
	return snap, nil
}

// snapper holds the flattened reads of one snap. collect and the build
// methods walk the tree in the same order, so leaves are consumed by
// position.
type snapper struct {
	leaves    []*model.Parameter
	readbacks []*model.Parameter

	primary   []control.Result
	secondary []control.Result
	nextLeaf  int
	nextRB    int
}

func (s *snapper) collect(e model.Entry) {
	switch t := e.(type) {
	case *model.Parameter:
		s.leaves = append(s.leaves, t)
		if !t.ReadOnly && t.Readback != nil {
			s.readbacks = append(s.readbacks, t.Readback)
		}
	case *model.Collection:
		for _, ch := range t.Children {
			s.collect(ch)
		}
	}
}

func (s *snapper) children(coll *model.Collection) []model.Entry {
	out := make([]model.Entry, 0, len(coll.Children))
	for _, ch := range coll.Children {
		switch t := ch.(type) {
		case *model.Parameter:
			out = append(out, s.leaf(t))
		case *model.Collection:
			sub := model.NewSnapshot(t.Title, t.Description)
			sub.Children = s.children(t)
			out = append(out, sub)
		}
	}
	return out
}

func (s *snapper) leaf(p *model.Parameter) model.Entry {
	data := valueOf(s.primary[s.nextLeaf])
	s.nextLeaf++
	if p.ReadOnly {
		return model.ReadbackFromParameter(p, data)
	}
	sp := model.SetpointFromParameter(p, data)
	if p.Readback != nil {
		sp.Readback = model.ReadbackFromParameter(p.Readback, valueOf(s.secondary[s.nextRB]))
		s.nextRB++
	}
	return sp
}

func valueOf(r control.Result) model.Value {
	if r.Err != nil {
		return model.Null()
	}
	return r.Value
}

func addresses(ps []*model.Parameter) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Address
	}
	return out
}

func kindOf(e model.Entry) string {
	if e == nil {
		return "nil entry"
	}
	return string(e.Kind())
}
