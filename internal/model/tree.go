package model

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Walk visits e and everything below it depth-first, pre-order.
// Linked readbacks are visited right after their owner.
// Returning false from fn stops the walk.
func Walk(e Entry, fn func(Entry) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	switch t := e.(type) {
	case *Parameter:
		if t.Readback != nil && !Walk(t.Readback, fn) {
			return false
		}
	case *Setpoint:
		if t.Readback != nil && !Walk(t.Readback, fn) {
			return false
		}
	}
	for _, c := range Children(e) {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}

// Find returns the first entry below e (inclusive) with the given id.
func Find(e Entry, id uuid.UUID) Entry {
	var found Entry
	Walk(e, func(x Entry) bool {
		if x.EntryID() == id {
			found = x
			return false
		}
		return true
	})
	return found
}

// Clone deep-copies e. The tree is assumed acyclic.
func Clone(e Entry) Entry {
	switch t := e.(type) {
	case nil:
		return nil
	case *Root:
		c := *t
		c.Entries = cloneAll(t.Entries)
		return &c
	case *Collection:
		c := *t
		c.Children = cloneAll(t.Children)
		c.Tags = cloneTags(t.Tags)
		return &c
	case *Parameter:
		c := *t
		if t.Readback != nil {
			c.Readback = Clone(t.Readback).(*Parameter)
		}
		c.Tags = cloneTags(t.Tags)
		return &c
	case *Setpoint:
		c := *t
		c.Data = cloneValue(t.Data)
		if t.Readback != nil {
			c.Readback = Clone(t.Readback).(*Readback)
		}
		return &c
	case *Readback:
		c := *t
		c.Data = cloneValue(t.Data)
		return &c
	case *Snapshot:
		c := *t
		c.Children = cloneAll(t.Children)
		return &c
	}
	return e
}

func cloneAll(in []Entry) []Entry {
	if in == nil {
		return nil
	}
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = Clone(e)
	}
	return out
}

func cloneTags(t Tags) Tags {
	if t == nil {
		return nil
	}
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = slices.Clone(v)
	}
	return out
}

func cloneValue(v Value) Value {
	x, _ := FromInterface(v.Interface())
	return x
}

// Equal reports whether a and b have the same kind and field content,
// recursively. Timestamps compare by instant.
func Equal(a, b Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || !metaEqual(a.EntryMeta(), b.EntryMeta()) {
		return false
	}
	switch x := a.(type) {
	case *Root:
		y := b.(*Root)
		return allEqual(x.Entries, y.Entries)
	case *Collection:
		y := b.(*Collection)
		return x.Title == y.Title && tagsEqual(x.Tags, y.Tags) && allEqual(x.Children, y.Children)
	case *Parameter:
		y := b.(*Parameter)
		if x.Address != y.Address || x.ReadOnly != y.ReadOnly ||
			x.AbsTolerance != y.AbsTolerance || x.RelTolerance != y.RelTolerance ||
			!tagsEqual(x.Tags, y.Tags) {
			return false
		}
		return optEqual(x.Readback, y.Readback)
	case *Setpoint:
		y := b.(*Setpoint)
		if x.Address != y.Address || !x.Data.Equal(y.Data) {
			return false
		}
		return optEqual(x.Readback, y.Readback)
	case *Readback:
		y := b.(*Readback)
		return x.Address == y.Address && x.Data.Equal(y.Data) &&
			x.AbsTolerance == y.AbsTolerance && x.RelTolerance == y.RelTolerance
	case *Snapshot:
		y := b.(*Snapshot)
		return x.Title == y.Title && allEqual(x.Children, y.Children)
	}
	return false
}

func optEqual[T interface {
	Entry
	comparable
}](a, b T) bool {
	var zero T
	if a == zero || b == zero {
		return a == zero && b == zero
	}
	return Equal(a, b)
}

func metaEqual(a, b Meta) bool {
	return a.ID == b.ID && a.Description == b.Description && a.CreationTime.Equal(b.CreationTime)
}

func allEqual(a, b []Entry) bool {
	return slices.EqualFunc(a, b, Equal)
}

func tagsEqual(a, b Tags) bool {
	return maps.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}
