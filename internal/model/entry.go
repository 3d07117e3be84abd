// Package model holds the entry tree shared by storage, control and client.
//
// Structural entries (Collection, Parameter) describe what to capture.
// Captured entries (Setpoint, Readback, Snapshot) are produced by a snap and
// are not modified afterwards.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind names an entry type. The string form is the persisted discriminator.
type Kind string

const (
	KindRoot       Kind = "Root"
	KindCollection Kind = "Collection"
	KindParameter  Kind = "Parameter"
	KindSetpoint   Kind = "Setpoint"
	KindReadback   Kind = "Readback"
	KindSnapshot   Kind = "Snapshot"
)

// Entry is any node of the tree.
type Entry interface {
	EntryMeta() Meta
	EntryID() uuid.UUID
	Kind() Kind
}

// Meta is the state every entry carries.
type Meta struct {
	ID           uuid.UUID
	Description  string
	CreationTime time.Time
}

func (m Meta) EntryMeta() Meta    { return m }
func (m Meta) EntryID() uuid.UUID { return m.ID }

// NewMeta assigns a fresh identifier and creation time.
func NewMeta(description string) Meta {
	return Meta{ID: uuid.New(), Description: description, CreationTime: Now()}
}

// Now is the timestamp source for new entries: UTC, no monotonic reading.
func Now() time.Time { return time.Now().UTC().Round(0) }

// Tags groups free-form labels by tag group (program, region, area...).
type Tags map[string][]string

// Root is the single top-level container of a store.
type Root struct {
	Meta
	Entries []Entry
}

// Collection is a structural, ordered grouping of Parameters and Collections.
type Collection struct {
	Meta
	Title    string
	Children []Entry
	Tags     Tags
}

// Parameter references one remote control point.
// Readback is a weak link: the referenced Parameter is not owned.
type Parameter struct {
	Meta
	Address      string
	ReadOnly     bool
	Readback     *Parameter
	AbsTolerance float64
	RelTolerance float64
	Tags         Tags
}

// Setpoint is a captured writable value. The embedded Readback is owned.
type Setpoint struct {
	Meta
	Address  string
	Data     Value
	Readback *Readback
}

// Readback is a captured read-only value.
type Readback struct {
	Meta
	Address      string
	Data         Value
	AbsTolerance float64
	RelTolerance float64
}

// Snapshot mirrors a Collection's shape at capture time.
type Snapshot struct {
	Meta
	Title    string
	Children []Entry
}

func (*Root) Kind() Kind       { return KindRoot }
func (*Collection) Kind() Kind { return KindCollection }
func (*Parameter) Kind() Kind  { return KindParameter }
func (*Setpoint) Kind() Kind   { return KindSetpoint }
func (*Readback) Kind() Kind   { return KindReadback }
func (*Snapshot) Kind() Kind   { return KindSnapshot }

func NewRoot() *Root { return &Root{Meta: NewMeta("")} }

func NewCollection(title, description string, children ...Entry) *Collection {
	return &Collection{Meta: NewMeta(description), Title: title, Children: children}
}

func NewParameter(address, description string) *Parameter {
	return &Parameter{Meta: NewMeta(description), Address: address}
}

func NewSnapshot(title, description string, children ...Entry) *Snapshot {
	return &Snapshot{Meta: NewMeta(description), Title: title, Children: children}
}

// SetpointFromParameter captures data for p's address.
func SetpointFromParameter(p *Parameter, data Value) *Setpoint {
	return &Setpoint{Meta: NewMeta(p.Description), Address: p.Address, Data: data}
}

// ReadbackFromParameter captures read-only data for p's address,
// carrying p's tolerances for later verification.
func ReadbackFromParameter(p *Parameter, data Value) *Readback {
	return &Readback{
		Meta:         NewMeta(p.Description),
		Address:      p.Address,
		Data:         data,
		AbsTolerance: p.AbsTolerance,
		RelTolerance: p.RelTolerance,
	}
}

// WithinTolerance reports whether the readback agrees with want.
// Numeric scalars use |rb-want| <= abs + rel*|want|; everything else
// must be equal. A null readback never agrees.
func (r *Readback) WithinTolerance(want Value) bool {
	if r == nil || r.Data.IsNull() {
		return false
	}
	got, ok1 := r.Data.AsFloat()
	exp, ok2 := want.AsFloat()
	if !ok1 || !ok2 {
		return r.Data.Equal(want)
	}
	if floatEqual(got, exp) {
		return true
	}
	return math.Abs(got-exp) <= r.AbsTolerance+r.RelTolerance*math.Abs(exp)
}

// Children returns the ordered structural children of e (nil for leaves).
func Children(e Entry) []Entry {
	switch t := e.(type) {
	case *Root:
		return t.Entries
	case *Collection:
		return t.Children
	case *Snapshot:
		return t.Children
	}
	return nil
}

var (
	ErrInvalidChild = errors.New("model: invalid child")
	ErrCycle        = errors.New("model: cycle in entry tree")
)

// Validate checks child kinds and acyclicity below e.
func Validate(e Entry) error {
	return validate(e, map[uuid.UUID]bool{})
}

func validate(e Entry, path map[uuid.UUID]bool) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidChild)
	}
	id := e.EntryID()
	if path[id] {
		return fmt.Errorf("%w: %s", ErrCycle, id)
	}
	path[id] = true
	defer delete(path, id)

	for _, c := range Children(e) {
		if c == nil {
			return fmt.Errorf("%w: nil child of %s %s", ErrInvalidChild, e.Kind(), id)
		}
		if !allowedChild(e.Kind(), c.Kind()) {
			return fmt.Errorf("%w: %s cannot hold %s", ErrInvalidChild, e.Kind(), c.Kind())
		}
		if err := validate(c, path); err != nil {
			return err
		}
	}
	switch t := e.(type) {
	case *Parameter:
		if t.Readback != nil {
			return validate(t.Readback, path)
		}
	case *Setpoint:
		if t.Readback != nil {
			return validate(t.Readback, path)
		}
	}
	return nil
}

func allowedChild(parent, child Kind) bool {
	switch parent {
	case KindRoot:
		return child != KindRoot
	case KindCollection:
		return child == KindCollection || child == KindParameter
	case KindSnapshot:
		return child == KindSnapshot || child == KindSetpoint || child == KindReadback
	}
	return false
}
