package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// entryJSON is the persisted shape shared by every backend.
// entry_type selects which of the optional fields apply.
type entryJSON struct {
	EntryType    Kind              `json:"entry_type"`
	ID           uuid.UUID         `json:"uuid"`
	Description  string            `json:"description,omitempty"`
	CreationTime time.Time         `json:"creation_time"`
	Title        string            `json:"title,omitempty"`
	Address      string            `json:"address,omitempty"`
	ReadOnly     bool              `json:"read_only,omitempty"`
	Data         *Value            `json:"data,omitempty"`
	AbsTolerance float64           `json:"abs_tolerance,omitempty"`
	RelTolerance float64           `json:"rel_tolerance,omitempty"`
	Tags         Tags              `json:"tags,omitempty"`
	Readback     json.RawMessage   `json:"readback,omitempty"`
	Children     []json.RawMessage `json:"children,omitempty"`
	Entries      []json.RawMessage `json:"entries,omitempty"`
}

// MarshalEntry encodes e and its subtree.
func MarshalEntry(e Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("model: marshal nil entry")
	}
	m := e.EntryMeta()
	out := entryJSON{
		EntryType:    e.Kind(),
		ID:           m.ID,
		Description:  m.Description,
		CreationTime: m.CreationTime,
	}
	var err error
	switch t := e.(type) {
	case *Root:
		out.Entries, err = marshalAll(t.Entries)
	case *Collection:
		out.Title = t.Title
		out.Tags = t.Tags
		out.Children, err = marshalAll(t.Children)
	case *Parameter:
		out.Address = t.Address
		out.ReadOnly = t.ReadOnly
		out.AbsTolerance = t.AbsTolerance
		out.RelTolerance = t.RelTolerance
		out.Tags = t.Tags
		if t.Readback != nil {
			out.Readback, err = MarshalEntry(t.Readback)
		}
	case *Setpoint:
		out.Address = t.Address
		data := t.Data
		out.Data = &data
		if t.Readback != nil {
			out.Readback, err = MarshalEntry(t.Readback)
		}
	case *Readback:
		out.Address = t.Address
		data := t.Data
		out.Data = &data
		out.AbsTolerance = t.AbsTolerance
		out.RelTolerance = t.RelTolerance
	case *Snapshot:
		out.Title = t.Title
		out.Children, err = marshalAll(t.Children)
	default:
		return nil, fmt.Errorf("model: marshal unknown entry %T", e)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func marshalAll(in []Entry) ([]json.RawMessage, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, len(in))
	for i, e := range in {
		b, err := MarshalEntry(e)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// UnmarshalEntry decodes one entry and its subtree.
func UnmarshalEntry(data []byte) (Entry, error) {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("model: decode entry: %w", err)
	}
	meta := Meta{ID: in.ID, Description: in.Description, CreationTime: in.CreationTime}
	var data0 Value
	if in.Data != nil {
		data0 = *in.Data
	}

	switch in.EntryType {
	case KindRoot:
		entries, err := unmarshalAll(in.Entries)
		if err != nil {
			return nil, err
		}
		return &Root{Meta: meta, Entries: entries}, nil

	case KindCollection:
		children, err := unmarshalAll(in.Children)
		if err != nil {
			return nil, err
		}
		return &Collection{Meta: meta, Title: in.Title, Children: children, Tags: in.Tags}, nil

	case KindParameter:
		p := &Parameter{
			Meta:         meta,
			Address:      in.Address,
			ReadOnly:     in.ReadOnly,
			AbsTolerance: in.AbsTolerance,
			RelTolerance: in.RelTolerance,
			Tags:         in.Tags,
		}
		if len(in.Readback) > 0 {
			rb, err := unmarshalAs[*Parameter](in.Readback)
			if err != nil {
				return nil, err
			}
			p.Readback = rb
		}
		return p, nil

	case KindSetpoint:
		s := &Setpoint{Meta: meta, Address: in.Address, Data: data0}
		if len(in.Readback) > 0 {
			rb, err := unmarshalAs[*Readback](in.Readback)
			if err != nil {
				return nil, err
			}
			s.Readback = rb
		}
		return s, nil

	case KindReadback:
		return &Readback{
			Meta:         meta,
			Address:      in.Address,
			Data:         data0,
			AbsTolerance: in.AbsTolerance,
			RelTolerance: in.RelTolerance,
		}, nil

	case KindSnapshot:
		children, err := unmarshalAll(in.Children)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Meta: meta, Title: in.Title, Children: children}, nil
	}
	return nil, fmt.Errorf("model: unknown entry_type %q", in.EntryType)
}

func unmarshalAs[T Entry](data []byte) (T, error) {
	var zero T
	e, err := UnmarshalEntry(data)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("model: expected %T, got %s", zero, e.Kind())
	}
	return t, nil
}

func unmarshalAll(in []json.RawMessage) ([]Entry, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Entry, len(in))
	for i, raw := range in {
		e, err := UnmarshalEntry(raw)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
