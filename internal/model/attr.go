package model

// Searchable attribute names.
const (
	AttrEntryType    = "entry_type"
	AttrUUID         = "uuid"
	AttrDescription  = "description"
	AttrCreationTime = "creation_time"
	AttrTitle        = "title"
	AttrAddress      = "address"
	AttrData         = "data"
	AttrReadOnly     = "read_only"
	AttrTags         = "tags"
)

// Attr returns the named attribute of e as a plain Go value.
// ok is false when e has no such attribute.
func Attr(e Entry, name string) (v any, ok bool) {
	m := e.EntryMeta()
	switch name {
	case AttrEntryType:
		return e.Kind(), true
	case AttrUUID:
		return m.ID, true
	case AttrDescription:
		return m.Description, true
	case AttrCreationTime:
		return m.CreationTime, true
	}

	switch t := e.(type) {
	case *Collection:
		switch name {
		case AttrTitle:
			return t.Title, true
		case AttrTags:
			return t.Tags, true
		}
	case *Snapshot:
		if name == AttrTitle {
			return t.Title, true
		}
	case *Parameter:
		switch name {
		case AttrAddress:
			return t.Address, true
		case AttrReadOnly:
			return t.ReadOnly, true
		case AttrTags:
			return t.Tags, true
		}
	case *Setpoint:
		switch name {
		case AttrAddress:
			return t.Address, true
		case AttrData:
			return t.Data.Interface(), true
		}
	case *Readback:
		switch name {
		case AttrAddress:
			return t.Address, true
		case AttrData:
			return t.Data.Interface(), true
		}
	}
	return nil, false
}
