package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// ValueType tags the concrete kind carried by a Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeBoolArray
	TypeIntArray
	TypeFloatArray
	TypeStringArray
)

var valueTypeNames = map[ValueType]string{
	TypeNull:        "null",
	TypeBool:        "bool",
	TypeInt:         "int",
	TypeFloat:       "float",
	TypeString:      "string",
	TypeBoolArray:   "bool[]",
	TypeIntArray:    "int[]",
	TypeFloatArray:  "float[]",
	TypeStringArray: "string[]",
}

func (t ValueType) String() string {
	if s, ok := valueTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Value is a captured control-point datum.
// Exactly one payload field is meaningful, selected by Type.
// The zero Value is null.
type Value struct {
	Type ValueType

	b  bool
	i  int64
	f  float64
	s  string
	bs []bool
	is []int64
	fs []float64
	ss []string
}

func Null() Value              { return Value{} }
func Bool(v bool) Value        { return Value{Type: TypeBool, b: v} }
func Int(v int64) Value        { return Value{Type: TypeInt, i: v} }
func Float(v float64) Value    { return Value{Type: TypeFloat, f: v} }
func String(v string) Value    { return Value{Type: TypeString, s: v} }
func Bools(v []bool) Value     { return Value{Type: TypeBoolArray, bs: slices.Clone(v)} }
func Ints(v []int64) Value     { return Value{Type: TypeIntArray, is: slices.Clone(v)} }
func Floats(v []float64) Value { return Value{Type: TypeFloatArray, fs: slices.Clone(v)} }
func Strings(v []string) Value { return Value{Type: TypeStringArray, ss: slices.Clone(v)} }

// IsNull reports whether no data was captured.
func (v Value) IsNull() bool { return v.Type == TypeNull }

func (v Value) AsBool() (bool, bool)     { return v.b, v.Type == TypeBool }
func (v Value) AsInt() (int64, bool)     { return v.i, v.Type == TypeInt }
func (v Value) AsString() (string, bool) { return v.s, v.Type == TypeString }

// AsFloat widens numeric scalars (int or float) to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case TypeFloat:
		return v.f, true
	case TypeInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsBools() ([]bool, bool)     { return slices.Clone(v.bs), v.Type == TypeBoolArray }
func (v Value) AsInts() ([]int64, bool)     { return slices.Clone(v.is), v.Type == TypeIntArray }
func (v Value) AsFloats() ([]float64, bool) { return slices.Clone(v.fs), v.Type == TypeFloatArray }
func (v Value) AsStrings() ([]string, bool) { return slices.Clone(v.ss), v.Type == TypeStringArray }

// Len is the element count for arrays, 1 for scalars and 0 for null.
func (v Value) Len() int {
	switch v.Type {
	case TypeNull:
		return 0
	case TypeBoolArray:
		return len(v.bs)
	case TypeIntArray:
		return len(v.is)
	case TypeFloatArray:
		return len(v.fs)
	case TypeStringArray:
		return len(v.ss)
	}
	return 1
}

// Interface returns the payload as a plain Go value (nil for null).
func (v Value) Interface() any {
	switch v.Type {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	case TypeFloat:
		return v.f
	case TypeString:
		return v.s
	case TypeBoolArray:
		return slices.Clone(v.bs)
	case TypeIntArray:
		return slices.Clone(v.is)
	case TypeFloatArray:
		return slices.Clone(v.fs)
	case TypeStringArray:
		return slices.Clone(v.ss)
	}
	return nil
}

// Equal compares type and payload. Numbers of different type are not equal.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeBool:
		return v.b == o.b
	case TypeInt:
		return v.i == o.i
	case TypeFloat:
		return floatEqual(v.f, o.f)
	case TypeString:
		return v.s == o.s
	case TypeBoolArray:
		return slices.Equal(v.bs, o.bs)
	case TypeIntArray:
		return slices.Equal(v.is, o.is)
	case TypeFloatArray:
		return slices.EqualFunc(v.fs, o.fs, floatEqual)
	case TypeStringArray:
		return slices.Equal(v.ss, o.ss)
	}
	return false
}

// floatEqual treats NaN as equal to NaN so captured invalid readings
// compare equal to themselves.
func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "<null>"
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeString:
		return v.s
	}
	return fmt.Sprint(v.Interface())
}

// FromInterface converts a plain Go value into a Value.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint16:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []bool:
		return Bools(t), nil
	case []int64:
		return Ints(t), nil
	case []uint16:
		out := make([]int64, len(t))
		for i, r := range t {
			out[i] = int64(r)
		}
		return Ints(out), nil
	case []float64:
		return Floats(t), nil
	case []string:
		return Strings(t), nil
	}
	return Value{}, fmt.Errorf("model: unsupported value type %T", x)
}

// ParseValue interprets CLI/CSV text: bool, int, float, otherwise string.
func ParseValue(s string) Value {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return Bool(b)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return String(s)
}

type valueJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// jsonFloat encodes NaN and the infinities as the strings "NaN", "+Inf"
// and "-Inf", which plain JSON numbers cannot carry.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return []byte(`"NaN"`), nil
	case math.IsInf(x, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(x, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(x)
}

func (f *jsonFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '"' {
		var x float64
		if err := json.Unmarshal(data, &x); err != nil {
			return err
		}
		*f = jsonFloat(x)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "NaN":
		*f = jsonFloat(math.NaN())
	case "+Inf":
		*f = jsonFloat(math.Inf(1))
	case "-Inf":
		*f = jsonFloat(math.Inf(-1))
	default:
		return fmt.Errorf("model: invalid float %q", s)
	}
	return nil
}

func (v Value) payload() any {
	switch v.Type {
	case TypeFloat:
		return jsonFloat(v.f)
	case TypeFloatArray:
		out := make([]jsonFloat, len(v.fs))
		for i, f := range v.fs {
			out[i] = jsonFloat(f)
		}
		return out
	}
	return v.Interface()
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull() {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(v.payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.Type.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var env valueJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("model: decode value: %w", err)
	}
	var err error
	switch env.Type {
	case "null":
		*v = Null()
	case "bool":
		var x bool
		err = json.Unmarshal(env.Value, &x)
		*v = Bool(x)
	case "int":
		var x int64
		err = json.Unmarshal(env.Value, &x)
		*v = Int(x)
	case "float":
		var x jsonFloat
		err = json.Unmarshal(env.Value, &x)
		*v = Float(float64(x))
	case "string":
		var x string
		err = json.Unmarshal(env.Value, &x)
		*v = String(x)
	case "bool[]":
		var x []bool
		err = json.Unmarshal(env.Value, &x)
		*v = Bools(x)
	case "int[]":
		var x []int64
		err = json.Unmarshal(env.Value, &x)
		*v = Ints(x)
	case "float[]":
		var x []jsonFloat
		err = json.Unmarshal(env.Value, &x)
		fs := make([]float64, len(x))
		for i, f := range x {
			fs[i] = float64(f)
		}
		*v = Floats(fs)
	case "string[]":
		var x []string
		err = json.Unmarshal(env.Value, &x)
		*v = Strings(x)
	default:
		return fmt.Errorf("model: unknown value type %q", env.Type)
	}
	if err != nil {
		return fmt.Errorf("model: decode %s value: %w", env.Type, err)
	}
	return nil
}
