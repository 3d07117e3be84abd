package backend

import (
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/superscore/internal/model"
)

// Operator is a search comparator.
type Operator string

const (
	OpEq   Operator = "eq"
	OpLt   Operator = "lt" // stored <= target
	OpGt   Operator = "gt" // stored >= target
	OpIn   Operator = "in"
	OpLike Operator = "like"
)

// SearchTerm filters entries on one attribute.
// For OpIn, Value must be a slice. For OpLike, Value is a regular expression.
type SearchTerm struct {
	Attr     string
	Operator Operator
	Value    any
}

// Term is shorthand for building a SearchTerm.
func Term(attr string, op Operator, value any) SearchTerm {
	return SearchTerm{Attr: attr, Operator: op, Value: value}
}

// Filter is a compiled conjunction of search terms.
type Filter struct {
	terms []compiledTerm
}

type compiledTerm struct {
	SearchTerm
	re *regexp.Regexp
}

// Compile validates the terms. Unknown operators, malformed patterns and
// non-slice "in" targets fail with ErrConfiguration.
func Compile(terms ...SearchTerm) (*Filter, error) {
	f := &Filter{terms: make([]compiledTerm, 0, len(terms))}
	for _, t := range terms {
		ct := compiledTerm{SearchTerm: t}
		switch t.Operator {
		case OpEq, OpLt, OpGt:
		case OpIn:
			k := reflect.ValueOf(t.Value).Kind()
			if k != reflect.Slice && k != reflect.Array {
				return nil, fmt.Errorf("%w: %q target must be a slice, got %T", ErrConfiguration, t.Operator, t.Value)
			}
		case OpLike:
			pattern, ok := t.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q target must be a string pattern, got %T", ErrConfiguration, t.Operator, t.Value)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: %q pattern: %v", ErrConfiguration, t.Operator, err)
			}
			ct.re = re
		default:
			return nil, fmt.Errorf("%w: search does not support operator %q", ErrConfiguration, t.Operator)
		}
		f.terms = append(f.terms, ct)
	}
	return f, nil
}

// Match reports whether e satisfies every term.
func (f *Filter) Match(e model.Entry) bool {
	for _, t := range f.terms {
		data, ok := model.Attr(e, t.Attr)
		if !ok {
			return false
		}
		if !t.match(data) {
			return false
		}
	}
	return true
}

func (t compiledTerm) match(data any) bool {
	switch t.Operator {
	case OpEq:
		return equalValues(data, t.Value)
	case OpLt:
		c, ok := compareValues(data, t.Value)
		return ok && c <= 0
	case OpGt:
		c, ok := compareValues(data, t.Value)
		return ok && c >= 0
	case OpIn:
		target := reflect.ValueOf(t.Value)
		for i := 0; i < target.Len(); i++ {
			if equalValues(data, target.Index(i).Interface()) {
				return true
			}
		}
		return false
	case OpLike:
		s, ok := likeString(data)
		return ok && t.re.MatchString(s)
	}
	return false
}

// Compare applies one operator outside a compiled filter.
func Compare(op Operator, data, target any) (bool, error) {
	f, err := Compile(SearchTerm{Operator: op, Value: target})
	if err != nil {
		return false, err
	}
	return f.terms[0].match(data), nil
}

func likeString(data any) (string, bool) {
	switch v := data.(type) {
	case string:
		return v, true
	case uuid.UUID:
		return v.String(), true
	case model.Kind:
		return string(v), true
	}
	return "", false
}

// normalize maps stored and target values onto a small comparable set:
// float64 for numbers, string for text-like values, time.Time, bool, uuid.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case float32:
		return float64(x)
	case model.Kind:
		return string(x)
	case model.Value:
		return normalize(x.Interface())
	}
	return v
}

func equalValues(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case uuid.UUID:
		switch y := b.(type) {
		case uuid.UUID:
			return x == y
		case string:
			return x.String() == y
		}
		return false
	case model.Tags:
		// a tag set equals a target naming one of its labels
		s, ok := b.(string)
		if !ok {
			return false
		}
		for _, labels := range x {
			for _, l := range labels {
				if l == s {
					return true
				}
			}
		}
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// compareValues orders numbers, strings and times. ok is false for
// values that have no ordering or differ in kind.
func compareValues(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}
