// Package properties holds the free-form "properties" attribute of
// collections and links as a closed set of JSON value types. Values are
// validated when they enter the system instead of being type-asserted
// after the fact.
package properties

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotObject is returned when the top level is not a JSON object.
	ErrNotObject = errors.New("properties must be a JSON object")

	// ErrUnsupportedType is returned by FromAny for values outside the
	// JSON data model.
	ErrUnsupportedType = errors.New("unsupported property value type")
)

// Value is one of String, Number, Bool, List, Map or Null.
type Value interface { // A
	isValue()
	// Any converts the value back to plain Go types.
	Any() any
}

type (
	String string           // A
	Number float64          // A
	Bool   bool             // A
	List   []Value          // A
	Map    map[string]Value // A
	Null   struct{}         // A
)

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue() {}
func (List) isValue() {}
func (Map) isValue() {}
func (Null) isValue() {}

// Any returns the string.
func (v String) Any() any { // A
	return string(v)
}

// Any returns the number as float64.
func (v Number) Any() any { // A
	return float64(v)
}

// Any returns the bool.
func (v Bool) Any() any { // A
	return bool(v)
}

// Any returns nil.
func (Null) Any() any { // A
	return nil
}

// Any returns the list as []any.
func (v List) Any() any { // A
	out := make([]any, len(v))
	for i, e := range v {
		out[i] = e.Any()
	}
	return out
}

// Any returns the map as map[string]any.
func (v Map) Any() any { // A
	out := make(map[string]any, len(v))
	for k, e := range v {
		out[k] = e.Any()
	}
	return out
}

// Parse decodes a JSON object. Empty input yields an empty Map.
func Parse(raw []byte) (Map, error) { // A
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Map{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	v, err := FromAny(obj)
	if err != nil {
		return nil, err
	}
	return v.(Map), nil
}

// FromAny converts the output of encoding/json (or equivalent plain Go
// values) into a Value.
func FromAny(v any) (Value, error) { // A
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case int:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %s: %v", ErrUnsupportedType, x, err)
		}
		return Number(f), nil
	case []any:
		out := make(List, len(x))
		for i, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(x))
		for k, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Get walks nested maps along path.
func (m Map) Get(path ...string) (Value, bool) { // A
	var cur Value = m
	for _, key := range path {
		obj, ok := cur.(Map)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Keys returns the keys of m in sorted order.
func (m Map) Keys() []string { // A
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of m.
func (m Map) Clone() Map { // A
	if m == nil {
		return nil
	}
	return clone(m).(Map)
}

func clone(v Value) Value {
	switch x := v.(type) {
	case List:
		out := make(List, len(x))
		for i, e := range x {
			out[i] = clone(e)
		}
		return out
	case Map:
		out := make(Map, len(x))
		for k, e := range x {
			out[k] = clone(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes m as a JSON object. A nil Map encodes as {}.
func (m Map) MarshalJSON() ([]byte, error) { // A
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.Any())
}

// UnmarshalJSON decodes a JSON object into m.
func (m *Map) UnmarshalJSON(data []byte) error { // A
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Map{}
		return nil
	}
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
