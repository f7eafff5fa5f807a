package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
	// KindOpaque holds anything else untouched.
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "opaque"
	}
}

// Value is a tool argument tree. Numbers keep their literal form so large
// integers survive a decode and re-encode unchanged.
type Value struct {
	kind   Kind
	str    string
	num    json.Number
	b      bool
	list   []Value
	fields map[string]Value
	opaque any
}

func Null() Value { return Value{kind: KindNull} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func Map(fields map[string]Value) Value { return Value{kind: KindMap, fields: fields} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Items returns the list payload.
func (v Value) Items() []Value { return v.list }

// Field returns a map entry.
func (v Value) Field(name string) (Value, bool) {
	f, ok := v.fields[name]
	return f, ok
}

// FromAny converts a decoded JSON-like tree. Unknown Go types become opaque
// values that are passed through as-is.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t)
	case float64:
		return Number(json.Number(strconv.FormatFloat(t, 'g', -1, 64)))
	case float32:
		return Number(json.Number(strconv.FormatFloat(float64(t), 'g', -1, 32)))
	case int:
		return Number(json.Number(strconv.Itoa(t)))
	case int64:
		return Number(json.Number(strconv.FormatInt(t, 10)))
	case int32:
		return Number(json.Number(strconv.FormatInt(int64(t), 10)))
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10)))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}
		return Map(fields)
	case Value:
		return t
	default:
		return Value{kind: KindOpaque, opaque: x}
	}
}

// Any converts the value back into plain Go types suitable for
// encoding/json.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.fields))
		for k, item := range v.fields {
			out[k] = item.Any()
		}
		return out
	case KindOpaque:
		return v.opaque
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// ParseArguments decodes a JSON object of tool arguments. Empty input yields
// an empty map.
func ParseArguments(input string) (Value, error) {
	if len(bytes.TrimSpace([]byte(input))) == 0 {
		return Map(map[string]Value{}), nil
	}
	var v Value
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return Value{}, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if v.kind != KindMap {
		return Value{}, fmt.Errorf("tool arguments must be a JSON object, got %s", v.kind)
	}
	return v, nil
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Translator rewrites text, e.g. a result that swaps placeholders for
// original values.
type Translator interface {
	Deanonymize(text string) string
}

// Deanonymize returns a copy of v with every string leaf passed through t.
// Maps and lists are walked to any depth; other leaves are kept. A leaf whose
// translation panics is kept unchanged.
func Deanonymize(v Value, t Translator) Value {
	switch v.kind {
	case KindString:
		return String(translateLeaf(t, v.str))
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = Deanonymize(item, t)
		}
		return List(items...)
	case KindMap:
		fields := make(map[string]Value, len(v.fields))
		for k, item := range v.fields {
			fields[k] = Deanonymize(item, t)
		}
		return Map(fields)
	default:
		return v
	}
}

func translateLeaf(t Translator, s string) (out string) {
	defer func() {
		if recover() != nil {
			out = s
		}
	}()
	return t.Deanonymize(s)
}
