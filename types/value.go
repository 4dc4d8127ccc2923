package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind discriminates the closed set of serializable step data variants.
type ValueKind int

// ValueKind values.
const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindRecord
)

// String returns the kind name for logging and error messages.
func (k ValueKind) String() string {
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
	case KindRecord:
		return "record"
	default:
		return "invalid"
	}
}

// Value is a serializable step data value. It is a closed tagged union over
// the JSON-compatible variants: string, number, bool, list, and record.
// The zero Value is the null value.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	rec  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number constructs a number value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool constructs a bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List constructs a list value from the given elements.
func List(elems ...Value) Value {
	return Value{kind: KindList, list: elems}
}

// Record constructs a record value from the given field map.
func Record(fields map[string]Value) Value {
	return Value{kind: KindRecord, rec: fields}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload. The second result is false when the
// value is not a string.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsList returns the list elements.
func (v Value) AsList() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// AsRecord returns the record fields.
func (v Value) AsRecord() (map[string]Value, bool) {
	return v.rec, v.kind == KindRecord
}

// Field returns the named field of a record value, or the null value.
func (v Value) Field(name string) Value {
	if v.kind != KindRecord {
		return Value{}
	}
	return v.rec[name]
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindRecord:
		if len(v.rec) != len(o.rec) {
			return false
		}
		for k, vv := range v.rec {
			ov, ok := o.rec[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		c := make([]Value, len(v.list))
		for i, e := range v.list {
			c[i] = e.Clone()
		}
		return Value{kind: KindList, list: c}
	case KindRecord:
		c := make(map[string]Value, len(v.rec))
		for k, e := range v.rec {
			c[k] = e.Clone()
		}
		return Value{kind: KindRecord, rec: c}
	default:
		return v
	}
}

// GoString renders the value for debugging.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.list))
	case KindRecord:
		keys := make([]string, 0, len(v.rec))
		for k := range v.rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("record%v", keys)
	default:
		return "null"
	}
}

// MarshalJSON encodes the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindRecord:
		if v.rec == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.rec)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes plain JSON into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromGo(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// FromGo converts a decoded JSON value (string, json.Number, float64, bool,
// []any, map[string]any, nil) into a Value. Unsupported Go types are an error.
func FromGo(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("unsupported number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			v, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = v
		}
		return List(elems...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Record(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported step data type %T", raw)
	}
}

// ToGo converts a Value back to its plain Go representation, suitable for
// JSON encoding or schema validation.
func (v Value) ToGo() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToGo()
		}
		return out
	case KindRecord:
		out := make(map[string]any, len(v.rec))
		for k, e := range v.rec {
			out[k] = e.ToGo()
		}
		return out
	default:
		return nil
	}
}
