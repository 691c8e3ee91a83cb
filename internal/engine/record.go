package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the variant held by a Value node.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
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
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Value is one node of a parsed record tree. Suppressed fields become
// KindNull, never an empty string, so absence stays distinguishable from an
// empty value downstream.
type Value struct {
	kind   Kind
	str    string
	num    json.Number
	boolV  bool
	object map[string]*Value
	items  []*Value
}

// ParseRecord decodes a JSON document into a Value tree. Numbers keep their
// original textual form so re-encoding does not perturb untouched fields.
func ParseRecord(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid record JSON: trailing data")
	}
	return fromInterface(raw), nil
}

func fromInterface(raw interface{}) *Value {
	switch v := raw.(type) {
	case nil:
		return &Value{kind: KindNull}
	case string:
		return &Value{kind: KindString, str: v}
	case json.Number:
		return &Value{kind: KindNumber, num: v}
	case bool:
		return &Value{kind: KindBool, boolV: v}
	case map[string]interface{}:
		obj := make(map[string]*Value, len(v))
		for key, member := range v {
			obj[key] = fromInterface(member)
		}
		return &Value{kind: KindObject, object: obj}
	case []interface{}:
		items := make([]*Value, len(v))
		for i, member := range v {
			items[i] = fromInterface(member)
		}
		return &Value{kind: KindArray, items: items}
	}
	// json.Decoder never produces other types.
	return &Value{kind: KindNull}
}

// NewString returns a string leaf.
func NewString(s string) *Value { return &Value{kind: KindString, str: s} }

// Kind returns the variant of this node.
func (v *Value) Kind() Kind { return v.kind }

// IsNull reports whether the node is null (absent after suppression).
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// StringValue returns the string payload and whether the node is a string.
func (v *Value) StringValue() (string, bool) {
	if v == nil || v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// SetString replaces the node's payload with a string in place.
func (v *Value) SetString(s string) {
	*v = Value{kind: KindString, str: s}
}

// SetNull suppresses the node's payload in place.
func (v *Value) SetNull() {
	*v = Value{kind: KindNull}
}

// Field returns the named member of an object node.
func (v *Value) Field(key string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	member, ok := v.object[key]
	return member, ok
}

// Keys returns the object's member names in sorted order.
func (v *Value) Keys() []string {
	if v == nil || v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.object))
	for key := range v.object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Items returns the array's elements.
func (v *Value) Items() []*Value {
	if v == nil || v.kind != KindArray {
		return nil
	}
	return v.items
}

// Len returns the member count for objects and arrays, zero otherwise.
func (v *Value) Len() int {
	switch {
	case v == nil:
		return 0
	case v.kind == KindObject:
		return len(v.object)
	case v.kind == KindArray:
		return len(v.items)
	}
	return 0
}

// Clone deep-copies the tree so the engine can transform a copy while the
// caller keeps the original untouched.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	clone := &Value{kind: v.kind, str: v.str, num: v.num, boolV: v.boolV}
	if v.object != nil {
		clone.object = make(map[string]*Value, len(v.object))
		for key, member := range v.object {
			clone.object[key] = member.Clone()
		}
	}
	if v.items != nil {
		clone.items = make([]*Value, len(v.items))
		for i, member := range v.items {
			clone.items[i] = member.Clone()
		}
	}
	return clone
}

// MarshalJSON encodes the tree with object keys sorted, so equal trees always
// serialize identically.
func (v *Value) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if v.num == "" {
			return []byte("0"), nil
		}
		return []byte(v.num), nil
	case KindBool:
		return json.Marshal(v.boolV)
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, key := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			encodedMember, err := v.object[key].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encodedMember)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, member := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, err := member.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}
