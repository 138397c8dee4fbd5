// Package serde implements the format-neutral value type that flows
// between the config resolver, the wire codecs, and node/filter class
// constructors.
package serde

import (
	"encoding/base64"
	"fmt"
	"reflect"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindMap
	KindSequence
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindSequence:
		return "sequence"
	case KindOption:
		return "option"
	default:
		return "unknown"
	}
}

// Value is the universal intermediate representation that every format
// codec and every node/filter constructor speaks. It is a closed sum type
// over Unit | Primitive | String | Bytes | Map | Sequence | Option, where
// Primitive is itself split into Bool/Int/Uint/Float for lossless
// round-tripping through typed formats.
type Value struct {
	kind Kind

	b   bool
	i   int64
	u   uint64
	f   float64
	s   string
	by  []byte
	m   map[string]Value
	seq []Value
	opt *Value
}

func Unit() Value                       { return Value{kind: KindUnit} }
func Bool(v bool) Value                 { return Value{kind: KindBool, b: v} }
func Int(v int64) Value                 { return Value{kind: KindInt, i: v} }
func Uint(v uint64) Value               { return Value{kind: KindUint, u: v} }
func Float(v float64) Value             { return Value{kind: KindFloat, f: v} }
func String(v string) Value             { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value              { return Value{kind: KindBytes, by: append([]byte(nil), v...)} }
func Map(v map[string]Value) Value      { return Value{kind: KindMap, m: v} }
func Sequence(v []Value) Value          { return Value{kind: KindSequence, seq: v} }
func None() Value                       { return Value{kind: KindOption, opt: nil} }
func Some(v Value) Value                { return Value{kind: KindOption, opt: &v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBool() (bool, bool)   { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)   { return v.i, v.kind == KindInt }
func (v Value) AsUint() (uint64, bool) { return v.u, v.kind == KindUint }
func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)  { return v.by, v.kind == KindBytes }
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}
func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == KindSequence }

// AsOption returns the wrapped value and whether it was present (Some).
// Calling it on a non-Option Value reports not-ok.
func (v Value) AsOption() (Value, bool, bool) {
	if v.kind != KindOption {
		return Value{}, false, false
	}
	if v.opt == nil {
		return Value{}, false, true
	}
	return *v.opt, true, true
}

// Equal reports structural equality, used by the round-trip property tests.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindUnit:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindUint:
		return v.u == other.u
	case KindFloat:
		return v.f == other.f
	case KindString:
		return v.s == other.s
	case KindBytes:
		if len(v.by) != len(other.by) {
			return false
		}
		for i := range v.by {
			if v.by[i] != other.by[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindOption:
		if (v.opt == nil) != (other.opt == nil) {
			return false
		}
		if v.opt == nil {
			return true
		}
		return v.opt.Equal(*other.opt)
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindUnit:
		return "()"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.by))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindSequence:
		return fmt.Sprintf("seq(%d)", len(v.seq))
	case KindOption:
		if v.opt == nil {
			return "none"
		}
		return "some(" + v.opt.String() + ")"
	default:
		return "?"
	}
}

// ToNative converts a Value into a plain Go value (map[string]interface{},
// []interface{}, string, []byte, bool, int64, uint64, float64, nil) for
// interop with libraries that only understand interface{}, such as
// mapstructure decoding. The JSON/TOML codecs use ToTagged instead.
func (v Value) ToNative() interface{} {
	switch v.kind {
	case KindUnit:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.by
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, val := range v.m {
			out[k] = val.ToNative()
		}
		return out
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, val := range v.seq {
			out[i] = val.ToNative()
		}
		return out
	case KindOption:
		if v.opt == nil {
			return nil
		}
		return v.opt.ToNative()
	default:
		return nil
	}
}

// FromNative converts a plain Go value (as produced by encoding/json,
// goccy/go-json, or pelletier/go-toml unmarshaling into interface{}) into a
// Value.
func FromNative(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Unit()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint64:
		return Uint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, val := range t {
			m[k] = FromNative(val)
		}
		return Map(m)
	case []interface{}:
		seq := make([]Value, len(t))
		for i, val := range t {
			seq[i] = FromNative(val)
		}
		return Sequence(seq)
	default:
		return fromNativeReflect(in)
	}
}

// fromNativeReflect handles concretely-typed slices and string-keyed maps
// (e.g. []string, []map[string]interface{}, map[string]string) that
// callers build directly in Go rather than via a decoded JSON/TOML
// document — those decode to the generic []interface{}/map[string]interface{}
// forms the switch above matches, but hand-built config literals commonly
// don't.
func fromNativeReflect(in interface{}) Value {
	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		seq := make([]Value, rv.Len())
		for i := range seq {
			seq[i] = FromNative(rv.Index(i).Interface())
		}
		return Sequence(seq)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return String(fmt.Sprintf("%v", in))
		}
		m := make(map[string]Value, rv.Len())
		for _, key := range rv.MapKeys() {
			m[key.String()] = FromNative(rv.MapIndex(key).Interface())
		}
		return Map(m)
	default:
		return String(fmt.Sprintf("%v", in))
	}
}

// tagged-native conversion. JSON/TOML have no native distinction
// between int/uint/float, bytes/string, or an explicit unit/none, so a
// plain ToNative/FromNative round trip loses information (e.g. an Int
// comes back as a Float). ToTagged/FromTagged add a small self-describing
// wrapper ("$i", "$u", "$b", "$unit", "$none", "$some") around the
// ambiguous cases only, so every Value still round-trips losslessly
// through those formats while staying a plain, human-readable document
// for the common String/Map/Sequence cases.
const (
	tagKeyInt   = "$i"
	tagKeyUint  = "$u"
	tagKeyBytes = "$b"
	tagKeyUnit  = "$unit"
	tagKeyNone  = "$none"
	tagKeySome  = "$some"
)

func (v Value) ToTagged() interface{} {
	switch v.kind {
	case KindUnit:
		return map[string]interface{}{tagKeyUnit: true}
	case KindInt:
		return map[string]interface{}{tagKeyInt: v.i}
	case KindUint:
		return map[string]interface{}{tagKeyUint: v.u}
	case KindBytes:
		return map[string]interface{}{tagKeyBytes: base64.StdEncoding.EncodeToString(v.by)}
	case KindBool:
		return v.b
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, val := range v.m {
			out[k] = val.ToTagged()
		}
		return out
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, val := range v.seq {
			out[i] = val.ToTagged()
		}
		return out
	case KindOption:
		if v.opt == nil {
			return map[string]interface{}{tagKeyNone: true}
		}
		return map[string]interface{}{tagKeySome: v.opt.ToTagged()}
	default:
		return nil
	}
}

func FromTagged(in interface{}) Value {
	if m, ok := in.(map[string]interface{}); ok {
		if len(m) == 1 {
			if iv, ok := m[tagKeyInt]; ok {
				return Int(toInt64(iv))
			}
			if uv, ok := m[tagKeyUint]; ok {
				return Uint(toUint64(uv))
			}
			if bv, ok := m[tagKeyBytes]; ok {
				if s, ok := bv.(string); ok {
					if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
						return Bytes(decoded)
					}
				}
			}
			if _, ok := m[tagKeyUnit]; ok {
				return Unit()
			}
			if _, ok := m[tagKeyNone]; ok {
				return None()
			}
			if sv, ok := m[tagKeySome]; ok {
				return Some(FromTagged(sv))
			}
		}
		out := make(map[string]Value, len(m))
		for k, val := range m {
			out[k] = FromTagged(val)
		}
		return Map(out)
	}
	switch t := in.(type) {
	case []interface{}:
		seq := make([]Value, len(t))
		for i, val := range t {
			seq[i] = FromTagged(val)
		}
		return Sequence(seq)
	default:
		return FromNative(in)
	}
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toUint64(v interface{}) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case int64:
		return uint64(t)
	case float64:
		return uint64(t)
	default:
		return 0
	}
}
