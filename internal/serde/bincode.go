package serde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// BincodeCodec is a from-scratch canonical binary codec named after
// Rust's `bincode` crate; no equivalent wire-compatible Go package exists,
// so this codec reproduces just the property bincode is relied on for
// here: a canonical, deterministic byte encoding of a Value, stable
// enough that digest(encode(decode(encode(v)))) always equals
// digest(encode(v)). Map keys are sorted on encode, which is what makes
// two structurally-equal Values with differently-ordered map
// construction produce identical bytes.
type BincodeCodec struct{}

func (BincodeCodec) Name() string { return "bincode" }

const (
	tagUnit uint8 = iota
	tagBool
	tagInt
	tagUint
	tagFloat
	tagString
	tagBytes
	tagMap
	tagSequence
	tagOptionNone
	tagOptionSome
)

func (BincodeCodec) EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeBincode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBincode(buf *bytes.Buffer, v Value) error {
	switch v.Kind() {
	case KindUnit:
		buf.WriteByte(tagUnit)
	case KindBool:
		buf.WriteByte(tagBool)
		b, _ := v.AsBool()
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt:
		buf.WriteByte(tagInt)
		i, _ := v.AsInt()
		writeUint64(buf, uint64(i))
	case KindUint:
		buf.WriteByte(tagUint)
		u, _ := v.AsUint()
		writeUint64(buf, u)
	case KindFloat:
		buf.WriteByte(tagFloat)
		f, _ := v.AsFloat()
		writeUint64(buf, math.Float64bits(f))
	case KindString:
		buf.WriteByte(tagString)
		s, _ := v.AsString()
		writeUint64(buf, uint64(len(s)))
		buf.WriteString(s)
	case KindBytes:
		buf.WriteByte(tagBytes)
		b, _ := v.AsBytes()
		writeUint64(buf, uint64(len(b)))
		buf.Write(b)
	case KindSequence:
		buf.WriteByte(tagSequence)
		seq, _ := v.AsSequence()
		writeUint64(buf, uint64(len(seq)))
		for _, item := range seq {
			if err := encodeBincode(buf, item); err != nil {
				return err
			}
		}
	case KindMap:
		buf.WriteByte(tagMap)
		m, _ := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeUint64(buf, uint64(len(keys)))
		for _, k := range keys {
			writeUint64(buf, uint64(len(k)))
			buf.WriteString(k)
			if err := encodeBincode(buf, m[k]); err != nil {
				return err
			}
		}
	case KindOption:
		inner, present, _ := v.AsOption()
		if !present {
			buf.WriteByte(tagOptionNone)
			return nil
		}
		buf.WriteByte(tagOptionSome)
		return encodeBincode(buf, inner)
	default:
		return fmt.Errorf("bincode: unsupported kind %v", v.Kind())
	}
	return nil
}

func writeUint64(buf *bytes.Buffer, u uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], u)
	buf.Write(tmp[:])
}

func (BincodeCodec) DecodeValue(data []byte) (Value, error) {
	r := bytes.NewReader(data)
	v, err := decodeBincode(r)
	if err != nil {
		return Value{}, err
	}
	if r.Len() != 0 {
		return Value{}, fmt.Errorf("bincode: %d trailing bytes", r.Len())
	}
	return v, nil
}

func decodeBincode(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case tagUnit:
		return Unit(), nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case tagInt:
		u, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(u)), nil
	case tagUint:
		u, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		return Uint(u), nil
	case tagFloat:
		u, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(u)), nil
	case tagString:
		n, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		s := make([]byte, n)
		if _, err := readFull(r, s); err != nil {
			return Value{}, err
		}
		return String(string(s)), nil
	case tagBytes:
		n, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		b := make([]byte, n)
		if _, err := readFull(r, b); err != nil {
			return Value{}, err
		}
		return Bytes(b), nil
	case tagSequence:
		n, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		seq := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeBincode(r)
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, item)
		}
		return Sequence(seq), nil
	case tagMap:
		n, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			klen, err := readUint64(r)
			if err != nil {
				return Value{}, err
			}
			kb := make([]byte, klen)
			if _, err := readFull(r, kb); err != nil {
				return Value{}, err
			}
			val, err := decodeBincode(r)
			if err != nil {
				return Value{}, err
			}
			m[string(kb)] = val
		}
		return Map(m), nil
	case tagOptionNone:
		return None(), nil
	case tagOptionSome:
		inner, err := decodeBincode(r)
		if err != nil {
			return Value{}, err
		}
		return Some(inner), nil
	default:
		return Value{}, fmt.Errorf("bincode: unknown tag %d", tag)
	}
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
