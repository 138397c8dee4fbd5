package serde

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ToonCodec implements the "toon" serialization format. No off-the-shelf
// Go package implements a format by that name, so this is a small
// purpose-built, length-prefixed token format: every token is
// "<tag><payload> ", where string and byte
// payloads carry an explicit byte count so parsing never has to guess
// where a value ends. This keeps it both human-inspectable and trivially
// unambiguous to parse, which a run of pure character-splitting on
// whitespace could not guarantee for arbitrary string content.
//
// Grammar (space-separated tokens):
//
// u unit
// n option: none
// o <value> option: some(value)
// T / F bool true / false
// i<int> signed integer
// U<uint> unsigned integer
// f<float> float (Go %g form)
// s<len>:<len bytes> string
// b<len>:<len bytes> bytes (base64 payload)
// q<count> <value>* sequence
// m<count> (<key> <value>)* map, keys are s<len>:... tokens, sorted
type ToonCodec struct{}

func (ToonCodec) Name() string { return "toon" }

func (ToonCodec) EncodeValue(v Value) ([]byte, error) {
	var sb strings.Builder
	writeToon(&sb, v)
	return []byte(sb.String()), nil
}

func writeToon(sb *strings.Builder, v Value) {
	switch v.Kind() {
	case KindUnit:
		sb.WriteString("u ")
	case KindOption:
		inner, present, _ := v.AsOption()
		if !present {
			sb.WriteString("n ")
			return
		}
		sb.WriteString("o ")
		writeToon(sb, inner)
	case KindBool:
		b, _ := v.AsBool()
		if b {
			sb.WriteString("T ")
		} else {
			sb.WriteString("F ")
		}
	case KindInt:
		i, _ := v.AsInt()
		fmt.Fprintf(sb, "i%d ", i)
	case KindUint:
		u, _ := v.AsUint()
		fmt.Fprintf(sb, "U%d ", u)
	case KindFloat:
		f, _ := v.AsFloat()
		fmt.Fprintf(sb, "f%s ", strconv.FormatFloat(f, 'g', -1, 64))
	case KindString:
		s, _ := v.AsString()
		writeToonString(sb, s)
	case KindBytes:
		b, _ := v.AsBytes()
		enc := base64.StdEncoding.EncodeToString(b)
		fmt.Fprintf(sb, "b%d:%s ", len(enc), enc)
	case KindSequence:
		seq, _ := v.AsSequence()
		fmt.Fprintf(sb, "q%d ", len(seq))
		for _, item := range seq {
			writeToon(sb, item)
		}
	case KindMap:
		m, _ := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(sb, "m%d ", len(keys))
		for _, k := range keys {
			writeToonString(sb, k)
			writeToon(sb, m[k])
		}
	}
}

func writeToonString(sb *strings.Builder, s string) {
	fmt.Fprintf(sb, "s%d:%s ", len(s), s)
}

func (ToonCodec) DecodeValue(data []byte) (Value, error) {
	r := &toonReader{data: data}
	v, err := r.readValue()
	if err != nil {
		return Value{}, err
	}
	r.skipSpaces()
	if r.pos != len(r.data) {
		return Value{}, fmt.Errorf("toon: %d trailing bytes", len(r.data)-r.pos)
	}
	return v, nil
}

type toonReader struct {
	data []byte
	pos int
}

func (r *toonReader) skipSpaces() {
	for r.pos < len(r.data) && r.data[r.pos] == ' ' {
		r.pos++
	}
}

func (r *toonReader) readValue() (Value, error) {
	r.skipSpaces()
	if r.pos >= len(r.data) {
		return Value{}, fmt.Errorf("toon: unexpected end of input")
	}
	tag := r.data[r.pos]
	r.pos++
	switch tag {
	case 'u':
		return Unit(), nil
	case 'n':
		return None(), nil
	case 'o':
		inner, err := r.readValue()
		if err != nil {
			return Value{}, err
		}
		return Some(inner), nil
	case 'T':
		return Bool(true), nil
	case 'F':
		return Bool(false), nil
	case 'i':
		n, err := r.readSignedDigits()
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case 'U':
		n, err := r.readUnsignedDigits()
		if err != nil {
			return Value{}, err
		}
		return Uint(n), nil
	case 'f':
		s, err := r.readUntilSpace()
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("toon: bad float %q: %w", s, err)
		}
		return Float(f), nil
	case 's':
		s, err := r.readLengthPrefixed()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case 'b':
		s, err := r.readLengthPrefixed()
		if err != nil {
			return Value{}, err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("toon: bad base64: %w", err)
		}
		return Bytes(decoded), nil
	case 'q':
		n, err := r.readUnsignedDigits()
		if err != nil {
			return Value{}, err
		}
		seq := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, item)
		}
		return Sequence(seq), nil
	case 'm':
		n, err := r.readUnsignedDigits()
		if err != nil {
			return Value{}, err
		}
		m := make(map[string]Value, n)
		for i := uint64(0); i < n; i++ {
			keyVal, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			key, ok := keyVal.AsString()
			if !ok {
				return Value{}, fmt.Errorf("toon: map key was not a string token")
			}
			val, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			m[key] = val
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("toon: unknown tag %q", tag)
	}
}

func (r *toonReader) readSignedDigits() (int64, error) {
	s, err := r.readDigitRun(true)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("toon: bad int %q: %w", s, err)
	}
	return n, nil
}

func (r *toonReader) readUnsignedDigits() (uint64, error) {
	s, err := r.readDigitRun(false)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("toon: bad uint %q: %w", s, err)
	}
	return n, nil
}

func (r *toonReader) readDigitRun(allowSign bool) (string, error) {
	start := r.pos
	if allowSign && r.pos < len(r.data) && r.data[r.pos] == '-' {
		r.pos++
	}
	for r.pos < len(r.data) && r.data[r.pos] >= '0' && r.data[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == start {
		return "", fmt.Errorf("toon: expected digits at offset %d", start)
	}
	return string(r.data[start:r.pos]), nil
}

func (r *toonReader) readUntilSpace() (string, error) {
	start := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != ' ' {
		r.pos++
	}
	if r.pos == start {
		return "", fmt.Errorf("toon: expected token at offset %d", start)
	}
	return string(r.data[start:r.pos]), nil
}

// readLengthPrefixed reads "<digits>:<digits-bytes>" where the caller has
// already consumed the leading type tag. The trailing separator space is
// left in place for the next readValue to skip.
func (r *toonReader) readLengthPrefixed() (string, error) {
	n, err := r.readUnsignedDigits()
	if err != nil {
		return "", err
	}
	if r.pos >= len(r.data) || r.data[r.pos] != ':' {
		return "", fmt.Errorf("toon: expected ':' at offset %d", r.pos)
	}
	r.pos++
	end := r.pos + int(n)
	if end > len(r.data) {
		return "", fmt.Errorf("toon: length %d overruns input", n)
	}
	s := string(r.data[r.pos:end])
	r.pos = end
	return s, nil
}
