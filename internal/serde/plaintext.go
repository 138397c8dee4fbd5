package serde

import "fmt"

// PlaintextCodec is the fallback format for file links whose extension
// doesn't match a known format: the whole byte
// payload becomes a single String Value.
type PlaintextCodec struct{}

func (PlaintextCodec) Name() string { return "plaintext" }

func (PlaintextCodec) EncodeValue(v Value) ([]byte, error) {
	s, ok := v.AsString()
	if !ok {
		return nil, fmt.Errorf("serde/plaintext: only String values are supported, got %v", v.Kind())
	}
	return []byte(s), nil
}

func (PlaintextCodec) DecodeValue(data []byte) (Value, error) {
	return String(string(data)), nil
}
