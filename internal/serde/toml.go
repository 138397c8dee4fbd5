package serde

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// TOMLCodec wraps pelletier/go-toml/v2, the same TOML library the broader
// pack depends on for config loading. TOML requires a table (map) at the
// document root, so every Value — Map included — is encoded under a fixed
// top-level "root" key and unwrapped again on decode, keeping the mapping
// unambiguous regardless of what the wrapped Value looks like.
type TOMLCodec struct{}

func (TOMLCodec) Name() string { return "toml" }

const tomlRootKey = "root"

func (TOMLCodec) EncodeValue(v Value) ([]byte, error) {
	root := map[string]interface{}{tomlRootKey: v.ToTagged()}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (TOMLCodec) DecodeValue(data []byte) (Value, error) {
	var root map[string]interface{}
	if err := toml.Unmarshal(data, &root); err != nil {
		return Value{}, err
	}
	wrapped, ok := root[tomlRootKey]
	if !ok {
		return Value{}, fmt.Errorf("serde/toml: missing %q root key", tomlRootKey)
	}
	return FromTagged(wrapped), nil
}
