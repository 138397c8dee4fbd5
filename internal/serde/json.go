package serde

import "github.com/goccy/go-json"

// JSONCodec delegates to goccy/go-json, matching the faster drop-in JSON
// encoder already depended on elsewhere in this codebase's lineage. Values
// are encoded through the tagged-native form (see value.go) so Int/Uint/
// Bytes/Unit/Option survive a round trip through JSON's untyped numbers
// and strings.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) EncodeValue(v Value) ([]byte, error) {
	return json.Marshal(v.ToTagged())
}

func (JSONCodec) DecodeValue(data []byte) (Value, error) {
	var native interface{}
	if err := json.Unmarshal(data, &native); err != nil {
		return Value{}, err
	}
	return FromTagged(native), nil
}
